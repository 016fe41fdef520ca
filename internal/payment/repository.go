package payment

import (
	"context"
	"time"
)

// RepositoryAPI is the persistence contract of the payment manager. Payment
// updates are optimistic: UpdatePayment returns ErrStaleVersion when the row
// changed since it was read.
type RepositoryAPI interface {
	// WithinTx runs fn against a repository bound to a single transaction.
	WithinTx(ctx context.Context, fn func(repo RepositoryAPI) error) error

	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	GetPaymentByHash(ctx context.Context, hash string) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	CountPaymentsByStatus(ctx context.Context, statuses ...Status) (int64, error)
	CountPaymentsBySystem(ctx context.Context, systemID int64) (int64, error)

	CreateItem(ctx context.Context, it *Item) error
	GetItem(ctx context.Context, id int64) (*Item, error)
	UpdateItem(ctx context.Context, it *Item) error
	DeleteItem(ctx context.Context, id int64) error
	ListItems(ctx context.Context, paymentID int64) ([]*Item, error)

	AppendLog(ctx context.Context, l *Log) error
	ListLogs(ctx context.Context, paymentID int64) ([]*Log, error)

	CreateSystem(ctx context.Context, s *PaymentSystem) error
	UpdateSystem(ctx context.Context, s *PaymentSystem) error
	DeleteSystem(ctx context.Context, id int64) error
	GetSystem(ctx context.Context, id int64) (*PaymentSystem, error)
	GetSystemByCode(ctx context.Context, code string) (*PaymentSystem, error)
	ListSystems(ctx context.Context) ([]*PaymentSystem, error)
}

// OverdueFinder lists active payments whose cancel deadline has passed.
type OverdueFinder interface {
	ListOverduePayments(ctx context.Context, now time.Time, limit int) ([]int64, error)
}
