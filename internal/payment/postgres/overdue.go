package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	paymentpkg "github.com/frahmantamala/payment-hub/internal/payment"
)

const overdueQuery = `SELECT id FROM payments
WHERE status IN (?) AND cancel_deadline IS NOT NULL AND cancel_deadline < ?
ORDER BY cancel_deadline ASC, id ASC
LIMIT ?`

// OverdueScanner finds expired active payments with a plain SQL scan; the
// sweeper only needs ids.
type OverdueScanner struct {
	db *sqlx.DB
}

func NewOverdueScanner(db *sqlx.DB) *OverdueScanner {
	return &OverdueScanner{db: db}
}

func (s *OverdueScanner) ListOverduePayments(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	statuses := make([]int16, len(paymentpkg.ActiveStatuses))
	for i, st := range paymentpkg.ActiveStatuses {
		statuses[i] = int16(st)
	}

	query, args, err := sqlx.In(overdueQuery, statuses, now, limit)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return ids, nil
}
