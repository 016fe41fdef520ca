package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	paymentDatamodel "github.com/frahmantamala/payment-hub/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/payment-hub/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) WithinTx(ctx context.Context, fn func(repo paymentpkg.RepositoryAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PaymentRepository{db: tx})
	})
}

// CreatePayment inserts inside a savepoint so a hash collision leaves the
// surrounding transaction usable for a retry.
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *paymentpkg.Payment) error {
	if err := checkOptions(p.Options); err != nil {
		return err
	}
	m := p.ToDataModel()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(m).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return paymentpkg.ErrDuplicateHash
		}
		return err
	}

	p.ID = m.ID
	p.CreatedAt = m.CreatedAt
	p.UpdatedAt = m.UpdatedAt
	return nil
}

// checkOptions rejects option bags that cannot be stored as JSON. The sqlite
// JSONMap valuer drops the marshal error and would store an empty string.
func checkOptions(options map[string]any) error {
	if _, err := json.Marshal(options); err != nil {
		return fmt.Errorf("encode payment options: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id int64) (*paymentpkg.Payment, error) {
	var m paymentDatamodel.Payment
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentpkg.ErrPaymentNotFound
		}
		return nil, err
	}
	return paymentpkg.PaymentFromDataModel(&m), nil
}

func (r *PaymentRepository) GetPaymentByHash(ctx context.Context, hash string) (*paymentpkg.Payment, error) {
	var m paymentDatamodel.Payment
	if err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentpkg.ErrPaymentNotFound
		}
		return nil, err
	}
	return paymentpkg.PaymentFromDataModel(&m), nil
}

// UpdatePayment writes every mutable column when the stored version still
// matches p.Version, then advances p.Version.
func (r *PaymentRepository) UpdatePayment(ctx context.Context, p *paymentpkg.Payment) error {
	if err := checkOptions(p.Options); err != nil {
		return err
	}
	m := p.ToDataModel()
	now := time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&paymentDatamodel.Payment{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]interface{}{
			"status":            m.Status,
			"amount":            m.Amount,
			"payment_system_id": m.PaymentSystemID,
			"user_id":           m.UserID,
			"description":       m.Description,
			"message":           m.Message,
			"variant":           m.Variant,
			"options":           m.Options,
			"cancel_deadline":   m.CancelDeadline,
			"paid_at":           m.PaidAt,
			"version":           gorm.Expr("version + 1"),
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return paymentpkg.ErrStaleVersion
	}

	p.Version++
	p.UpdatedAt = now
	return nil
}

func (r *PaymentRepository) CountPaymentsByStatus(ctx context.Context, statuses ...paymentpkg.Status) (int64, error) {
	values := make([]int16, len(statuses))
	for i, s := range statuses {
		values[i] = int16(s)
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&paymentDatamodel.Payment{}).
		Where("status IN ?", values).
		Count(&count).Error
	return count, err
}

func (r *PaymentRepository) CountPaymentsBySystem(ctx context.Context, systemID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&paymentDatamodel.Payment{}).
		Where("payment_system_id = ?", systemID).
		Count(&count).Error
	return count, err
}

func (r *PaymentRepository) CreateItem(ctx context.Context, it *paymentpkg.Item) error {
	m := it.ToDataModel()
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	it.ID = m.ID
	it.CreatedAt = m.CreatedAt
	it.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *PaymentRepository) GetItem(ctx context.Context, id int64) (*paymentpkg.Item, error) {
	var m paymentDatamodel.PaymentItem
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentpkg.ErrItemNotFound
		}
		return nil, err
	}
	return paymentpkg.ItemFromDataModel(&m), nil
}

func (r *PaymentRepository) UpdateItem(ctx context.Context, it *paymentpkg.Item) error {
	m := it.ToDataModel()
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	it.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *PaymentRepository) DeleteItem(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&paymentDatamodel.PaymentItem{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return paymentpkg.ErrItemNotFound
	}
	return nil
}

func (r *PaymentRepository) ListItems(ctx context.Context, paymentID int64) ([]*paymentpkg.Item, error) {
	var models []paymentDatamodel.PaymentItem
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	items := make([]*paymentpkg.Item, len(models))
	for i := range models {
		items[i] = paymentpkg.ItemFromDataModel(&models[i])
	}
	return items, nil
}

func (r *PaymentRepository) AppendLog(ctx context.Context, l *paymentpkg.Log) error {
	m := l.ToDataModel()
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	l.ID = m.ID
	l.CreatedAt = m.CreatedAt
	return nil
}

func (r *PaymentRepository) ListLogs(ctx context.Context, paymentID int64) ([]*paymentpkg.Log, error) {
	var models []paymentDatamodel.PaymentLog
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]*paymentpkg.Log, len(models))
	for i := range models {
		logs[i] = paymentpkg.LogFromDataModel(&models[i])
	}
	return logs, nil
}

func (r *PaymentRepository) CreateSystem(ctx context.Context, s *paymentpkg.PaymentSystem) error {
	m := s.ToDataModel()
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return paymentpkg.ErrSystemCodeTaken
		}
		return err
	}
	s.ID = m.ID
	s.CreatedAt = m.CreatedAt
	s.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *PaymentRepository) UpdateSystem(ctx context.Context, s *paymentpkg.PaymentSystem) error {
	m := s.ToDataModel()
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return paymentpkg.ErrSystemCodeTaken
		}
		return err
	}
	s.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *PaymentRepository) DeleteSystem(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&paymentDatamodel.PaymentSystem{}, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrForeignKeyViolated) {
			return paymentpkg.ErrSystemInUse
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return paymentpkg.ErrGatewayNotFound
	}
	return nil
}

func (r *PaymentRepository) GetSystem(ctx context.Context, id int64) (*paymentpkg.PaymentSystem, error) {
	var m paymentDatamodel.PaymentSystem
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentpkg.ErrGatewayNotFound
		}
		return nil, err
	}
	return paymentpkg.SystemFromDataModel(&m), nil
}

func (r *PaymentRepository) GetSystemByCode(ctx context.Context, code string) (*paymentpkg.PaymentSystem, error) {
	var m paymentDatamodel.PaymentSystem
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentpkg.ErrGatewayNotFound
		}
		return nil, err
	}
	return paymentpkg.SystemFromDataModel(&m), nil
}

func (r *PaymentRepository) ListSystems(ctx context.Context) ([]*paymentpkg.PaymentSystem, error) {
	var models []paymentDatamodel.PaymentSystem
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	systems := make([]*paymentpkg.PaymentSystem, len(models))
	for i := range models {
		systems[i] = paymentpkg.SystemFromDataModel(&models[i])
	}
	return systems, nil
}
