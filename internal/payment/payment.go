package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	paymentDatamodel "github.com/frahmantamala/payment-hub/internal/core/datamodel/payment"
)

type Status int16

const (
	StatusNew       Status = 1
	StatusWaiting   Status = 2
	StatusSuccess   Status = 3
	StatusCancelled Status = 4
	StatusError     Status = 5
)

// ActiveStatuses are the states a payment can still be settled or cancelled from.
var ActiveStatuses = []Status{StatusNew, StatusWaiting}

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusWaiting:
		return "WAITING"
	case StatusSuccess:
		return "SUCCESS"
	case StatusCancelled:
		return "CANCELLED"
	case StatusError:
		return "ERROR"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int16(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type Payment struct {
	ID              int64           `json:"id"`
	Hash            string          `json:"hash"`
	Status          Status          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentSystemID *int64          `json:"payment_system_id,omitempty"`
	UserID          *int64          `json:"user_id,omitempty"`
	Description     string          `json:"description,omitempty"`
	Message         string          `json:"message,omitempty"`
	Variant         string          `json:"variant,omitempty"`
	Options         map[string]any  `json:"options,omitempty"`
	CancelDeadline  *time.Time      `json:"cancel_deadline,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	Version         int64           `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PaymentData holds the caller-fillable fields of a new payment. Hash, status,
// amount, gateway reference and timestamps are owned by the manager.
type PaymentData struct {
	Description string         `json:"description"`
	UserID      *int64         `json:"user_id,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

func (p *Payment) IsActive() bool {
	return p.Status == StatusNew || p.Status == StatusWaiting
}

func (p *Payment) IsOpen() bool {
	return p.Status == StatusNew
}

func (p *Payment) HasGateway() bool {
	return p.PaymentSystemID != nil
}

// SetParam stores values in the options bag. Without replace, keys that are
// already set keep their value.
func (p *Payment) SetParam(values map[string]any, replace bool) {
	if p.Options == nil {
		p.Options = make(map[string]any, len(values))
	}
	for k, v := range values {
		if _, exists := p.Options[k]; exists && !replace {
			continue
		}
		p.Options[k] = v
	}
}

func (p *Payment) Param(key string) (any, bool) {
	v, ok := p.Options[key]
	return v, ok
}

func (p *Payment) ParamString(key string) string {
	v, ok := p.Param(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func PaymentFromDataModel(m *paymentDatamodel.Payment) *Payment {
	return &Payment{
		ID:              m.ID,
		Hash:            m.Hash,
		Status:          Status(m.Status),
		Amount:          m.Amount,
		PaymentSystemID: m.PaymentSystemID,
		UserID:          m.UserID,
		Description:     m.Description,
		Message:         m.Message,
		Variant:         m.Variant,
		Options:         map[string]any(m.Options),
		CancelDeadline:  m.CancelDeadline,
		PaidAt:          m.PaidAt,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func (p *Payment) ToDataModel() *paymentDatamodel.Payment {
	return &paymentDatamodel.Payment{
		ID:              p.ID,
		Hash:            p.Hash,
		Status:          int16(p.Status),
		Amount:          p.Amount,
		PaymentSystemID: p.PaymentSystemID,
		UserID:          p.UserID,
		Description:     p.Description,
		Message:         p.Message,
		Variant:         p.Variant,
		Options:         datatypes.JSONMap(p.Options),
		CancelDeadline:  p.CancelDeadline,
		PaidAt:          p.PaidAt,
		Version:         p.Version,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
