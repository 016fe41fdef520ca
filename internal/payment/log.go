package payment

import (
	"time"

	"gorm.io/datatypes"

	paymentDatamodel "github.com/frahmantamala/payment-hub/internal/core/datamodel/payment"
)

const (
	LogCodeSuccess   = "success"
	LogCodeCancel    = "cancel"
	LogCodeError     = "error"
	LogCodeUpdatePay = "update_pay"
)

const DefaultCancelReason = "No reason given"

type Log struct {
	ID              int64          `json:"id"`
	PaymentID       int64          `json:"payment_id"`
	UserID          *int64         `json:"user_id,omitempty"`
	Code            string         `json:"code"`
	Message         string         `json:"message"`
	RequestSnapshot map[string]any `json:"request_snapshot,omitempty"`
	IPAddress       string         `json:"ip_address,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func LogFromDataModel(m *paymentDatamodel.PaymentLog) *Log {
	return &Log{
		ID:              m.ID,
		PaymentID:       m.PaymentID,
		UserID:          m.UserID,
		Code:            m.Code,
		Message:         m.Message,
		RequestSnapshot: map[string]any(m.RequestSnapshot),
		IPAddress:       m.IPAddress,
		CreatedAt:       m.CreatedAt,
	}
}

func (l *Log) ToDataModel() *paymentDatamodel.PaymentLog {
	return &paymentDatamodel.PaymentLog{
		ID:              l.ID,
		PaymentID:       l.PaymentID,
		UserID:          l.UserID,
		Code:            l.Code,
		Message:         l.Message,
		RequestSnapshot: datatypes.JSONMap(l.RequestSnapshot),
		IPAddress:       l.IPAddress,
		CreatedAt:       l.CreatedAt,
	}
}
