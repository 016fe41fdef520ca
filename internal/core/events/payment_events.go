package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCreated         = "payment.created"
	EventTypePaymentGatewayAssigned = "payment.gateway_assigned"
	EventTypePaymentSucceeded       = "payment.succeeded"
	EventTypePaymentCancelled       = "payment.cancelled"
	EventTypePaymentErrored         = "payment.errored"
	EventTypePaymentAmountUpdated   = "payment.amount_updated"
)

// PaymentEventTypes lists every lifecycle event the payment manager emits.
var PaymentEventTypes = []string{
	EventTypePaymentCreated,
	EventTypePaymentGatewayAssigned,
	EventTypePaymentSucceeded,
	EventTypePaymentCancelled,
	EventTypePaymentErrored,
	EventTypePaymentAmountUpdated,
}

type PaymentEvent struct {
	BaseEvent
	PaymentID  int64  `json:"payment_id"`
	Hash       string `json:"hash"`
	Status     string `json:"status"`
	Amount     string `json:"amount"`
	SystemCode string `json:"system_code,omitempty"`
	Message    string `json:"message,omitempty"`
}

func NewPaymentEvent(eventType string, paymentID int64, hash, status, amount string) *PaymentEvent {
	return &PaymentEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id": paymentID,
				"hash":       hash,
				"status":     status,
				"amount":     amount,
			},
		},
		PaymentID: paymentID,
		Hash:      hash,
		Status:    status,
		Amount:    amount,
	}
}

func (e *PaymentEvent) WithSystem(code string) *PaymentEvent {
	e.SystemCode = code
	e.Data["system_code"] = code
	return e
}

func (e *PaymentEvent) WithMessage(message string) *PaymentEvent {
	e.Message = message
	e.Data["message"] = message
	return e
}
