package payment

import (
	errors "github.com/frahmantamala/payment-hub/internal"
	"github.com/frahmantamala/payment-hub/internal/core/common/validation"
)

// CreatePaymentRequest is the body of POST /payments and POST /payments/checkout/{code}.
type CreatePaymentRequest struct {
	Description string         `json:"description"`
	UserID      *int64         `json:"user_id,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
	Items       []ItemInput    `json:"items"`
	FailFast    *bool          `json:"fail_fast,omitempty"`
}

func (r *CreatePaymentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("description", r.Description).MaxLength(1000)
	validator.Field("items", len(r.Items)).MinInt(1, errors.ErrCodeNoItems)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (r *CreatePaymentRequest) Data() PaymentData {
	return PaymentData{Description: r.Description, UserID: r.UserID, Options: r.Options}
}

// ShouldFailFast defaults to true: unknown item kinds abort creation.
func (r *CreatePaymentRequest) ShouldFailFast() bool {
	return r.FailFast == nil || *r.FailFast
}

// AssignGatewayRequest selects a payment system by id or by code.
type AssignGatewayRequest struct {
	PaymentSystemID int64  `json:"payment_system_id,omitempty"`
	Code            string `json:"code,omitempty"`
}

func (r *AssignGatewayRequest) Validate() error {
	if r.PaymentSystemID <= 0 && r.Code == "" {
		return errors.NewValidationFieldError("payment_system_id", "payment_system_id or code is required", errors.ErrCodeValidationFailed)
	}
	return nil
}

type SuccessRequest struct {
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (r *CancelRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("reason", r.Reason).MaxLength(500)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type OpenedCountResponse struct {
	Count int64 `json:"count"`
}

type ListResponse[T any] struct {
	Data []T `json:"data"`
}
