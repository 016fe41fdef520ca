package payment

import (
	stderrors "errors"
	"fmt"

	errors "github.com/frahmantamala/payment-hub/internal"
)

var (
	ErrPaymentNotFound        = errors.NewNotFoundError("payment not found", errors.ErrCodePaymentNotFound)
	ErrItemNotFound           = errors.NewNotFoundError("payment item not found", errors.ErrCodeItemNotFound)
	ErrGatewayNotFound        = errors.NewNotFoundError("payment system not found", errors.ErrCodeGatewayNotFound)
	ErrGatewayDisabled        = errors.NewValidationError("payment system is disabled", errors.ErrCodeGatewayDisabled)
	ErrGatewayAlreadyAssigned = errors.NewConflictError("payment already has a payment system", errors.ErrCodeGatewayAlreadyAssigned)
	ErrUnknownItemKind        = errors.NewValidationError("unknown item kind", errors.ErrCodeUnknownItemKind)
	ErrUnknownGatewayKind     = errors.NewValidationError("unknown gateway kind", errors.ErrCodeUnknownGatewayKind)
	ErrNoItems                = errors.NewValidationError("payment has no items", errors.ErrCodeNoItems)
	ErrBelowMinimumPay        = errors.NewValidationError("items total is below the payment system minimum", errors.ErrCodeBelowMinimumPay)
	ErrInvalidAmount          = errors.NewValidationError("payment amount must be greater than zero", errors.ErrCodeInvalidAmount)
	ErrNotActive              = errors.NewConflictError("payment is not active", errors.ErrCodePaymentNotActive)
	ErrPaymentNotOpen         = errors.NewConflictError("payment items can only change while the payment is new", errors.ErrCodePaymentNotOpen)
	ErrConcurrentUpdate       = errors.NewConflictError("payment was modified concurrently, retry the operation", errors.ErrCodeConcurrentUpdate)
	ErrSystemCodeTaken        = errors.NewConflictError("payment system code is already taken", errors.ErrCodeSystemCodeTaken)
	ErrSystemInUse            = errors.NewConflictError("payment system is referenced by payments", errors.ErrCodeSystemInUse)
	ErrItemRejected           = errors.NewExternalError("item rejected the payment status change", errors.ErrCodeItemRejectedTransition)
	ErrOperationFailed        = errors.NewExternalError("operation failed, please contact support", errors.ErrCodeOperationFailed)
)

// Storage-level signals returned by RepositoryAPI implementations.
var (
	ErrStaleVersion  = stderrors.New("payment version is stale")
	ErrDuplicateHash = stderrors.New("payment hash already exists")
)

// ItemRejectedError reports the first item that refused a status change.
type ItemRejectedError struct {
	ItemCode string
	Cause    error
}

func (e *ItemRejectedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("item %s rejected the status change", e.ItemCode)
	}
	return fmt.Sprintf("item %s rejected the status change: %v", e.ItemCode, e.Cause)
}

func (e *ItemRejectedError) Unwrap() error {
	return e.Cause
}

func (e *ItemRejectedError) AppError() *errors.AppError {
	return ErrItemRejected.WithDetails(map[string]string{"item_code": e.ItemCode})
}
