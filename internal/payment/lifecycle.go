package payment

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"

	"github.com/frahmantamala/payment-hub/internal/core/events"
)

// hookFailure wraps an error or panic raised by a plugged-in kind together
// with the stack at the point it was observed.
type hookFailure struct {
	cause error
	stack []byte
}

func (h *hookFailure) Error() string { return h.cause.Error() }
func (h *hookFailure) Unwrap() error { return h.cause }

func callHook(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &hookFailure{cause: fmt.Errorf("panic: %v", r), stack: debug.Stack()}
		}
	}()
	if e := fn(); e != nil {
		return &hookFailure{cause: e, stack: debug.Stack()}
	}
	return nil
}

// PaymentSetSuccessStatus settles an active payment. Every item is notified in
// id order; the first rejection rolls the change back and moves the payment to
// ERROR.
func (m *Manager) PaymentSetSuccessStatus(ctx context.Context, paymentID int64, snapshot map[string]any) (*Payment, error) {
	var (
		updated   *Payment
		rejection *ItemRejectedError
		started   bool
	)
	err := m.repo.WithinTx(ctx, func(repo RepositoryAPI) error {
		p, err := repo.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return ErrNotActive
		}
		if !p.Amount.IsPositive() {
			return ErrInvalidAmount
		}
		started = true

		paidAt := m.now()
		p.PaidAt = &paidAt
		p.CancelDeadline = nil
		p.Status = StatusSuccess

		if err := m.broadcast(ctx, repo, p); err != nil {
			stderrors.As(err, &rejection)
			return err
		}
		if err := repo.UpdatePayment(ctx, p); err != nil {
			return err
		}
		if err := repo.AppendLog(ctx, m.newLog(ctx, p.ID, LogCodeSuccess, "Payment completed", snapshot)); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if rejection != nil {
		m.errorPayment(ctx, paymentID, rejection.Error(), rejection)
		return nil, rejection
	}
	if err != nil {
		return nil, m.failTransition(ctx, paymentID, started, "Failed to complete payment", err)
	}

	m.logger.Info("payment succeeded", "payment_id", updated.ID, "amount", updated.Amount.String())
	m.publish(ctx, events.EventTypePaymentSucceeded, updated, "", "")
	return updated, nil
}

// PaymentSetCancelledStatus cancels an active payment with reason.
func (m *Manager) PaymentSetCancelledStatus(ctx context.Context, paymentID int64, reason string) (*Payment, error) {
	if reason == "" {
		reason = DefaultCancelReason
	}

	var (
		updated   *Payment
		rejection *ItemRejectedError
		started   bool
	)
	err := m.repo.WithinTx(ctx, func(repo RepositoryAPI) error {
		p, err := repo.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return ErrNotActive
		}
		started = true

		p.Message = reason
		p.CancelDeadline = nil
		p.Status = StatusCancelled

		if err := m.broadcast(ctx, repo, p); err != nil {
			stderrors.As(err, &rejection)
			return err
		}
		if err := repo.UpdatePayment(ctx, p); err != nil {
			return err
		}
		if err := repo.AppendLog(ctx, m.newLog(ctx, p.ID, LogCodeCancel, reason, map[string]any{"reason": reason})); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if rejection != nil {
		m.errorPayment(ctx, paymentID, rejection.Error(), rejection)
		return nil, rejection
	}
	if err != nil {
		return nil, m.failTransition(ctx, paymentID, started, "Failed to cancel payment", err)
	}

	m.logger.Info("payment cancelled", "payment_id", updated.ID, "reason", reason)
	m.publish(ctx, events.EventTypePaymentCancelled, updated, "", reason)
	return updated, nil
}

// PaymentUpdatePay recomputes the amount of an active payment from its items.
func (m *Manager) PaymentUpdatePay(ctx context.Context, paymentID int64) (*Payment, error) {
	var (
		updated *Payment
		started bool
	)
	err := m.repo.WithinTx(ctx, func(repo RepositoryAPI) error {
		p, err := repo.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return ErrNotActive
		}
		items, err := repo.ListItems(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrNoItems
		}
		started = true

		previous := p.Amount
		p.Amount = SumTotals(items)
		if err := repo.UpdatePayment(ctx, p); err != nil {
			return err
		}
		snapshot := map[string]any{"previous": previous.StringFixed(2), "amount": p.Amount.StringFixed(2)}
		if err := repo.AppendLog(ctx, m.newLog(ctx, p.ID, LogCodeUpdatePay, "Payment amount recalculated", snapshot)); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, m.failTransition(ctx, paymentID, started, "Failed to recalculate payment amount", err)
	}

	m.publish(ctx, events.EventTypePaymentAmountUpdated, updated, "", "")
	return updated, nil
}

// broadcast notifies every item of the payment's new status in id order and
// stops at the first rejection.
func (m *Manager) broadcast(ctx context.Context, repo RepositoryAPI, p *Payment) error {
	items, err := repo.ListItems(ctx, p.ID)
	if err != nil {
		return err
	}
	for _, it := range items {
		kind, ok := m.items.Find(it.Kind)
		if !ok {
			return &ItemRejectedError{ItemCode: it.Code, Cause: ErrUnknownItemKind}
		}
		if err := callHook(func() error { return kind.OnPaymentStatusChanged(ctx, p, it) }); err != nil {
			return &ItemRejectedError{ItemCode: it.Code, Cause: err}
		}
	}
	return nil
}

// errorPayment moves an active payment to ERROR in its own transaction and
// records the failure. It never returns an error: the caller is already
// reporting one.
func (m *Manager) errorPayment(ctx context.Context, paymentID int64, message string, cause error) {
	snapshot := map[string]any{
		"error":      cause.Error(),
		"error_type": fmt.Sprintf("%T", rootCause(cause)),
	}
	var hf *hookFailure
	if stderrors.As(cause, &hf) {
		snapshot["stack"] = string(hf.stack)
	}

	var errored *Payment
	err := m.repo.WithinTx(ctx, func(repo RepositoryAPI) error {
		p, err := repo.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return nil
		}

		p.CancelDeadline = nil
		if err := repo.AppendLog(ctx, m.newLog(ctx, p.ID, LogCodeError, message, snapshot)); err != nil {
			return err
		}
		p.Status = StatusError
		p.Message = message
		if err := repo.UpdatePayment(ctx, p); err != nil {
			return err
		}
		errored = p
		return nil
	})
	if err != nil {
		m.logger.Error("failed to move payment to error state", "error", err, "payment_id", paymentID, "cause", cause)
		return
	}
	if errored == nil {
		return
	}

	m.logger.Error("payment moved to error state", "payment_id", paymentID, "message", message, "cause", cause)
	m.publish(ctx, events.EventTypePaymentErrored, errored, "", message)
}

func rootCause(err error) error {
	for {
		next := stderrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
