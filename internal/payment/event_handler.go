package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payment-hub/internal/core/events"
)

// EventHandler writes one structured log line per payment lifecycle event.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{
		logger: logger,
	}
}

func (h *EventHandler) HandlePaymentEvent(ctx context.Context, event events.Event) error {
	paymentEvent, ok := event.(*events.PaymentEvent)
	if !ok {
		h.logger.Error("invalid event type for payment event handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentEvent, got %T", event)
	}

	level := slog.LevelInfo
	if paymentEvent.EventType() == events.EventTypePaymentErrored {
		level = slog.LevelWarn
	}

	h.logger.Log(ctx, level, "payment lifecycle event",
		"event_type", paymentEvent.EventType(),
		"event_id", paymentEvent.EventID(),
		"payment_id", paymentEvent.PaymentID,
		"hash", paymentEvent.Hash,
		"status", paymentEvent.Status,
		"amount", paymentEvent.Amount,
		"system_code", paymentEvent.SystemCode,
		"message", paymentEvent.Message)

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	for _, eventType := range events.PaymentEventTypes {
		eventBus.Subscribe(eventType, h.HandlePaymentEvent)
	}

	h.logger.Info("payment event handlers registered", "handlers", events.PaymentEventTypes)
}
