// Package stripe implements a card gateway kind backed by Stripe
// PaymentIntents. Each payment system carries its own API and webhook
// secrets, so clients are built per call rather than through the global key.
package stripe

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"github.com/stripe/stripe-go/v79/webhook"

	errors "github.com/frahmantamala/payment-hub/internal"
	"github.com/frahmantamala/payment-hub/internal/payment"
	"github.com/frahmantamala/payment-hub/internal/registry"
)

const (
	Alias = "stripe"

	DefaultCurrency = "usd"

	paramIntentID     = "stripe_intent_id"
	paramClientSecret = "stripe_client_secret"
	metadataHash      = "payment_hash"
	signatureHeader   = "Stripe-Signature"
)

// IntentCreator is the part of the Stripe PaymentIntent API the gateway uses.
type IntentCreator interface {
	New(params *stripego.PaymentIntentParams) (*stripego.PaymentIntent, error)
}

type ClientFactory func(secretKey string) IntentCreator

func NewStripeClient(secretKey string) IntentCreator {
	return paymentintent.Client{B: stripego.GetBackend(stripego.APIBackend), Key: secretKey}
}

type Gateway struct {
	payment.BaseGateway
	clients ClientFactory
	logger  *slog.Logger
}

func New(clients ClientFactory, logger *slog.Logger) *Gateway {
	if clients == nil {
		clients = NewStripeClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{clients: clients, logger: logger}
}

func (g *Gateway) Details() registry.Details {
	return registry.Details{
		Name:        "Stripe",
		Description: "Card payments through Stripe PaymentIntents",
	}
}

func (g *Gateway) InstanceFields() []payment.Field {
	return []payment.Field{
		{Name: "secret_key", Label: "Secret key", Type: payment.FieldSecret, Required: true},
		{Name: "webhook_secret", Label: "Webhook signing secret", Type: payment.FieldSecret, Required: true},
		{Name: "currency", Label: "Currency", Type: payment.FieldString, Default: DefaultCurrency},
	}
}

func (g *Gateway) PaymentFields() []payment.Field {
	return []payment.Field{
		{Name: paramIntentID, Label: "PaymentIntent", Type: payment.FieldString},
		{Name: paramClientSecret, Label: "Client secret", Type: payment.FieldSecret},
	}
}

func (g *Gateway) ValidateConfig(options map[string]any) error {
	key, _ := options["secret_key"].(string)
	if !strings.HasPrefix(key, "sk_") && !strings.HasPrefix(key, "rk_") {
		return errors.NewValidationFieldError("secret_key", "must be a Stripe secret or restricted key", errors.ErrCodeInvalidOptions)
	}
	whsec, _ := options["webhook_secret"].(string)
	if !strings.HasPrefix(whsec, "whsec_") {
		return errors.NewValidationFieldError("webhook_secret", "must be a Stripe webhook signing secret", errors.ErrCodeInvalidOptions)
	}
	currency, _ := options["currency"].(string)
	if len(currency) != 3 {
		return errors.NewValidationFieldError("currency", "must be a three letter ISO code", errors.ErrCodeInvalidOptions)
	}
	return nil
}

func (g *Gateway) PaymentVariant() string { return "card" }

// OnAssignedToPayment opens a PaymentIntent for the payment amount. The
// payment hash doubles as idempotency key so a retried assignment reuses the
// same intent.
func (g *Gateway) OnAssignedToPayment(ctx context.Context, sys *payment.PaymentSystem, p *payment.Payment) error {
	currency := sys.OptionString("currency")
	if currency == "" {
		currency = DefaultCurrency
	}

	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(p.Amount.Shift(2).IntPart()),
		Currency: stripego.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	if p.Description != "" {
		params.Description = stripego.String(p.Description)
	}
	params.AddMetadata(metadataHash, p.Hash)
	params.SetIdempotencyKey("payment-" + p.Hash)
	params.Context = ctx

	intent, err := g.clients(sys.OptionString("secret_key")).New(params)
	if err != nil {
		return fmt.Errorf("stripe: create payment intent: %w", err)
	}

	g.logger.Info("stripe payment intent created", "payment_id", p.ID, "intent_id", intent.ID, "system", sys.Code)
	p.SetParam(map[string]any{
		paramIntentID:     intent.ID,
		paramClientSecret: intent.ClientSecret,
	}, false)
	return nil
}

func (g *Gateway) AccessPoints() map[string]payment.AccessPointFunc {
	return map[string]payment.AccessPointFunc{
		"webhook": g.handleWebhook,
	}
}

func (g *Gateway) handleWebhook(ctx context.Context, call *payment.AccessCall) (*payment.AccessResponse, error) {
	event, err := webhook.ConstructEventWithOptions(
		call.Request.Body,
		call.Request.Header.Get(signatureHeader),
		call.System.OptionString("webhook_secret"),
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		g.logger.Warn("stripe webhook signature verification failed", "error", err, "system", call.System.Code)
		return payment.JSONResponse(http.StatusBadRequest, map[string]string{"message": "invalid signature"}), nil
	}

	switch event.Type {
	case stripego.EventTypePaymentIntentSucceeded,
		stripego.EventTypePaymentIntentPaymentFailed,
		stripego.EventTypePaymentIntentCanceled:
	default:
		g.logger.Debug("stripe webhook event ignored", "type", event.Type, "event_id", event.ID)
		return payment.JSONResponse(http.StatusOK, map[string]string{"status": "ignored"}), nil
	}

	var intent stripego.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return payment.JSONResponse(http.StatusBadRequest, map[string]string{"message": "invalid payment intent"}), nil
	}

	p, err := call.Payments.FindPaymentByHash(ctx, intent.Metadata[metadataHash])
	if err != nil {
		if stderrors.Is(err, payment.ErrPaymentNotFound) {
			g.logger.Warn("stripe webhook for unknown payment", "intent_id", intent.ID, "event_id", event.ID)
			return payment.JSONResponse(http.StatusOK, map[string]string{"status": "unknown payment"}), nil
		}
		return nil, err
	}
	if p.PaymentSystemID == nil || *p.PaymentSystemID != call.System.ID || p.ParamString(paramIntentID) != intent.ID {
		return payment.ForbiddenResponse(), nil
	}

	switch event.Type {
	case stripego.EventTypePaymentIntentPaymentFailed:
		// The intent stays open and the payer may retry with another method.
		g.logger.Info("stripe payment attempt failed", "payment_id", p.ID, "intent_id", intent.ID, "reason", cancelReason(&intent))
		return payment.JSONResponse(http.StatusOK, map[string]string{"status": "awaiting retry"}), nil
	case stripego.EventTypePaymentIntentSucceeded:
		_, err = call.Payments.PaymentSetSuccessStatus(ctx, p.ID, map[string]any{
			"stripe_event_id": event.ID,
			"intent_id":       intent.ID,
			"amount_received": intent.AmountReceived,
		})
	default:
		_, err = call.Payments.PaymentSetCancelledStatus(ctx, p.ID, cancelReason(&intent))
	}
	if stderrors.Is(err, payment.ErrNotActive) {
		return payment.JSONResponse(http.StatusOK, map[string]string{"status": "already settled"}), nil
	}
	if err != nil {
		return nil, err
	}
	return payment.JSONResponse(http.StatusOK, map[string]string{"status": "processed"}), nil
}

func cancelReason(intent *stripego.PaymentIntent) string {
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		return "Stripe: " + intent.LastPaymentError.Msg
	}
	if intent.CancellationReason != "" {
		return "Stripe: " + string(intent.CancellationReason)
	}
	return "Stripe payment was not completed"
}
