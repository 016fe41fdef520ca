// Package sandbox is a test gateway kind that settles payments through the
// local settlement simulator.
package sandbox

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/frahmantamala/payment-hub/internal/payment"
	"github.com/frahmantamala/payment-hub/internal/paymentgateway"
	"github.com/frahmantamala/payment-hub/internal/registry"
)

const (
	Alias = "sandbox"

	callbackEndpoint = "callback"
	paramReference   = "sandbox_reference"
)

type Submitter interface {
	Submit(job paymentgateway.SettlementJob) error
}

// URLBuilder returns the public URL of an access point.
type URLBuilder func(code, endpoint string) string

type Gateway struct {
	payment.BaseGateway
	simulator Submitter
	urlFor    URLBuilder
}

func New(simulator Submitter, urlFor URLBuilder) *Gateway {
	return &Gateway{simulator: simulator, urlFor: urlFor}
}

func (g *Gateway) Details() registry.Details {
	return registry.Details{
		Name:        "Sandbox",
		Description: "Simulated settlement for development and testing",
	}
}

func (g *Gateway) InstanceFields() []payment.Field {
	return []payment.Field{
		{Name: "callback_token", Label: "Callback token", Type: payment.FieldSecret, Required: true},
	}
}

func (g *Gateway) PaymentVariant() string { return "sandbox" }

// OnPaymentSystemChanged runs after the assignment is committed, so the
// callback can never race the WAITING write.
func (g *Gateway) OnPaymentSystemChanged(ctx context.Context, sys *payment.PaymentSystem, p *payment.Payment) error {
	if g.simulator == nil {
		return stderrors.New("sandbox: settlement simulator is not running")
	}
	return g.simulator.Submit(paymentgateway.SettlementJob{
		Hash:        p.Hash,
		Amount:      p.Amount.StringFixed(2),
		CallbackURL: g.urlFor(sys.Code, callbackEndpoint),
		Token:       sys.OptionString("callback_token"),
	})
}

func (g *Gateway) AccessPoints() map[string]payment.AccessPointFunc {
	return map[string]payment.AccessPointFunc{
		callbackEndpoint: g.callback,
	}
}

func (g *Gateway) callback(ctx context.Context, call *payment.AccessCall) (*payment.AccessResponse, error) {
	token := call.System.OptionString("callback_token")
	given := call.Request.Header.Get(paymentgateway.TokenHeader)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(given)) != 1 {
		return payment.ForbiddenResponse(), nil
	}

	var result paymentgateway.SettlementResult
	if err := json.Unmarshal(call.Request.Body, &result); err != nil || result.Hash == "" {
		return payment.JSONResponse(http.StatusBadRequest, map[string]string{"message": "invalid settlement"}), nil
	}

	p, err := call.Payments.FindPaymentByHash(ctx, result.Hash)
	if err != nil {
		if stderrors.Is(err, payment.ErrPaymentNotFound) {
			return payment.ForbiddenResponse(), nil
		}
		return nil, err
	}
	if p.PaymentSystemID == nil || *p.PaymentSystemID != call.System.ID {
		return payment.ForbiddenResponse(), nil
	}

	switch result.Status {
	case paymentgateway.SettlementSuccess:
		_, err = call.Payments.PaymentSetSuccessStatus(ctx, p.ID, map[string]any{
			paramReference: result.Reference,
			"amount":       result.Amount,
		})
	case paymentgateway.SettlementFailed:
		_, err = call.Payments.PaymentSetCancelledStatus(ctx, p.ID, fmt.Sprintf("Sandbox: %s", result.Reason))
	default:
		return payment.JSONResponse(http.StatusBadRequest, map[string]string{"message": "unknown settlement status"}), nil
	}
	// A payment settled by another path is still acknowledged.
	if err != nil && !stderrors.Is(err, payment.ErrNotActive) {
		return nil, err
	}
	return payment.TextResponse(http.StatusOK, "OK"), nil
}
