// Package bitcoin implements an on-chain gateway kind: the payer sends coins to
// the configured cash address quoting a payment code, and a chain watcher
// reports confirmations back through the confirm access point.
package bitcoin

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	errors "github.com/frahmantamala/payment-hub/internal"
	"github.com/frahmantamala/payment-hub/internal/payment"
	"github.com/frahmantamala/payment-hub/internal/registry"
)

const (
	Alias = "bitcoin"

	DefaultConfirmations = 6
	maxConfirmations     = 12

	paramPaymentCode = "payment_code"
	paramAddress     = "address"
)

type Gateway struct {
	payment.BaseGateway
	newCode func() string
}

func New() *Gateway {
	return &Gateway{newCode: newPaymentCode}
}

func newPaymentCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

func (g *Gateway) Details() registry.Details {
	return registry.Details{
		Name:        "Bitcoin",
		Description: "On-chain payment settled after the configured number of confirmations",
	}
}

func (g *Gateway) InstanceFields() []payment.Field {
	return []payment.Field{
		{Name: "cash", Label: "Receiving address", Type: payment.FieldString, Required: true},
		{Name: "max_confirmations", Label: "Confirmations required", Type: payment.FieldInteger, Default: DefaultConfirmations},
	}
}

func (g *Gateway) PaymentFields() []payment.Field {
	return []payment.Field{
		{Name: paramPaymentCode, Label: "Payment code", Type: payment.FieldString},
		{Name: paramAddress, Label: "Receiving address", Type: payment.FieldString},
	}
}

func (g *Gateway) ValidateConfig(options map[string]any) error {
	n, ok := payment.OptionInt(options, "max_confirmations")
	if !ok || n < 1 || n > maxConfirmations {
		return errors.NewValidationFieldError("max_confirmations", "must be between 1 and 12", errors.ErrCodeInvalidOptions)
	}
	return nil
}

func (g *Gateway) PaymentVariant() string { return "crypto" }

// OnPaymentCreatedOrReassigned hands the payer a fresh payment code.
func (g *Gateway) OnPaymentCreatedOrReassigned(ctx context.Context, sys *payment.PaymentSystem, p *payment.Payment) error {
	address := sys.OptionString("cash")
	if address == "" {
		return stderrors.New("bitcoin: payment system has no cash address")
	}
	p.SetParam(map[string]any{
		paramPaymentCode: g.newCode(),
		paramAddress:     address,
	}, true)
	return nil
}

func (g *Gateway) AccessPoints() map[string]payment.AccessPointFunc {
	return map[string]payment.AccessPointFunc{
		"confirm": g.confirm,
	}
}

// ConfirmRequest is posted by the chain watcher for every new confirmation.
type ConfirmRequest struct {
	Hash          string `json:"hash"`
	PaymentCode   string `json:"payment_code"`
	TxID          string `json:"txid"`
	Confirmations int    `json:"confirmations"`
}

func (g *Gateway) confirm(ctx context.Context, call *payment.AccessCall) (*payment.AccessResponse, error) {
	var req ConfirmRequest
	if err := json.Unmarshal(call.Request.Body, &req); err != nil || req.Hash == "" || req.PaymentCode == "" {
		return payment.JSONResponse(http.StatusBadRequest, map[string]string{"message": "invalid confirmation"}), nil
	}

	p, err := call.Payments.FindPaymentByHash(ctx, req.Hash)
	if err != nil {
		if stderrors.Is(err, payment.ErrPaymentNotFound) {
			return payment.ForbiddenResponse(), nil
		}
		return nil, err
	}
	if p.PaymentSystemID == nil || *p.PaymentSystemID != call.System.ID || p.ParamString(paramPaymentCode) != req.PaymentCode {
		return payment.ForbiddenResponse(), nil
	}

	required, ok := call.System.OptionInt("max_confirmations")
	if !ok {
		required = DefaultConfirmations
	}
	if int64(req.Confirmations) < required {
		return payment.JSONResponse(http.StatusAccepted, map[string]any{
			"status":        "pending",
			"confirmations": req.Confirmations,
			"required":      required,
		}), nil
	}

	_, err = call.Payments.PaymentSetSuccessStatus(ctx, p.ID, map[string]any{
		"txid":          req.TxID,
		"confirmations": req.Confirmations,
	})
	if stderrors.Is(err, payment.ErrNotActive) {
		return payment.JSONResponse(http.StatusOK, map[string]string{"status": "already settled"}), nil
	}
	if err != nil {
		return nil, err
	}
	return payment.JSONResponse(http.StatusOK, map[string]string{"status": "confirmed"}), nil
}
