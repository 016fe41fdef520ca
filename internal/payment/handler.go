package payment

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/payment-hub/internal/transport"
)

type ServiceAPI interface {
	CreatePaymentWithItems(ctx context.Context, data PaymentData, items []ItemInput, failFast bool) (*Payment, error)
	CreatePaymentWithItemsAndCode(ctx context.Context, code string, data PaymentData, items []ItemInput) (*Payment, error)
	GetPaymentDetails(ctx context.Context, id int64) (*PaymentDetails, error)
	GetOpenedCount(ctx context.Context) (int64, error)
	SetPaymentMethod(ctx context.Context, paymentID, systemID int64) (*Payment, error)
	SetPaymentMethodByCode(ctx context.Context, paymentID int64, code string) (*Payment, error)
	PaymentSetSuccessStatus(ctx context.Context, paymentID int64, snapshot map[string]any) (*Payment, error)
	PaymentSetCancelledStatus(ctx context.Context, paymentID int64, reason string) (*Payment, error)
	PaymentUpdatePay(ctx context.Context, paymentID int64) (*Payment, error)
	AddItem(ctx context.Context, paymentID int64, in ItemInput) (*Item, error)
	UpdateItem(ctx context.Context, paymentID, itemID int64, upd ItemUpdate) (*Item, error)
	DeleteItem(ctx context.Context, paymentID, itemID int64) error
	ListGatewayKinds() []KindInfo
	ListItemKinds() []KindInfo
}

type SystemServiceAPI interface {
	Create(ctx context.Context, in SystemInput) (*PaymentSystem, error)
	Update(ctx context.Context, id int64, in SystemInput) (*PaymentSystem, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*PaymentSystem, error)
	List(ctx context.Context) ([]*PaymentSystem, error)
}

type Handler struct {
	*transport.BaseHandler
	Payments ServiceAPI
	Systems  SystemServiceAPI
}

func NewHandler(base *transport.BaseHandler, payments ServiceAPI, systems SystemServiceAPI) *Handler {
	return &Handler{
		BaseHandler: base,
		Payments:    payments,
		Systems:     systems,
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	p, err := h.Payments.CreatePaymentWithItems(r.Context(), req.Data(), req.Items, req.ShouldFailFast())
	if err != nil {
		h.Logger.Error("CreatePayment: service error", "error", err)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, p)
}

// Checkout handles POST /api/v1/payments/checkout/{code}
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req CreatePaymentRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	p, err := h.Payments.CreatePaymentWithItemsAndCode(r.Context(), code, req.Data(), req.Items)
	if err != nil {
		h.Logger.Error("Checkout: service error", "error", err, "code", code)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, p)
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	details, err := h.Payments.GetPaymentDetails(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, details)
}

// GetOpenedCount handles GET /api/v1/payments/opened-count
func (h *Handler) GetOpenedCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.Payments.GetOpenedCount(r.Context())
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, OpenedCountResponse{Count: count})
}

// AssignGateway handles POST /api/v1/payments/{id}/gateway
func (h *Handler) AssignGateway(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req AssignGatewayRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	var p *Payment
	if req.PaymentSystemID > 0 {
		p, err = h.Payments.SetPaymentMethod(r.Context(), id, req.PaymentSystemID)
	} else {
		p, err = h.Payments.SetPaymentMethodByCode(r.Context(), id, req.Code)
	}
	if err != nil {
		h.Logger.Error("AssignGateway: service error", "error", err, "payment_id", id)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// MarkSuccess handles POST /api/v1/payments/{id}/success
func (h *Handler) MarkSuccess(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req SuccessRequest
	if r.ContentLength != 0 {
		if err := h.DecodeJSON(r, &req); err != nil {
			h.HandleError(w, err)
			return
		}
	}
	if req.Snapshot == nil {
		req.Snapshot = map[string]any{"source": "manual"}
	}

	p, err := h.Payments.PaymentSetSuccessStatus(r.Context(), id, req.Snapshot)
	if err != nil {
		h.Logger.Error("MarkSuccess: service error", "error", err, "payment_id", id)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// Cancel handles POST /api/v1/payments/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req CancelRequest
	if r.ContentLength != 0 {
		if err := h.DecodeJSON(r, &req); err != nil {
			h.HandleError(w, err)
			return
		}
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	p, err := h.Payments.PaymentSetCancelledStatus(r.Context(), id, req.Reason)
	if err != nil {
		h.Logger.Error("Cancel: service error", "error", err, "payment_id", id)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// UpdatePay handles POST /api/v1/payments/{id}/update-pay
func (h *Handler) UpdatePay(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	p, err := h.Payments.PaymentUpdatePay(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// AddItem handles POST /api/v1/payments/{id}/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var in ItemInput
	if err := h.DecodeJSON(r, &in); err != nil {
		h.HandleError(w, err)
		return
	}

	it, err := h.Payments.AddItem(r.Context(), id, in)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, it)
}

// UpdateItem handles PUT /api/v1/payments/{id}/items/{itemID}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}
	itemID, err := h.IDParam(r, "itemID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var upd ItemUpdate
	if err := h.DecodeJSON(r, &upd); err != nil {
		h.HandleError(w, err)
		return
	}

	it, err := h.Payments.UpdateItem(r.Context(), id, itemID, upd)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, it)
}

// DeleteItem handles DELETE /api/v1/payments/{id}/items/{itemID}
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}
	itemID, err := h.IDParam(r, "itemID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.Payments.DeleteItem(r.Context(), id, itemID); err != nil {
		h.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSystems handles GET /api/v1/payment-systems
func (h *Handler) ListSystems(w http.ResponseWriter, r *http.Request) {
	systems, err := h.Systems.List(r.Context())
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ListResponse[*PaymentSystem]{Data: systems})
}

// CreateSystem handles POST /api/v1/payment-systems
func (h *Handler) CreateSystem(w http.ResponseWriter, r *http.Request) {
	var in SystemInput
	if err := h.DecodeJSON(r, &in); err != nil {
		h.HandleError(w, err)
		return
	}

	sys, err := h.Systems.Create(r.Context(), in)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, sys)
}

// GetSystem handles GET /api/v1/payment-systems/{id}
func (h *Handler) GetSystem(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	sys, err := h.Systems.Get(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, sys)
}

// UpdateSystem handles PUT /api/v1/payment-systems/{id}
func (h *Handler) UpdateSystem(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var in SystemInput
	if err := h.DecodeJSON(r, &in); err != nil {
		h.HandleError(w, err)
		return
	}

	sys, err := h.Systems.Update(r.Context(), id, in)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, sys)
}

// DeleteSystem handles DELETE /api/v1/payment-systems/{id}
func (h *Handler) DeleteSystem(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.Systems.Delete(r.Context(), id); err != nil {
		h.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGatewayKinds handles GET /api/v1/kinds/gateways
func (h *Handler) ListGatewayKinds(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, ListResponse[KindInfo]{Data: h.Payments.ListGatewayKinds()})
}

// ListItemKinds handles GET /api/v1/kinds/items
func (h *Handler) ListItemKinds(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, ListResponse[KindInfo]{Data: h.Payments.ListItemKinds()})
}
