package payment

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payment-hub/internal"
	"github.com/frahmantamala/payment-hub/internal/transport"
)

// maxAccessPointBody caps what a gateway may post to an access point.
const maxAccessPointBody = 1 << 20

type AccessPointRunner interface {
	RunAccessPoint(ctx context.Context, code, endpoint string, req *AccessRequest) *AccessResponse
}

// WebhookHandler exposes gateway access points at /api/pay/{code}/{endpoint}.
type WebhookHandler struct {
	*transport.BaseHandler
	runner AccessPointRunner
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, runner AccessPointRunner) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		runner:      runner,
	}
}

func (h *WebhookHandler) HandleAccessPoint(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	endpoint := chi.URLParam(r, "endpoint")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAccessPointBody))
	if err != nil {
		h.Logger.Error("failed to read access point body", "error", err, "code", code, "endpoint", endpoint)
		writeAccessResponse(w, ForbiddenResponse())
		return
	}

	req := &AccessRequest{
		Method:   r.Method,
		Header:   r.Header.Clone(),
		Query:    r.URL.Query(),
		Body:     body,
		ClientIP: errors.ClientIPFromContext(r.Context()),
	}

	resp := h.runner.RunAccessPoint(r.Context(), code, endpoint, req)

	h.Logger.Info("access point handled",
		"code", code,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"client_ip", req.ClientIP)

	writeAccessResponse(w, resp)
}

func writeAccessResponse(w http.ResponseWriter, resp *AccessResponse) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
