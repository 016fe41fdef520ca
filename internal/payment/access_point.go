package payment

import (
	"context"
	"net/http"

	errors "github.com/frahmantamala/payment-hub/internal"
)

// RunAccessPoint dispatches an inbound gateway call to the endpoint declared by
// the gateway kind of the payment system with the given code. Anything that
// cannot be resolved answers 403 without revealing which part failed.
func (m *Manager) RunAccessPoint(ctx context.Context, code, endpoint string, req *AccessRequest) *AccessResponse {
	if code == "" || endpoint == "" {
		return ForbiddenResponse()
	}

	sys, err := m.repo.GetSystemByCode(ctx, code)
	if err != nil {
		m.logger.Debug("access point system lookup failed", "code", code, "error", err)
		return ForbiddenResponse()
	}
	gw, ok := m.gateways.Find(sys.GatewayType)
	if !ok {
		m.logger.Warn("access point for unregistered gateway kind", "code", code, "gateway_type", sys.GatewayType)
		return ForbiddenResponse()
	}
	handler, ok := gw.AccessPoints()[endpoint]
	if !ok || handler == nil {
		return ForbiddenResponse()
	}

	var resp *AccessResponse
	err = callHook(func() error {
		r, err := handler(ctx, &AccessCall{System: sys, Request: req, Payments: m})
		resp = r
		return err
	})
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Type != errors.ErrorTypeInternal {
			m.logger.Warn("access point rejected request", "code", code, "endpoint", endpoint, "error", err)
			return JSONResponse(appErr.StatusCode, map[string]string{"message": appErr.Message})
		}
		m.logger.Error("access point failed", "code", code, "endpoint", endpoint, "error", err)
		return JSONResponse(http.StatusInternalServerError, map[string]string{"message": ErrOperationFailed.Message})
	}
	if resp == nil {
		return TextResponse(http.StatusOK, "OK")
	}
	return resp
}
