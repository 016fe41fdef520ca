package middleware

import (
	"context"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/google/uuid"

	"github.com/frahmantamala/payment-hub/pkg/logger"
)

const TraceIDHeader = "X-Trace-ID"

// RequestID propagates the caller's X-Trace-ID or mints one, exposing it to
// chi's request id helpers and the context logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), chiMiddleware.RequestIDKey, traceID)
		ctx = logger.With(ctx, "traceID", traceID)

		w.Header().Set(TraceIDHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
