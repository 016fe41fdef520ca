package auth

import (
	"log/slog"
	"net/http"

	errors "github.com/frahmantamala/payment-hub/internal"
	"github.com/frahmantamala/payment-hub/internal/transport"
	"github.com/frahmantamala/payment-hub/pkg/logger"
)

// Handler guards back-office routes.
type Handler struct {
	*transport.BaseHandler
	Tokens TokenValidator
}

func NewHandler(tokens TokenValidator, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Tokens:      tokens,
	}
}

// AuthMiddleware verifies the bearer token and stores the caller in the
// request context, both as the auth principal and as the acting user id the
// payment log records.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.HandleError(w, errors.ErrInvalidToken.WithDetails(map[string]string{"reason": "missing authorization token"}))
			return
		}

		claims, err := h.Tokens.ValidateToken(token)
		if err != nil {
			h.Logger.Warn("token validation failed", "error", err)
			h.HandleError(w, err)
			return
		}

		user, err := claims.User()
		if err != nil {
			h.Logger.Warn("token carries no usable subject", "error", err)
			h.HandleError(w, err)
			return
		}

		ctx := ContextWithUser(r.Context(), user)
		ctx = errors.ContextWithUserID(ctx, user.ID)
		ctx = logger.With(ctx, "user_id", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission rejects callers holding none of permissions.
func (h *Handler) RequirePermission(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				h.HandleError(w, errors.ErrInvalidToken)
				return
			}

			if !user.HasAnyPermission(permissions...) {
				h.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", user.ID,
					"required_permissions", permissions,
					"user_permissions", user.Permissions)
				h.HandleError(w, errors.ErrMissingPermissions)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
