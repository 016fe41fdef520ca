package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/payment-hub/internal/auth"
	"github.com/frahmantamala/payment-hub/internal/payment"
	"github.com/frahmantamala/payment-hub/internal/transport/middleware"
	"github.com/frahmantamala/payment-hub/internal/transport/swagger"
)

type RouterConfig struct {
	AllowedOrigins string
	OpenAPI        []byte
}

func RegisterAllRoutes(router *chi.Mux, db *sqlx.DB, cfg RouterConfig, authHandler *auth.Handler, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientIP)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.NotFound(NotFound)

	if len(cfg.OpenAPI) > 0 {
		router.Get(swagger.SpecPath, swagger.SpecHandler(cfg.OpenAPI))
		router.Handle("/swagger/*", swagger.Handler())
	}

	// Gateway access points are public: each gateway authenticates its own
	// provider and anything unresolvable answers 403.
	if webhookHandler != nil {
		router.Get("/api/pay/{code}/{endpoint}", webhookHandler.HandleAccessPoint)
		router.Post("/api/pay/{code}/{endpoint}", webhookHandler.HandleAccessPoint)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if authHandler == nil || paymentHandler == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(authHandler.AuthMiddleware)
			pr.Use(authHandler.RequirePermission(auth.PermissionManagePayments))

			pr.Route("/payments", func(pm chi.Router) {
				pm.Post("/", paymentHandler.CreatePayment)
				pm.Post("/checkout/{code}", paymentHandler.Checkout)
				pm.Get("/opened-count", paymentHandler.GetOpenedCount)

				pm.Route("/{id}", func(one chi.Router) {
					one.Get("/", paymentHandler.GetPayment)
					one.Post("/gateway", paymentHandler.AssignGateway)
					one.Post("/success", paymentHandler.MarkSuccess)
					one.Post("/cancel", paymentHandler.Cancel)
					one.Post("/update-pay", paymentHandler.UpdatePay)
					one.Post("/items", paymentHandler.AddItem)
					one.Put("/items/{itemID}", paymentHandler.UpdateItem)
					one.Delete("/items/{itemID}", paymentHandler.DeleteItem)
				})
			})

			pr.Route("/payment-systems", func(ps chi.Router) {
				ps.Get("/", paymentHandler.ListSystems)
				ps.Post("/", paymentHandler.CreateSystem)
				ps.Get("/{id}", paymentHandler.GetSystem)
				ps.Put("/{id}", paymentHandler.UpdateSystem)
				ps.Delete("/{id}", paymentHandler.DeleteSystem)
			})

			pr.Get("/kinds/gateways", paymentHandler.ListGatewayKinds)
			pr.Get("/kinds/items", paymentHandler.ListItemKinds)
		})
	})
}

// NotFound answers unknown routes with the AppError envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": map[string]string{"type": "NOT_FOUND", "code": "ROUTE_NOT_FOUND", "message": "route not found"},
	})
}
