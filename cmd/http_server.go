package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-hub/api"
	"github.com/frahmantamala/payment-hub/internal/auth"
	"github.com/frahmantamala/payment-hub/internal/payment"
	paymentPostgres "github.com/frahmantamala/payment-hub/internal/payment/postgres"
	"github.com/frahmantamala/payment-hub/internal/transport"
	"github.com/frahmantamala/payment-hub/internal/transport/rest"
)

var withSweeper bool

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server serving the back-office API and gateway access points`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func init() {
	httpServerCmd.Flags().BoolVar(&withSweeper, "sweep", false, "also run the overdue payment sweeper in this process")
}

func startHTTPServer() {
	deps, err := initializeDependencies(dependencyOptions{database: true, simulator: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	router, err := setupRoutes(deps)
	if err != nil {
		deps.Logger.Error("failed to set up routes", "error", err)
		return
	}

	cfg := deps.Config.Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if withSweeper {
		sweeper := payment.NewSweeper(paymentPostgres.NewOverdueScanner(deps.DB), deps.Manager,
			deps.Config.Payment.SweepInterval, deps.Config.Payment.SweepBatchSize, deps.Logger)
		go func() {
			_ = sweeper.Run(ctx)
		}()
	}

	serverErrChan := make(chan error, 1)
	go func() {
		deps.Logger.Info("Starting HTTP server", "address", addr)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("Received signal, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) (*chi.Mux, error) {
	if _, err := api.Load(context.Background()); err != nil {
		return nil, err
	}

	base := transport.NewBaseHandler(deps.Logger)
	tokens := auth.NewJWTTokenGenerator(deps.Config.Security.JWTSecret, deps.Config.Security.JWTIssuer, deps.Config.Security.AccessTokenTTL)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, deps.DB,
		rest.RouterConfig{AllowedOrigins: deps.Config.Server.AllowedOrigins, OpenAPI: api.Document()},
		auth.NewHandler(tokens, deps.Logger),
		payment.NewHandler(base, deps.Manager, deps.Systems),
		payment.NewWebhookHandler(base, deps.Manager),
		deps.Logger.With(slog.String("component", "http")),
	)
	return router, nil
}
