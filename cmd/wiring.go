package cmd

import (
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/payment-hub/internal"
	"github.com/frahmantamala/payment-hub/internal/core/events"
	"github.com/frahmantamala/payment-hub/internal/gateways/bitcoin"
	"github.com/frahmantamala/payment-hub/internal/gateways/sandbox"
	"github.com/frahmantamala/payment-hub/internal/gateways/stripe"
	"github.com/frahmantamala/payment-hub/internal/items"
	"github.com/frahmantamala/payment-hub/internal/payment"
	paymentPostgres "github.com/frahmantamala/payment-hub/internal/payment/postgres"
	"github.com/frahmantamala/payment-hub/internal/paymentgateway"
	"github.com/frahmantamala/payment-hub/pkg/logger"
)

// gatewayOwner registers the gateways shipped with the hub.
const gatewayOwner = "core"

type Dependencies struct {
	Config    *internal.Config
	DB        *sqlx.DB
	Gorm      *gorm.DB
	Logger    *slog.Logger
	EventBus  *events.EventBus
	Simulator *paymentgateway.Simulator
	Items     *payment.ItemRegistry
	Gateways  *payment.GatewayRegistry
	Manager   *payment.Manager
	Systems   *payment.SystemService
}

type dependencyOptions struct {
	database  bool
	simulator bool
}

func initializeDependencies(opts dependencyOptions) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	deps := &Dependencies{
		Config: config,
		Logger: logger.LoggerWrapper(),
	}

	if opts.simulator {
		sim := config.Payment.Simulator
		deps.Simulator = paymentgateway.NewSimulator(paymentgateway.Config{
			MaxWorkers:   sim.MaxWorkers,
			JobQueueSize: sim.JobQueueSize,
			SuccessRate:  sim.SuccessRate,
			MaxDelay:     sim.MaxDelay,
		}, deps.Logger.With("component", "settlement-simulator"))
	}

	deps.Items, deps.Gateways = buildRegistries(config, deps.Simulator, deps.Logger)

	if !opts.database {
		return deps, nil
	}

	deps.DB, err = initDB(config.Database)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.Gorm, err = initGorm(deps.DB)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	deps.EventBus = events.NewEventBus(deps.Logger)
	payment.NewEventHandler(deps.Logger).RegisterEventHandlers(deps.EventBus)

	repo := paymentPostgres.NewPaymentRepository(deps.Gorm)
	deps.Manager = payment.NewManager(repo, deps.Items, deps.Gateways, deps.Logger,
		payment.WithPublisher(deps.EventBus),
		payment.WithDefaultCancelTimeout(config.Payment.DefaultCancelTimeout),
	)
	deps.Systems = payment.NewSystemService(repo, deps.Gateways, deps.Logger)

	return deps, nil
}

// Close stops the simulator, drains pending events and closes the database.
func (d *Dependencies) Close() {
	if d.Simulator != nil {
		d.Simulator.Shutdown()
	}
	if d.EventBus != nil {
		d.EventBus.Wait()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("database close error", "error", err)
		}
	}
}

func buildRegistries(cfg *internal.Config, sim *paymentgateway.Simulator, lg *slog.Logger) (*payment.ItemRegistry, *payment.GatewayRegistry) {
	itemRegistry := payment.NewItemRegistry(lg)
	items.Register(itemRegistry)

	// a nil *Simulator must not become a non-nil Submitter
	var submitter sandbox.Submitter
	if sim != nil {
		submitter = sim
	}

	gatewayRegistry := payment.NewGatewayRegistry(lg)
	gatewayRegistry.Register(gatewayOwner, map[string]payment.GatewayKind{
		bitcoin.Alias: bitcoin.New(),
		stripe.Alias:  stripe.New(stripe.NewStripeClient, lg),
		sandbox.Alias: sandbox.New(submitter, cfg.Payment.AccessPointURL),
	})

	return itemRegistry, gatewayRegistry
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm so both see the same limits.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
}
