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

	"github.com/frahmantamala/credit-payments/internal"
	"github.com/frahmantamala/credit-payments/internal/auth"
	"github.com/frahmantamala/credit-payments/internal/core/events"
	"github.com/frahmantamala/credit-payments/internal/payment"
	"github.com/frahmantamala/credit-payments/internal/payment/postgres"
	"github.com/frahmantamala/credit-payments/internal/paymentgateway"
	"github.com/frahmantamala/credit-payments/internal/transport"
	"github.com/frahmantamala/credit-payments/internal/transport/rest"
	"github.com/frahmantamala/credit-payments/internal/transport/swagger"
	"github.com/frahmantamala/credit-payments/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const openAPIPath = "./api/openapi.yml"

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that receives gateway webhooks and serves the operator API`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Router   *chi.Mux
	EventBus *events.EventBus
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.EventBus.Wait(ctx); err != nil {
			deps.Logger.Warn("Event handlers still running at shutdown", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)

	if _, err := swagger.LoadSpec(context.Background(), openAPIPath); err != nil {
		deps.Logger.Warn("OpenAPI document unavailable", "path", openAPIPath, "error", err)
	}

	metrics := payment.NewMetrics(deps.Registry)
	store := postgres.NewStore(deps.Gorm)

	payment.NewEventHandler(metrics, deps.Logger).RegisterEventHandlers(deps.EventBus)

	reconciler := payment.NewReconciler(store,
		payment.NewPlanCatalog(cfg.Plans),
		deps.Logger,
		payment.WithPublisher(deps.EventBus),
		payment.WithMetrics(metrics),
		payment.WithStoreTimeout(cfg.Gateway.StoreTimeout))

	webhookHandler := payment.NewWebhookHandler(base,
		paymentgateway.NewVerifier(cfg.Gateway.MerchantSalt),
		reconciler,
		metrics,
		cfg.Server.MaxBodyBytes)

	tokens := auth.NewTokenManager(cfg.Security.AdminTokenSecret, cfg.Security.AdminTokenDuration)

	routeDeps := rest.Dependencies{
		DB:             deps.DB,
		AuthHandler:    auth.NewHandler(base, tokens),
		WebhookHandler: webhookHandler,
		AdminHandler:   payment.NewAdminHandler(base, store, cfg.Gateway.StoreTimeout),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIPath:    openAPIPath,
		Logger:         deps.Logger,
	}
	if cfg.Observability.Metrics.Enabled {
		routeDeps.Gatherer = deps.Registry
		routeDeps.MetricsPath = cfg.Observability.Metrics.Path
	}

	rest.RegisterAllRoutes(deps.Router, routeDeps)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		if errors.Is(err, internal.ErrMissingMerchantSalt) {
			return nil, fmt.Errorf("refusing to start: %w", err)
		}
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB, "credit_payments"),
	)

	return &Dependencies{
		Config:   config,
		Logger:   log,
		DB:       db,
		Gorm:     gdb,
		Router:   chi.NewRouter(),
		EventBus: events.NewEventBus(log),
		Registry: registry,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx connection pool with gorm.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
}
