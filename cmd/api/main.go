package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/canopyhq/canopy-backend/api/routes"
	"github.com/canopyhq/canopy-backend/internal/inventory"
	"github.com/canopyhq/canopy-backend/internal/loyalty"
	"github.com/canopyhq/canopy-backend/internal/pricing"
	"github.com/canopyhq/canopy-backend/internal/products"
	"github.com/canopyhq/canopy-backend/internal/purchaseorders"
	"github.com/canopyhq/canopy-backend/internal/sales"
	"github.com/canopyhq/canopy-backend/pkg/config"
	"github.com/canopyhq/canopy-backend/pkg/db"
	"github.com/canopyhq/canopy-backend/pkg/instance"
	"github.com/canopyhq/canopy-backend/pkg/logger"
	"github.com/canopyhq/canopy-backend/pkg/metrics"
	"github.com/canopyhq/canopy-backend/pkg/migrate"
	"github.com/canopyhq/canopy-backend/pkg/outbox"
	"github.com/canopyhq/canopy-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	conn := dbClient.DB()
	productRepo := products.NewRepository(conn)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	guard := inventory.NewGuard()

	loyaltyPrograms := loyalty.NewProgramStore(conn, cfg.Loyalty.DefaultPointsPerDollar)
	loyaltyEngine, err := loyalty.NewEngine(loyaltyPrograms)
	if err != nil {
		logg.Error(context.Background(), "failed to create loyalty engine", err)
		os.Exit(1)
	}

	salesService, err := sales.NewService(
		sales.NewRepository(conn),
		productRepo,
		dbClient,
		guard,
		loyaltyEngine,
		outboxService,
		logg,
		sales.Options{
			DefaultTaxRate: cfg.Sales.DefaultTaxRate,
			Metrics:        metrics.NewSalesMetrics(prometheus.DefaultRegisterer),
		},
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create sales service", err)
		os.Exit(1)
	}

	poService, err := purchaseorders.NewService(
		purchaseorders.NewRepository(conn),
		productRepo,
		dbClient,
		guard,
		outboxService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create purchase order service", err)
		os.Exit(1)
	}

	pricingService, err := pricing.NewService(pricing.NewRepository(conn), productRepo, dbClient, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := instance.GetID()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Idempotency:    redisClient,
			HTTPMetrics:    metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
			MetricsHandler: promhttp.Handler(),
			Sales:          salesService,
			PurchaseOrders: poService,
			Pricing:        pricingService,
			Loyalty:        loyaltyPrograms,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
