package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/finbook-go/internal/config"
	"github.com/boddenberg/finbook-go/internal/domain"
	"github.com/boddenberg/finbook-go/internal/handler"
	"github.com/boddenberg/finbook-go/internal/infra/cache"
	"github.com/boddenberg/finbook-go/internal/infra/memstore"
	"github.com/boddenberg/finbook-go/internal/infra/observability"
	"github.com/boddenberg/finbook-go/internal/infra/recordapi"
	"github.com/boddenberg/finbook-go/internal/infra/resilience"
	"github.com/boddenberg/finbook-go/internal/port"
	"github.com/boddenberg/finbook-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("cache_max_entries", cfg.CacheMaxEntries),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "finbook")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Caches ---
	caches := service.ReportCaches{
		Categories: cache.New[[]domain.CategoryAggregation](cfg.CacheTTL, cfg.CacheMaxEntries),
		Daily:      cache.New[[]domain.DailySummary](cfg.CacheTTL, cfg.CacheMaxEntries),
		Monthly:    cache.New[domain.MonthlySummary](cfg.CacheTTL, cfg.CacheMaxEntries),
	}

	// --- Record store backend ---
	var store port.RecordStore
	switch cfg.StoreBackend {
	case "rest":
		logger.Info("using remote record store", zap.String("record_api_url", cfg.RecordAPIURL))
		store = recordapi.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.RecordAPIURL,
			cfg.RecordAPIKey,
			resilience.NewBreaker("recordapi"),
			resilience.Config{
				MaxRetries:     cfg.MaxRetries,
				InitialBackoff: cfg.InitialBackoff,
				MaxConcurrency: cfg.MaxConcurrency,
			},
			logger,
		)
	default:
		logger.Info("using in-memory record store")
		store = memstore.New()
	}

	// --- Services ---
	reportSvc := service.NewReportService(store, caches, metrics, logger)
	balanceSvc := service.NewBalanceService(store, metrics, logger)

	// Both listeners ride every mutation: balances first, then cache
	// invalidation, so the next report read sees fresh balances.
	txSvc := service.NewTransactionService(store, metrics, logger, balanceSvc, reportSvc)
	catalogSvc := service.NewCatalogService(store, balanceSvc, metrics, logger, balanceSvc, reportSvc)

	// --- Startup reconciliation ---
	if cfg.ReconcileOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := balanceSvc.ReconcileAll(ctx); err != nil {
			logger.Warn("startup balance reconciliation failed", zap.Error(err))
		}
		cancel()
	}

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Reports:      reportSvc,
		Balances:     balanceSvc,
		Transactions: txSvc,
		Catalog:      catalogSvc,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
