package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/config"
	"github.com/boddenberg/mesada-api-go/internal/handler"
	"github.com/boddenberg/mesada-api-go/internal/infra/cache"
	"github.com/boddenberg/mesada-api-go/internal/infra/memory"
	"github.com/boddenberg/mesada-api-go/internal/infra/observability"
	"github.com/boddenberg/mesada-api-go/internal/infra/resilience"
	"github.com/boddenberg/mesada-api-go/internal/infra/supabase"
	"github.com/boddenberg/mesada-api-go/internal/port"
	"github.com/boddenberg/mesada-api-go/internal/scheduler"
	"github.com/boddenberg/mesada-api-go/internal/service"

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
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Float64("approval_threshold", cfg.ApprovalThreshold),
		zap.Duration("tick_interval", cfg.TickInterval),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("jwt_refresh_ttl", cfg.JWTRefreshTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "mesada-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	balanceCache := cache.New[float64](cfg.CacheTTL)
	defer balanceCache.Close()

	// --- Stores ---
	var store port.Store
	var authStore port.AuthStore

	if cfg.UseSupabase && cfg.SupabaseURL != "" {
		logger.Info("using Supabase as data backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		resilienceCfg := resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
			MaxConcurrency: cfg.MaxConcurrency,
		}
		cb := resilience.NewCircuitBreaker("supabase")
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		supabaseClient := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			cb,
			resilienceCfg,
			logger,
		)
		store = supabaseClient
		authStore = supabaseClient
	} else {
		logger.Info("using in-memory data backend")
		store = memory.NewStore()
		authStore = memory.NewAuthStore()
	}

	// --- Services ---
	clock := port.SystemClock{}
	authSvc := service.NewAuthService(authStore, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, logger)
	authorizer := service.NewFamilyAuthorizer(authStore, store)
	ledgerSvc := service.NewLedgerService(store, balanceCache, metrics, logger, clock, cfg.ApprovalThreshold)
	allowanceSvc := service.NewAllowanceService(store, ledgerSvc, metrics, logger)
	interestSvc := service.NewInterestService(store, ledgerSvc, metrics, logger)
	goalSvc := service.NewGoalService(store, ledgerSvc, clock, logger)
	approvalSvc := service.NewApprovalService(store, ledgerSvc, authorizer, metrics, logger, clock)
	childSvc := service.NewChildService(store, authSvc, clock, logger)

	// --- Scheduler ---
	runner := scheduler.NewRunner(store, allowanceSvc, interestSvc, clock, logger, cfg.TickInterval, cfg.TickConcurrency)
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go runner.Start(schedCtx)

	// --- Router ---
	router := handler.NewRouter(&handler.Services{
		Auth:       authSvc,
		Children:   childSvc,
		Ledger:     ledgerSvc,
		Goals:      goalSvc,
		Approvals:  approvalSvc,
		Allowance:  allowanceSvc,
		Interest:   interestSvc,
		Authorizer: authorizer,
		Runner:     runner,
		Store:      store,
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
	stopScheduler()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
