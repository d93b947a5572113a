package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/meridian-crm/meridian-crm/internal/app"
	"github.com/meridian-crm/meridian-crm/internal/challan"
	"github.com/meridian-crm/meridian-crm/internal/conversion"
	"github.com/meridian-crm/meridian-crm/internal/directory"
	"github.com/meridian-crm/meridian-crm/internal/observability"
	"github.com/meridian-crm/meridian-crm/internal/platform/cache"
	"github.com/meridian-crm/meridian-crm/internal/platform/db"
	"github.com/meridian-crm/meridian-crm/internal/rbac"
	"github.com/meridian-crm/meridian-crm/internal/shared"
	"github.com/meridian-crm/meridian-crm/internal/stock"
	"github.com/meridian-crm/meridian-crm/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, directory cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	rbacMiddleware := rbac.New(logger)
	metrics := observability.NewMetrics()

	stockRepo := stock.NewRepository(dbpool)
	ledger := stock.NewLedger(stockRepo, auditLogger, idempotencyStore, stock.LedgerConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	})

	stockAdapter := challan.NewStockAdapter(ledger, stockRepo)
	challanRepo := challan.NewRepository(dbpool, stockAdapter)
	challanService := challan.NewService(challanRepo, stockAdapter, auditLogger, approvalRecorder, challan.ServiceConfig{
		AllocationTTL: cfg.AllocationTTL,
	})

	leadRepo := conversion.NewRepository(dbpool)
	conversionService := conversion.NewService(leadRepo, challanService, auditLogger)

	directoryRepo := directory.NewRepository(dbpool)
	directoryResolver := directory.NewResolver(directoryRepo, redisClient, cfg.DirectoryCacheTTL, logger)

	stockHandler := stock.NewHandler(logger, ledger, rbacMiddleware)
	challanHandler := challan.NewHandler(logger, challanService, rbacMiddleware)
	conversionHandler := conversion.NewHandler(logger, conversionService, rbacMiddleware)
	directoryHandler := directory.NewHandler(directoryResolver, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ChallanHandler:    challanHandler,
		StockHandler:      stockHandler,
		ConversionHandler: conversionHandler,
		DirectoryHandler:  directoryHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
