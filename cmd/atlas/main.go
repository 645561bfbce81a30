package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-erp/atlas-erp/internal/accounting/journals"
	"github.com/atlas-erp/atlas-erp/internal/app"
	"github.com/atlas-erp/atlas-erp/internal/bom"
	"github.com/atlas-erp/atlas-erp/internal/ledger"
	"github.com/atlas-erp/atlas-erp/internal/manufacturing"
	"github.com/atlas-erp/atlas-erp/internal/observability"
	"github.com/atlas-erp/atlas-erp/internal/platform/cache"
	"github.com/atlas-erp/atlas-erp/internal/platform/db"
	"github.com/atlas-erp/atlas-erp/internal/shared"
	"github.com/atlas-erp/atlas-erp/internal/stockentry"
	"github.com/atlas-erp/atlas-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, posting locks and BOM cache degraded", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	journalService := journals.NewService(journals.NewRepository(pool), shared.NewAuditLogger(pool))

	stockService := stockentry.NewService(stockentry.Deps{
		Repo:       stockentry.NewRepository(pool),
		Ledger:     ledger.NewService(ledger.NewRepository(pool)),
		BOMs:       bom.NewService(bom.NewRepository(pool), redisClient),
		Orders:     manufacturing.NewRepository(pool),
		Refs:       stockentry.NewReferenceRepository(pool),
		Master:     stockentry.NewMasterRepository(pool),
		Accounting: journalService,
		Audit:      shared.NewAuditLogger(pool),
		Locks:      shared.NewPostingLocker(redisClient),
		Idem:       shared.NewIdempotencyStore(pool),
		Metrics:    metrics,
		Events:     stockentry.NewAsyncEvents(jobsClient, logger),
		Logger:     logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Pool:              pool,
		StockEntryHandler: stockentry.NewHandler(logger, stockService),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
