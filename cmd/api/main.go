package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emilythestrangee/baraza/backend/internal/config"
	"github.com/emilythestrangee/baraza/backend/internal/counters"
	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/handlers"
	"github.com/emilythestrangee/baraza/backend/internal/karma"
	"github.com/emilythestrangee/baraza/backend/internal/logging"
	"github.com/emilythestrangee/baraza/backend/internal/metrics"
	"github.com/emilythestrangee/baraza/backend/internal/retry"
	"github.com/emilythestrangee/baraza/backend/internal/server"
	"github.com/emilythestrangee/baraza/backend/internal/votes"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gormDB := db.GetDB()
	agg := karma.NewAggregator(gormDB, cfg.Karma, logger, m)
	scheduler := karma.NewScheduler(agg, cfg.Karma, logger, m)
	projection := counters.NewProjection(gormDB, logger, m)
	ledger := votes.NewLedger(gormDB, projection,
		votes.WithRetryPolicy(retry.Policy{
			MaxAttempts:     cfg.Vote.MaxAttempts,
			ConflictRetries: cfg.Vote.ConflictRetries,
			InitialInterval: cfg.Vote.InitialBackoff,
			MaxInterval:     cfg.Vote.MaxBackoff,
		}),
		votes.WithNotifier(scheduler),
		votes.WithLogger(logger),
		votes.WithMetrics(m),
	)

	handler := handlers.NewHandler(handlers.Deps{
		DB:          gormDB,
		Ledger:      ledger,
		Projection:  projection,
		Karma:       agg,
		Scheduler:   scheduler,
		Concurrency: cfg.Karma.Concurrency,
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenTTL:    cfg.TokenTTL,
		Logger:      logger,
	})
	httpServer := server.New(db, handler, []byte(cfg.JWTSecret), reg, logger).HTTPServer(cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stop()
		logger.Info("shutting down gracefully, press Ctrl+C again to force")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exiting")
	return nil
}
