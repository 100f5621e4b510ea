package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finbot/internal/amqp"
	"finbot/internal/backend"
	"finbot/internal/cache"
	"finbot/internal/config"
	"finbot/internal/report"
	"finbot/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting report-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage backend
	result, err := backend.NewFactory(logger).CreateLedger(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize storage backend", "error", err, "backend", cfg.DBBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	// Statistics cache with periodic expiry sweeps
	statsCache := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(statsCache)
	cacheManager.StartCleanup(cfg.CacheTTL)
	defer cacheManager.Stop()

	service := services.NewFinanceService(result.Ledger, statsCache).
		WithDefaultRange(cfg.DefaultRangeDays)

	// AMQP publisher is optional; without it reports are only logged.
	var publisher report.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, reports will be logged only", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - reports will be logged only")
	}

	builder := report.NewBuilder(service)
	scheduler := report.NewScheduler(result.Ledger, builder, publisher, cfg.ReportSchedule)
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start report scheduler", "error", err)
		os.Exit(1)
	}

	// Catch up on reports missed while the worker was down.
	logger.Info("Running initial report sweep...")
	if err := scheduler.Sweep(ctx); err != nil {
		logger.Error("Initial report sweep failed", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down report-worker...")
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown timed out waiting for the report sweep", "error", err)
		return
	}
	logger.Info("Report-worker shutdown complete")
}
