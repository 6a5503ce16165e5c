// Package main provides the lookup tracker server entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lookup-tracker/internal/adapter"
	"github.com/lookup-tracker/internal/api"
	"github.com/lookup-tracker/internal/config"
	"github.com/lookup-tracker/internal/job"
	"github.com/lookup-tracker/internal/logging"
	"github.com/lookup-tracker/internal/notify"
	"github.com/lookup-tracker/internal/scheduler"
	"github.com/lookup-tracker/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.Info("Lookup tracker starting")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Postgres")
		os.Exit(1)
	}
	defer postgres.Close()

	jobRepo := storage.NewJobRepository(postgres)

	// Connect to Redis (optional - manual checks fall back to the provider)
	var resultCache job.ResultCache
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, continuing without result cache")
	} else {
		defer redis.Close()
		resultCache = storage.NewResultCache(redis, cfg.Poll.ResultCacheTTL)
	}

	// Provider client; a missing API key is fatal here, before any call
	provider, err := adapter.NewProviderClient(&cfg.Provider)
	if err != nil {
		logger.WithError(err).Error("Failed to create provider client")
		os.Exit(1)
	}

	// Notifier: Telegram when a token is configured, log output otherwise
	var notifier notify.Notifier
	if cfg.Notify.TelegramToken != "" {
		notifier, err = notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.Timeout)
		if err != nil {
			logger.WithError(err).Error("Failed to create Telegram notifier")
			os.Exit(1)
		}
		logger.Info("Telegram notifier configured")
	} else {
		notifier = notify.NewLogNotifier(logger)
		logger.Warn("No Telegram token configured, notifications go to the log")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New()
	if err := sched.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start scheduler")
		os.Exit(1)
	}

	tracker, err := job.NewTracker(&job.TrackerConfig{
		Provider:  provider,
		Store:     jobRepo,
		Scheduler: sched,
		Notifier:  notifier,
		Cache:     resultCache,
		Schedule:  cfg.Poll.Schedule,
		Logger:    logger,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to create tracker")
		os.Exit(1)
	}

	// Re-arm jobs left pending by the previous process before accepting new
	// submissions.
	if err := tracker.Resume(ctx); err != nil {
		logger.WithError(err).Error("Failed to resume pending jobs")
		os.Exit(1)
	}

	server := api.NewServer(&api.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, tracker, provider, jobRepo)

	go func() {
		logger.WithFields(map[string]interface{}{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
		}).Info("HTTP server listening")
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	case <-ctx.Done():
	}

	if err := server.Shutdown(); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown failed")
	}
	cancel()
	sched.Stop()
	logger.Info("Lookup tracker stopped")
}
