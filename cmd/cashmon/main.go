package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cashmon/internal/backend"
	"cashmon/internal/cache"
	"cashmon/internal/cli"
	apphttp "cashmon/internal/http"
	"cashmon/internal/log"
	"cashmon/internal/metrics"
	"cashmon/internal/middleware/ratelimit"
	"cashmon/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger, cfg := cli.Bootstrap()
	logger.Info("Starting cashmon", "port", cfg.Port, "backend", cfg.DataBackend)

	m := metrics.New()
	caches := cache.NewManager(logger.Logger)
	defer caches.Stop()

	pipeline, err := cli.BuildPipeline(cfg, m, caches)
	if err != nil {
		logger.Error("Failed to build scoring pipeline", log.FieldError, err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	svc := services.NewScoringService(pipeline, res.Repository, res.Publisher(), services.ScoringServiceConfig{
		ReferenceWindowDays: cfg.ReferenceWindowDays,
	})

	ctx, stop := cli.SignalContext()
	defer stop()

	// Without a broker there is no worker process, so alerts are synced here.
	var syncer *services.AlertSyncProcessor
	if res.Broker == nil {
		syncer = services.NewAlertSyncProcessor(res.Repository, res.Alerts, m, services.AlertSyncConfig{
			PollInterval: cfg.AlertSyncInterval,
			BatchSize:    cfg.AlertSyncBatchSize,
		})
		if err := syncer.Start(ctx); err != nil {
			logger.Error("Failed to start alert sync", log.FieldError, err)
			os.Exit(1)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:    logger,
		Telemetry: m,
		RateLimit: ratelimit.DefaultConfig(),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	if syncer != nil {
		if err := syncer.Stop(shutdownCtx); err != nil {
			logger.Error("Alert sync shutdown error", log.FieldError, err)
		}
	}
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}
