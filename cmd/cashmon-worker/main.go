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
	"cashmon/internal/log"
	"cashmon/internal/metrics"
	"cashmon/internal/services"
	"cashmon/internal/worker"
)

func main() {
	logger, cfg := cli.Bootstrap()
	logger = logger.WithComponent(log.ComponentWorker)
	logger.Info("Starting cashmon-worker", "queue", cfg.AMQPQueue)

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
	backendCfg.RequireBroker = true
	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
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
	syncer := services.NewAlertSyncProcessor(res.Repository, res.Alerts, m, services.AlertSyncConfig{
		PollInterval: cfg.AlertSyncInterval,
		BatchSize:    cfg.AlertSyncBatchSize,
	})

	ctx, stop := cli.SignalContext()
	defer stop()

	if cfg.WorkerMetricsPort != "" {
		srv := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", log.FieldError, err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("Serving worker metrics", "port", cfg.WorkerMetricsPort)
	}

	if err := worker.Run(ctx, res.Broker, worker.NewScoreWorker(svc), syncer); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully", log.FieldOperation, log.OpShutdown)
}
