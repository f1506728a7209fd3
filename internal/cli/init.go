// Package cli holds the start-up steps shared by the cashmon binaries.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cashmon/internal/cache"
	"cashmon/internal/config"
	"cashmon/internal/log"
	"cashmon/internal/scoring"
)

// cacheSweepInterval is how often expired cluster labels are dropped.
const cacheSweepInterval = 5 * time.Minute

// LoadEnvFile loads .env for local development. A missing file is not an
// error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger installs a stdout logger at the given level and format as the
// default.
func SetupLogger(level, format string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Format:    format,
		Output:    os.Stdout,
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and exits the process when it
// is invalid.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// Bootstrap loads .env, reads LOG_LEVEL, LOG_FORMAT and configuration, and
// returns the logger and validated config.
func Bootstrap() (*log.Logger, *config.Config) {
	LoadEnvFile()
	logger := SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	return logger, LoadAndValidateConfig(logger)
}

// BuildPipeline loads the model artifact and wires the keyword clusterer
// behind an LRU cache registered with caches. recorder may be nil.
func BuildPipeline(cfg *config.Config, recorder scoring.Recorder, caches *cache.Manager) (*scoring.Pipeline, error) {
	artifact, err := scoring.LoadArtifact(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model artifact: %w", err)
	}
	keywords, err := scoring.NewKeywordClusterer(artifact)
	if err != nil {
		return nil, fmt.Errorf("build clusterer: %w", err)
	}
	model, err := scoring.NewLinearModel(artifact)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}

	labels := cache.NewLRUCache[int](cfg.ClusterCacheSize, cfg.ClusterCacheTTL)
	if caches != nil {
		caches.Register("cluster_labels", labels)
		caches.StartCleanup(cacheSweepInterval)
	}

	opts := scoring.Options{
		MaxTokens:   cfg.MaxLabelTokens,
		ExcludeSelf: cfg.OutlierExcludeSelf,
	}
	if recorder != nil {
		opts.Recorder = recorder
	}
	pipeline, err := scoring.NewPipeline(artifact, model, scoring.NewCachedClusterer(keywords, labels), opts)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	slog.Info("Scoring pipeline ready",
		"model_path", cfg.ModelPath,
		"features", len(pipeline.Schema()),
		"exclude_self", cfg.OutlierExcludeSelf)
	return pipeline, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
