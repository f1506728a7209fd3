package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cashmon/internal/adapters"
	"cashmon/internal/amqp"
	"cashmon/internal/config"
	"cashmon/internal/services"
	gsheet "cashmon/internal/sheets/google"
	"cashmon/internal/sheets/memory"
	"cashmon/internal/storage"
)

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *slog.Logger
	dial   func(url, exchange, queue, resultQueue string) (*amqp.Client, error)
}

func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger, dial: amqp.NewClient}
}

// CreateBackend opens the repository, the optional broker and the sheets
// adapters. On error everything opened so far is closed.
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo, err := f.createRepository(cfg)
	if err != nil {
		return nil, err
	}
	res := &BackendResult{Repository: repo}

	if cfg.Type == SQLiteBackend && cfg.AMQPURL != "" {
		res.Broker, err = f.dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPResultQueue)
		switch {
		case err != nil && cfg.RequireBroker:
			repo.Close()
			return nil, fmt.Errorf("connect to AMQP broker: %w", err)
		case err != nil:
			f.logger.Warn("Failed to initialize AMQP client, scoring in-line", "error", err)
			res.Broker = nil
		default:
			f.logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue,
				"result_queue", cfg.AMQPResultQueue)
		}
	}

	if err := f.createSheets(ctx, cfg, res); err != nil {
		res.close()
		return nil, err
	}

	res.Cleanup = res.close
	f.logger.Info("Backend initialized",
		"type", cfg.Type,
		"amqp_enabled", res.Broker != nil,
		"google_sheets", cfg.GoogleSpreadsheetID != "")
	return res, nil
}

func (f *DefaultFactory) createRepository(cfg Config) (services.Repository, error) {
	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite repository", "db_path", cfg.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized in-memory repository")
		return adapters.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *DefaultFactory) createSheets(ctx context.Context, cfg Config, res *BackendResult) error {
	if cfg.GoogleSpreadsheetID == "" {
		dir := cfg.DataDirectory
		if dir == "" {
			dir = "data"
		}
		store := memory.NewFromDir(dir)
		res.Transactions, res.Alerts = store, store
		f.logger.Info("Using in-memory sheets store", "data_directory", dir)
		return nil
	}

	cli, err := gsheet.NewFromConfig(ctx, &config.Config{
		GoogleSpreadsheetID:      cfg.GoogleSpreadsheetID,
		GoogleTransactionsSheet:  cfg.GoogleTransactionsSheet,
		GoogleAlertsSheet:        cfg.GoogleAlertsSheet,
		GoogleServiceAccountFile: cfg.GoogleServiceAccountFile,
		GoogleServiceAccountJSON: cfg.GoogleServiceAccountJSON,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	res.Transactions, res.Alerts = cli, cli
	f.logger.Info("Initialized Google Sheets adapters",
		"transactions_sheet", cfg.GoogleTransactionsSheet,
		"alerts_sheet", cfg.GoogleAlertsSheet)
	return nil
}

func (r *BackendResult) close() error {
	var errs []error
	if r.Broker != nil {
		if err := r.Broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if r.Repository != nil {
		if err := r.Repository.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
