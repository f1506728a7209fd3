// Command cashmon-batch scores a file or the configured transactions sheet
// as one population and writes a CSV or XLSX report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cashmon/internal/backend"
	"cashmon/internal/cli"
	"cashmon/internal/config"
	"cashmon/internal/core"
	"cashmon/internal/features"
	"cashmon/internal/ingest"
	"cashmon/internal/log"
	"cashmon/internal/scoring"
	"cashmon/internal/services"
)

type options struct {
	input     string
	sheetName string
	fromSheet bool
	out       string
	store     bool
	sync      bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("cashmon-batch", flag.ContinueOnError)
	fs.StringVar(&o.input, "input", "", "CSV or XLSX file of transactions")
	fs.StringVar(&o.sheetName, "xlsx-sheet", "", "worksheet to read from an XLSX input (default: first)")
	fs.BoolVar(&o.fromSheet, "sheet", false, "read transactions from the configured Google Sheet")
	fs.StringVar(&o.out, "out", "-", "report path (.csv or .xlsx); - writes CSV to stdout")
	fs.BoolVar(&o.store, "store", false, "persist transactions and decisions to the configured backend")
	fs.BoolVar(&o.sync, "sync", false, "append anomalies to the alerts sheet (implies -store)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if (o.input == "") == !o.fromSheet {
		return o, errors.New("exactly one of -input or -sheet is required")
	}
	if o.sync {
		o.store = true
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, cfg := cli.Bootstrap()
	logger = logger.WithComponent(log.ComponentBatch)

	ctx, stop := cli.SignalContext()
	defer stop()

	if err := run(ctx, logger, cfg, opts); err != nil {
		logger.Error("Batch failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config, opts options) error {
	pipeline, err := cli.BuildPipeline(cfg, nil, nil)
	if err != nil {
		return err
	}

	var res *backend.BackendResult
	if opts.store || opts.fromSheet {
		backendCfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			return err
		}
		res, err = backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
		if err != nil {
			return err
		}
		defer res.Cleanup()
	}

	txns, err := loadTransactions(ctx, opts, res)
	if err != nil {
		return err
	}
	logger.Info("Transactions loaded", log.FieldBatchSize, len(txns))

	start := time.Now()
	results, err := score(ctx, pipeline, res, opts.store, txns)
	if err != nil {
		return err
	}

	anomalies := 0
	for _, r := range results {
		if r.Decision.IsAnomaly {
			anomalies++
		}
	}
	logger.Info("Batch scored",
		log.FieldBatchSize, len(results),
		"anomalies", anomalies,
		log.FieldDuration, time.Since(start).Milliseconds())

	if err := writeReport(opts.out, services.ReportRows(results)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if opts.sync {
		syncer := services.NewAlertSyncProcessor(res.Repository, res.Alerts, nil, services.AlertSyncConfig{BatchSize: cfg.AlertSyncBatchSize})
		total := 0
		for {
			n, err := syncer.SyncOnce(ctx)
			if err != nil {
				return fmt.Errorf("sync alerts: %w", err)
			}
			total += n
			if n < cfg.AlertSyncBatchSize {
				break
			}
		}
		logger.Info("Alerts appended", "count", total)
	}
	return nil
}

func loadTransactions(ctx context.Context, opts options, res *backend.BackendResult) ([]core.Transaction, error) {
	if opts.fromSheet {
		return res.Transactions.ReadTransactions(ctx)
	}
	return ingest.LoadFile(opts.input, opts.sheetName)
}

// score runs the batch through the service when storing, otherwise through
// the bare pipeline.
func score(ctx context.Context, p *scoring.Pipeline, res *backend.BackendResult, store bool, txns []core.Transaction) ([]scoring.Result, error) {
	if !store {
		return p.ScoreBatch(ctx, txns)
	}
	svc := services.NewScoringService(p, res.Repository, nil, services.ScoringServiceConfig{})
	_, scored, err := svc.ScoreBatch(ctx, txns)
	if err != nil {
		return nil, err
	}
	return services.ResultsOf(scored), nil
}

func writeReport(path string, rows []ingest.ReportRow) (err error) {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, cerr := os.Create(path)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ingest.WriteXLSXReport(w, features.FlagNames, rows)
	}
	return ingest.WriteCSVReport(w, features.FlagNames, rows)
}
