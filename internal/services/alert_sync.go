package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cashmon/internal/log"
	"cashmon/internal/sheets"
	"cashmon/internal/storage"
)

// AlertSyncConfig holds configuration for the alert sync processor
type AlertSyncConfig struct {
	// PollInterval is how often to check for pending alerts (default: 1m)
	PollInterval time.Duration

	// BatchSize is the max number of alerts appended per poll cycle (default: 50)
	BatchSize int
}

// DefaultAlertSyncConfig returns sensible defaults
func DefaultAlertSyncConfig() AlertSyncConfig {
	return AlertSyncConfig{
		PollInterval: time.Minute,
		BatchSize:    50,
	}
}

// AlertRecorder counts alerts written to the sheet.
type AlertRecorder interface {
	AlertsSynced(n int)
}

// AlertSyncProcessor copies anomalous decisions to the alerts sheet and
// marks them as synced.
type AlertSyncProcessor struct {
	storage  Repository
	writer   sheets.AlertWriter
	recorder AlertRecorder
	config   AlertSyncConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewAlertSyncProcessor creates a new alert sync processor. recorder may be nil.
func NewAlertSyncProcessor(storage Repository, writer sheets.AlertWriter, recorder AlertRecorder, config AlertSyncConfig) *AlertSyncProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultAlertSyncConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultAlertSyncConfig().BatchSize
	}
	return &AlertSyncProcessor{
		storage:  storage,
		writer:   writer,
		recorder: recorder,
		config:   config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *AlertSyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("alert sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Alert sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *AlertSyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Alert sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Alert sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *AlertSyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *AlertSyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.syncLogged(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.syncLogged(ctx)
		}
	}
}

func (p *AlertSyncProcessor) syncLogged(ctx context.Context) {
	if _, err := p.SyncOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "Alert sync failed", log.FieldComponent, log.ComponentSheets, log.FieldError, err)
	}
}

// SyncOnce appends one batch of pending alerts and returns how many were
// marked as synced. Alerts whose append fails stay pending for the next run.
func (p *AlertSyncProcessor) SyncOnce(ctx context.Context) (int, error) {
	pending, err := p.storage.PendingAlerts(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending alerts: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	rows := make([]sheets.Alert, len(pending))
	for i, a := range pending {
		rows[i] = toSheetAlert(a)
	}
	written, err := p.writer.AppendAlerts(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("append alerts: %w", err)
	}
	if written > len(pending) {
		written = len(pending)
	}

	synced := 0
	for _, a := range pending[:written] {
		if err := p.storage.MarkAlertSynced(ctx, a.ID); err != nil {
			// The row is in the sheet; a failed mark only risks a duplicate.
			slog.WarnContext(ctx, "Failed to mark alert as synced",
				log.FieldDecisionID, a.ID, log.FieldError, err)
			continue
		}
		synced++
	}
	if p.recorder != nil {
		p.recorder.AlertsSynced(synced)
	}
	slog.InfoContext(ctx, "Alerts synced", "count", synced)
	return synced, nil
}

func toSheetAlert(a storage.Alert) sheets.Alert {
	return sheets.Alert{
		DecisionID:    a.ID,
		TransactionID: a.TransactionID,
		ClientID:      a.Transaction.ClientID,
		BookingDate:   a.Transaction.BookingDate,
		NetAmount:     a.Transaction.NetAmount,
		Label:         a.Label,
		DealType:      a.DealType,
		DecisionScore: a.DecisionScore,
		ScoredAt:      a.ScoredAt,
	}
}
