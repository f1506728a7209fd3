// Package memory is an in-process stand-in for the spreadsheet adapter,
// used when no spreadsheet is configured and in tests.
package memory

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"cashmon/internal/core"
	"cashmon/internal/ingest"
	ports "cashmon/internal/sheets"
)

type Store struct {
	mu     sync.Mutex
	txns   []core.Transaction
	alerts []ports.Alert
}

var (
	_ ports.TransactionReader = (*Store)(nil)
	_ ports.AlertWriter       = (*Store)(nil)
)

func New(txns []core.Transaction) *Store {
	return &Store{txns: append([]core.Transaction(nil), txns...)}
}

// NewFromDir seeds the store from base/seed_transactions.csv. A missing
// file yields an empty store; an unreadable one is logged and ignored.
func NewFromDir(base string) *Store {
	path := filepath.Join(base, "seed_transactions.csv")
	txns, err := ingest.LoadFile(path, "")
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Ignoring seed transactions", "path", path, "error", err)
		}
		return New(nil)
	}
	return New(txns)
}

// ReadTransactions returns a copy of the seeded transactions.
func (s *Store) ReadTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.txns...), nil
}

// AppendAlerts records the alerts in order.
func (s *Store) AppendAlerts(_ context.Context, alerts []ports.Alert) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alerts...)
	return len(alerts), nil
}

// Alerts returns everything appended so far.
func (s *Store) Alerts() []ports.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Alert(nil), s.alerts...)
}
