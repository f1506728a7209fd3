// Package adapters holds storage implementations that stand in for the
// SQLite repository.
package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"cashmon/internal/core"
	"cashmon/internal/storage"
)

// MemoryRepository keeps transactions and decisions in process memory with
// the same ordering and error semantics as storage.SQLiteRepository.
type MemoryRepository struct {
	mu        sync.RWMutex
	txns      map[string]core.Transaction
	decisions []storage.Decision
	now       func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{txns: make(map[string]core.Transaction), now: time.Now}
}

func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) SaveTransaction(_ context.Context, t core.Transaction) error {
	if t.ID == "" {
		return &core.ValidationError{Field: "id", Err: core.ErrMissingField}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns[t.ID] = t
	return nil
}

// SaveTransactions stores every transaction or none.
func (r *MemoryRepository) SaveTransactions(_ context.Context, txns []core.Transaction) error {
	for _, t := range txns {
		if t.ID == "" {
			return &core.ValidationError{Field: "id", Err: core.ErrMissingField}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range txns {
		r.txns[t.ID] = t
	}
	return nil
}

func (r *MemoryRepository) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.txns[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	return t, nil
}

// ListReference returns transactions booked from since to until, both
// inclusive, ordered by booking date then ID.
func (r *MemoryRepository) ListReference(_ context.Context, since, until civil.Date) ([]core.Transaction, error) {
	r.mu.RLock()
	out := make([]core.Transaction, 0, len(r.txns))
	for _, t := range r.txns {
		if !t.BookingDate.Before(since) && !t.BookingDate.After(until) {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BookingDate != out[j].BookingDate {
			return out[i].BookingDate.Before(out[j].BookingDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) SaveDecision(_ context.Context, d storage.Decision) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.ID = int64(len(r.decisions) + 1)
	if d.ScoredAt.IsZero() {
		d.ScoredAt = r.now()
	}
	d.ScoredAt = time.UnixMilli(d.ScoredAt.UnixMilli())
	d.AlertSyncedAt = time.Time{}
	r.decisions = append(r.decisions, d)
	return d.ID, nil
}

// ListAnomalies returns anomalous decisions, newest first. A non-positive
// limit returns all of them.
func (r *MemoryRepository) ListAnomalies(_ context.Context, limit int) ([]storage.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []storage.Alert
	for i := len(r.decisions) - 1; i >= 0; i-- {
		if d := r.decisions[i]; d.IsAnomaly {
			out = append(out, r.alert(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScoredAt.After(out[j].ScoredAt) })
	return truncate(out, limit), nil
}

// PendingAlerts returns anomalies not yet marked as synced, oldest first.
func (r *MemoryRepository) PendingAlerts(_ context.Context, limit int) ([]storage.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []storage.Alert
	for _, d := range r.decisions {
		if d.IsAnomaly && d.AlertSyncedAt.IsZero() {
			out = append(out, r.alert(d))
		}
	}
	return truncate(out, limit), nil
}

func (r *MemoryRepository) MarkAlertSynced(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 1 || id > int64(len(r.decisions)) {
		return fmt.Errorf("pending alert %d: %w", id, storage.ErrNotFound)
	}
	d := &r.decisions[id-1]
	if !d.IsAnomaly || !d.AlertSyncedAt.IsZero() {
		return fmt.Errorf("pending alert %d: %w", id, storage.ErrNotFound)
	}
	d.AlertSyncedAt = time.UnixMilli(r.now().UnixMilli())
	return nil
}

// alert must be called with r.mu held.
func (r *MemoryRepository) alert(d storage.Decision) storage.Alert {
	return storage.Alert{Decision: d, Transaction: r.txns[d.TransactionID]}
}

func truncate(alerts []storage.Alert, limit int) []storage.Alert {
	if limit > 0 && len(alerts) > limit {
		return alerts[:limit]
	}
	return alerts
}
