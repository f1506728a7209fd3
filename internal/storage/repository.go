package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"

	"cashmon/internal/core"
	"cashmon/internal/features"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a transaction or decision does not exist.
var ErrNotFound = errors.New("not found")

type (
	// Decision is a stored scoring outcome.
	Decision struct {
		ID            int64
		TransactionID string
		RunID         string
		Label         string
		NAVPct        float64
		DealType      int
		Flags         features.Flags
		IsAnomaly     bool
		DecisionScore float64
		ScoredAt      time.Time
		AlertSyncedAt time.Time // zero until appended to the alerts sheet
	}

	// Alert is an anomalous decision with the transaction it was made on.
	Alert struct {
		Decision
		Transaction core.Transaction
	}
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	schema, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if schema.Dirty {
		db.Close()
		return nil, fmt.Errorf("schema version %d is dirty", schema.Version)
	}
	slog.Info("Database ready", "path", dbPath, "schema_version", schema.Version)

	return &SQLiteRepository{db: db, queries: New(db), now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveTransaction inserts a transaction or replaces the stored copy with
// the same ID.
func (r *SQLiteRepository) SaveTransaction(ctx context.Context, t core.Transaction) error {
	if t.ID == "" {
		return &core.ValidationError{Field: "id", Err: core.ErrMissingField}
	}
	if err := r.queries.UpsertTransaction(ctx, r.upsertParams(t)); err != nil {
		return fmt.Errorf("save transaction %s: %w", t.ID, err)
	}
	slog.DebugContext(ctx, "Transaction saved", "transaction_id", t.ID)
	return nil
}

// SaveTransactions stores a batch atomically.
func (r *SQLiteRepository) SaveTransactions(ctx context.Context, txns []core.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	for _, t := range txns {
		if t.ID == "" {
			return &core.ValidationError{Field: "id", Err: core.ErrMissingField}
		}
		if err := q.UpsertTransaction(ctx, r.upsertParams(t)); err != nil {
			return fmt.Errorf("save transaction %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "Transactions saved", "count", len(txns))
	return nil
}

func (r *SQLiteRepository) upsertParams(t core.Transaction) UpsertTransactionParams {
	return UpsertTransactionParams{
		ID:          t.ID,
		BookingDate: t.BookingDate,
		ValueDate:   t.ValueDate,
		Description: t.Description,
		NetAmount:   t.NetAmount,
		ClientID:    t.ClientID,
		Category:    t.Category,
		MarketValue: t.MarketValue,
		CreatedAt:   r.now().UnixMilli(),
	}
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return row.transaction(), nil
}

// ListReference returns the transactions booked from since to until, both
// inclusive, oldest first. It is the population single transactions are
// scored against.
func (r *SQLiteRepository) ListReference(ctx context.Context, since, until civil.Date) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsBetween(ctx, since, until)
	if err != nil {
		return nil, fmt.Errorf("list reference %s..%s: %w", since, until, err)
	}
	out := make([]core.Transaction, len(rows))
	for i, row := range rows {
		out[i] = row.transaction()
	}
	return out, nil
}

// SaveDecision stores a scoring outcome and returns its ID.
func (r *SQLiteRepository) SaveDecision(ctx context.Context, d Decision) (int64, error) {
	flags, err := json.Marshal(d.Flags)
	if err != nil {
		return 0, fmt.Errorf("encode flags: %w", err)
	}
	scoredAt := d.ScoredAt
	if scoredAt.IsZero() {
		scoredAt = r.now()
	}
	id, err := r.queries.InsertDecision(ctx, InsertDecisionParams{
		TransactionID: d.TransactionID,
		RunID:         d.RunID,
		Label:         d.Label,
		NAVPct:        d.NAVPct,
		DealType:      int64(d.DealType),
		Flags:         string(flags),
		IsAnomaly:     d.IsAnomaly,
		DecisionScore: d.DecisionScore,
		ScoredAt:      scoredAt.UnixMilli(),
	})
	if err != nil {
		return 0, fmt.Errorf("save decision for %s: %w", d.TransactionID, err)
	}

	slog.InfoContext(ctx, "Decision saved",
		"decision_id", id,
		"transaction_id", d.TransactionID,
		"is_anomaly", d.IsAnomaly,
		"decision_score", d.DecisionScore)
	return id, nil
}

// ListAnomalies returns the most recent anomalous decisions.
func (r *SQLiteRepository) ListAnomalies(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := r.queries.ListAnomalies(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	return toAlerts(rows)
}

// PendingAlerts returns anomalies not yet written to the alerts sheet,
// oldest first.
func (r *SQLiteRepository) PendingAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := r.queries.ListPendingAlerts(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}
	return toAlerts(rows)
}

// MarkAlertSynced records that a decision was appended to the alerts sheet.
func (r *SQLiteRepository) MarkAlertSynced(ctx context.Context, id int64) error {
	n, err := r.queries.MarkAlertSynced(ctx, id, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark alert synced: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pending alert %d: %w", id, ErrNotFound)
	}
	slog.InfoContext(ctx, "Alert marked as synced", "decision_id", id)
	return nil
}

func (row TransactionRow) transaction() core.Transaction {
	return core.Transaction{
		ID:          row.ID,
		BookingDate: row.BookingDate,
		ValueDate:   row.ValueDate,
		Description: row.Description,
		NetAmount:   row.NetAmount,
		ClientID:    row.ClientID,
		Category:    row.Category,
		MarketValue: row.MarketValue,
	}
}

func toAlerts(rows []AlertRow) ([]Alert, error) {
	out := make([]Alert, len(rows))
	for i, row := range rows {
		var flags features.Flags
		if err := json.Unmarshal([]byte(row.Flags), &flags); err != nil {
			return nil, fmt.Errorf("decode flags of decision %d: %w", row.ID, err)
		}
		d := Decision{
			ID:            row.ID,
			TransactionID: row.TransactionID,
			RunID:         row.RunID,
			Label:         row.Label,
			NAVPct:        row.NAVPct,
			DealType:      int(row.DealType),
			Flags:         flags,
			IsAnomaly:     row.IsAnomaly,
			DecisionScore: row.DecisionScore,
			ScoredAt:      time.UnixMilli(row.ScoredAt),
		}
		if row.AlertSyncedAt.Valid {
			d.AlertSyncedAt = time.UnixMilli(row.AlertSyncedAt.Int64)
		}
		out[i] = Alert{Decision: d, Transaction: row.Transaction.transaction()}
	}
	return out, nil
}
