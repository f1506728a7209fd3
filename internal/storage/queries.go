package storage

import (
	"context"
	"database/sql"

	"cloud.google.com/go/civil"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL statements of the repository. Bind it to a
// transaction with WithTx.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const upsertTransaction = `
INSERT INTO transactions (
    id, booking_date, value_date, description, net_amount,
    client_id, category, market_value, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    booking_date = excluded.booking_date,
    value_date   = excluded.value_date,
    description  = excluded.description,
    net_amount   = excluded.net_amount,
    client_id    = excluded.client_id,
    category     = excluded.category,
    market_value = excluded.market_value`

type UpsertTransactionParams struct {
	ID          string
	BookingDate civil.Date
	ValueDate   civil.Date
	Description string
	NetAmount   float64
	ClientID    string
	Category    string
	MarketValue float64
	CreatedAt   int64
}

func (q *Queries) UpsertTransaction(ctx context.Context, arg UpsertTransactionParams) error {
	_, err := q.db.ExecContext(ctx, upsertTransaction,
		arg.ID, arg.BookingDate, arg.ValueDate, arg.Description, arg.NetAmount,
		arg.ClientID, arg.Category, arg.MarketValue, arg.CreatedAt)
	return err
}

const transactionColumns = `id, booking_date, value_date, description, net_amount, client_id, category, market_value`

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (TransactionRow, error) {
	var r TransactionRow
	err := q.db.QueryRowContext(ctx, getTransaction, id).Scan(r.dest()...)
	return r, err
}

const listTransactionsBetween = `SELECT ` + transactionColumns + `
FROM transactions
WHERE booking_date BETWEEN ? AND ?
ORDER BY booking_date, id`

func (q *Queries) ListTransactionsBetween(ctx context.Context, since, until civil.Date) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsBetween, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TransactionRow
	for rows.Next() {
		var r TransactionRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const insertDecision = `
INSERT INTO decisions (
    transaction_id, run_id, label, nav_pct, deal_type, flags,
    is_anomaly, decision_score, scored_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type InsertDecisionParams struct {
	TransactionID string
	RunID         string
	Label         string
	NAVPct        float64
	DealType      int64
	Flags         string
	IsAnomaly     bool
	DecisionScore float64
	ScoredAt      int64
}

func (q *Queries) InsertDecision(ctx context.Context, arg InsertDecisionParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertDecision,
		arg.TransactionID, arg.RunID, arg.Label, arg.NAVPct, arg.DealType, arg.Flags,
		arg.IsAnomaly, arg.DecisionScore, arg.ScoredAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const alertColumns = `
    d.id, d.transaction_id, d.run_id, d.label, d.nav_pct, d.deal_type, d.flags,
    d.is_anomaly, d.decision_score, d.scored_at, d.alert_synced_at,
    t.id, t.booking_date, t.value_date, t.description, t.net_amount,
    t.client_id, t.category, t.market_value`

const listAnomalies = `SELECT` + alertColumns + `
FROM decisions d
JOIN transactions t ON t.id = d.transaction_id
WHERE d.is_anomaly = 1
ORDER BY d.scored_at DESC, d.id DESC
LIMIT ?`

func (q *Queries) ListAnomalies(ctx context.Context, limit int64) ([]AlertRow, error) {
	return q.alerts(ctx, listAnomalies, limit)
}

const listPendingAlerts = `SELECT` + alertColumns + `
FROM decisions d
JOIN transactions t ON t.id = d.transaction_id
WHERE d.is_anomaly = 1 AND d.alert_synced_at IS NULL
ORDER BY d.id
LIMIT ?`

func (q *Queries) ListPendingAlerts(ctx context.Context, limit int64) ([]AlertRow, error) {
	return q.alerts(ctx, listPendingAlerts, limit)
}

func (q *Queries) alerts(ctx context.Context, query string, limit int64) ([]AlertRow, error) {
	rows, err := q.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AlertRow
	for rows.Next() {
		var r AlertRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const markAlertSynced = `UPDATE decisions SET alert_synced_at = ? WHERE id = ? AND alert_synced_at IS NULL`

func (q *Queries) MarkAlertSynced(ctx context.Context, id, syncedAt int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markAlertSynced, syncedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type TransactionRow struct {
	ID          string
	BookingDate civil.Date
	ValueDate   civil.Date
	Description string
	NetAmount   float64
	ClientID    string
	Category    string
	MarketValue float64
}

func (r *TransactionRow) dest() []any {
	return []any{
		&r.ID, &r.BookingDate, &r.ValueDate, &r.Description, &r.NetAmount,
		&r.ClientID, &r.Category, &r.MarketValue,
	}
}

type AlertRow struct {
	ID            int64
	TransactionID string
	RunID         string
	Label         string
	NAVPct        float64
	DealType      int64
	Flags         string
	IsAnomaly     bool
	DecisionScore float64
	ScoredAt      int64
	AlertSyncedAt sql.NullInt64
	Transaction   TransactionRow
}

func (r *AlertRow) dest() []any {
	return append([]any{
		&r.ID, &r.TransactionID, &r.RunID, &r.Label, &r.NAVPct, &r.DealType, &r.Flags,
		&r.IsAnomaly, &r.DecisionScore, &r.ScoredAt, &r.AlertSyncedAt,
	}, r.Transaction.dest()...)
}
