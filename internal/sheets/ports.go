package sheets

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"cashmon/internal/core"
)

// Alert is one flagged transaction as written to the alerts sheet.
type Alert struct {
	DecisionID    int64
	TransactionID string
	ClientID      string
	BookingDate   civil.Date
	NetAmount     float64
	Label         string
	DealType      int
	DecisionScore float64
	ScoredAt      time.Time
}

// Row renders the alert in sheet column order.
func (a Alert) Row() []any {
	return []any{
		a.ScoredAt.UTC().Format(time.RFC3339),
		a.TransactionID,
		a.ClientID,
		a.BookingDate.String(),
		a.NetAmount,
		a.Label,
		a.DealType,
		a.DecisionScore,
	}
}

// AlertHeader names the columns produced by Alert.Row.
var AlertHeader = []any{"scored_at", "transaction_id", "client_id", "booking_date", "net_amount", "label", "deal_type", "decision_score"}

// Ports for outbound adapters.
type (
	TransactionReader interface {
		ReadTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	// AlertWriter appends alerts in order and returns how many were written.
	AlertWriter interface {
		AppendAlerts(ctx context.Context, alerts []Alert) (int, error)
	}
)
