// Package backend assembles the storage, broker and spreadsheet adapters
// selected by configuration.
package backend

import (
	"context"

	"cashmon/internal/amqp"
	"cashmon/internal/services"
	"cashmon/internal/sheets"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult holds the adapters for one process. Broker is nil when no
// AMQP broker is configured or reachable.
type BackendResult struct {
	Repository   services.Repository
	Broker       *amqp.Client
	Transactions sheets.TransactionReader
	Alerts       sheets.AlertWriter
	Cleanup      CleanupFunc
}

// Publisher returns the broker as a services.Publisher, or a nil interface
// when there is none.
func (r *BackendResult) Publisher() services.Publisher {
	if r.Broker == nil {
		return nil
	}
	return r.Broker
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation.
type Config struct {
	Type BackendType

	SQLiteDBPath string

	// AMQP is optional unless RequireBroker is set.
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPResultQueue string
	RequireBroker   bool

	// A spreadsheet ID selects the Google Sheets adapters; without one the
	// in-memory sheets store seeded from DataDirectory is used.
	GoogleSpreadsheetID      string
	GoogleTransactionsSheet  string
	GoogleAlertsSheet        string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	DataDirectory string
}

// BackendType selects where transactions and decisions are stored.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
