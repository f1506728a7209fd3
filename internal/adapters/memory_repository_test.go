package adapters

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashmon/internal/core"
	"cashmon/internal/storage"
)

func txn(id, booking string) core.Transaction {
	d, err := civil.ParseDate(booking)
	if err != nil {
		panic(err)
	}
	return core.Transaction{ID: id, BookingDate: d, ValueDate: d, Description: "fee", NetAmount: 10, MarketValue: 1000}
}

func TestMemoryRepositoryTransactions(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	err := r.SaveTransaction(ctx, core.Transaction{})
	assert.ErrorIs(t, err, core.ErrMissingField)

	require.NoError(t, r.SaveTransactions(ctx, []core.Transaction{
		txn("b", "2024-02-01"), txn("a", "2024-02-01"), txn("c", "2023-12-31"),
	}))
	assert.ErrorIs(t, r.SaveTransactions(ctx, []core.Transaction{txn("d", "2024-01-01"), {}}), core.ErrMissingField)
	_, err = r.GetTransaction(ctx, "d")
	assert.ErrorIs(t, err, storage.ErrNotFound, "failed batch stores nothing")

	updated := txn("a", "2024-02-01")
	updated.NetAmount = 99
	require.NoError(t, r.SaveTransaction(ctx, updated))
	got, err := r.GetTransaction(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 99.0, got.NetAmount)

	ref, err := r.ListReference(ctx, civil.Date{Year: 2024, Month: time.January, Day: 1}, civil.Date{Year: 2024, Month: time.December, Day: 31})
	require.NoError(t, err)
	require.Len(t, ref, 2)
	assert.Equal(t, "a", ref[0].ID)
	assert.Equal(t, "b", ref[1].ID)

	ref, err = r.ListReference(ctx, civil.Date{Year: 2023, Month: time.December, Day: 1}, civil.Date{Year: 2024, Month: time.January, Day: 31})
	require.NoError(t, err)
	require.Len(t, ref, 1, "bookings after until are excluded")
	assert.Equal(t, "c", ref[0].ID)
}

func TestMemoryRepositoryAlerts(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	base := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, r.SaveTransaction(ctx, txn("t1", "2024-01-01")))

	id1, err := r.SaveDecision(ctx, storage.Decision{TransactionID: "t1", IsAnomaly: true, ScoredAt: base})
	require.NoError(t, err)
	_, err = r.SaveDecision(ctx, storage.Decision{TransactionID: "t1", IsAnomaly: false, ScoredAt: base.Add(time.Minute)})
	require.NoError(t, err)
	id3, err := r.SaveDecision(ctx, storage.Decision{TransactionID: "t1", IsAnomaly: true, ScoredAt: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(3), id3)

	anomalies, err := r.ListAnomalies(ctx, 10)
	require.NoError(t, err)
	require.Len(t, anomalies, 2)
	assert.Equal(t, id3, anomalies[0].ID)
	assert.Equal(t, "t1", anomalies[0].Transaction.ID)

	limited, err := r.ListAnomalies(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	pending, err := r.PendingAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)

	require.NoError(t, r.MarkAlertSynced(ctx, id1))
	assert.ErrorIs(t, r.MarkAlertSynced(ctx, id1), storage.ErrNotFound)
	assert.ErrorIs(t, r.MarkAlertSynced(ctx, 2), storage.ErrNotFound, "normal decisions are never pending")
	assert.ErrorIs(t, r.MarkAlertSynced(ctx, 42), storage.ErrNotFound)

	pending, err = r.PendingAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id3, pending[0].ID)
}
