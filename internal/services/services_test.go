package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashmon/internal/adapters"
	"cashmon/internal/amqp"
	"cashmon/internal/core"
	"cashmon/internal/features"
	"cashmon/internal/scoring"
	"cashmon/internal/storage"
)

// badWordScorer flags every transaction whose label contains a blacklisted
// word, so outcomes do not depend on calibrated weights.
type badWordScorer struct{}

func (badWordScorer) Features() []string { return features.Schema(features.DefaultDealTypes) }

func (badWordScorer) Score(v features.FeatureVector) (core.Decision, error) {
	if v.BadWords == 1 {
		return core.Decision{IsAnomaly: true, DecisionScore: -1}, nil
	}
	return core.Decision{DecisionScore: 1}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	requests  []*amqp.ScoreRequest
	decisions []*amqp.DecisionMessage
	failWith  error
	closed    bool
}

func (p *fakePublisher) PublishScoreRequest(_ context.Context, id, runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.requests = append(p.requests, amqp.NewScoreRequest(id, runID))
	return nil
}

func (p *fakePublisher) PublishDecision(_ context.Context, msg *amqp.DecisionMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.decisions = append(p.decisions, msg)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func newPipeline(t *testing.T) *scoring.Pipeline {
	t.Helper()
	a, err := scoring.LoadArtifact("../../configs/model.yaml")
	require.NoError(t, err)
	kc, err := scoring.NewKeywordClusterer(a)
	require.NoError(t, err)
	p, err := scoring.NewPipeline(a, badWordScorer{}, kc, scoring.Options{})
	require.NoError(t, err)
	return p
}

func newService(t *testing.T, pub Publisher) (*ScoringService, *adapters.MemoryRepository) {
	t.Helper()
	repo := adapters.NewMemoryRepository()
	return NewScoringService(newPipeline(t), repo, pub, ScoringServiceConfig{ReferenceWindowDays: 30}), repo
}

func txn(id, client, booking string, amount float64, desc string) core.Transaction {
	d, err := civil.ParseDate(booking)
	if err != nil {
		panic(err)
	}
	return core.Transaction{
		ID:          id,
		BookingDate: d,
		ValueDate:   d,
		Description: desc,
		NetAmount:   amount,
		ClientID:    client,
		Category:    "MT103",
		MarketValue: 1e7,
	}
}

func TestSubmitTransactionScoresInlineWithoutBroker(t *testing.T) {
	svc, repo := newService(t, nil)
	ctx := context.Background()

	sub, err := svc.SubmitTransaction(ctx, txn("", "A", "2024-01-03", 300000, "Transfer to suspicious account"))
	require.NoError(t, err)
	assert.False(t, sub.Queued)
	require.NotNil(t, sub.Scored)
	assert.NotEmpty(t, sub.TransactionID)
	assert.NotEmpty(t, sub.RunID)
	assert.True(t, sub.Scored.Decision.IsAnomaly)
	assert.Equal(t, sub.TransactionID, sub.Scored.Transaction.ID)

	anomalies, err := svc.Anomalies(ctx, 10)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, sub.Scored.DecisionID, anomalies[0].ID)
	assert.Equal(t, sub.RunID, anomalies[0].RunID)

	_, err = repo.GetTransaction(ctx, sub.TransactionID)
	assert.NoError(t, err)
}

func TestSubmitTransactionQueues(t *testing.T) {
	pub := &fakePublisher{}
	svc, repo := newService(t, pub)
	ctx := context.Background()

	sub, err := svc.SubmitTransaction(ctx, txn("t1", "A", "2024-01-03", 100, "Coupon payment"))
	require.NoError(t, err)
	assert.True(t, sub.Queued)
	assert.Nil(t, sub.Scored)
	require.Len(t, pub.requests, 1)
	assert.Equal(t, "t1", pub.requests[0].TransactionID)

	pending, err := repo.PendingAlerts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending, "nothing is scored until the worker runs")

	scored, err := svc.ScoreStored(ctx, "t1", sub.RunID)
	require.NoError(t, err)
	assert.False(t, scored.Decision.IsAnomaly)
	assert.Equal(t, 1, scored.Cluster, "coupon keyword cluster")
	require.Len(t, pub.decisions, 1)
	assert.Equal(t, scored.DecisionID, pub.decisions[0].DecisionID)
	assert.Equal(t, sub.RunID, pub.decisions[0].RunID)
}

func TestSubmitTransactionFallsBackWhenPublishFails(t *testing.T) {
	pub := &fakePublisher{failWith: amqp.ErrCircuitOpen}
	svc, _ := newService(t, pub)

	sub, err := svc.SubmitTransaction(context.Background(), txn("t1", "A", "2024-01-03", 100, "fee"))
	require.NoError(t, err)
	assert.False(t, sub.Queued)
	require.NotNil(t, sub.Scored)
}

func TestSubmitTransactionValidation(t *testing.T) {
	svc, repo := newService(t, nil)
	bad := txn("t1", "A", "2024-01-03", 100, "fee")
	bad.MarketValue = 0

	_, err := svc.SubmitTransaction(context.Background(), bad)
	require.ErrorIs(t, err, core.ErrZeroMarketValue)
	_, err = repo.GetTransaction(context.Background(), "t1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScoreStoredUsesReferenceWindow(t *testing.T) {
	svc, repo := newService(t, nil)
	ctx := context.Background()

	// Opposites must share the value date; booking dates decide the window.
	old := txn("old", "A", "2023-10-01", -500, "fee")
	old.ValueDate = civil.Date{Year: 2024, Month: 1, Day: 10}
	in := txn("in", "A", "2024-01-02", -250, "fee")
	in.ValueDate = civil.Date{Year: 2024, Month: 1, Day: 10}
	require.NoError(t, repo.SaveTransactions(ctx, []core.Transaction{
		old, in,
		txn("t", "A", "2024-01-10", 250, "fee"),
		txn("u", "A", "2024-01-10", 500, "fee"),
	}))

	scored, err := svc.ScoreStored(ctx, "t", "")
	require.NoError(t, err)
	assert.True(t, scored.Flags.Opposite, "matched by an opposite inside the window")

	scored, err = svc.ScoreStored(ctx, "u", "")
	require.NoError(t, err)
	assert.False(t, scored.Flags.Opposite, "the only opposite is outside the window")

	_, err = svc.ScoreStored(ctx, "missing", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScoreStoredIgnoresLaterBookings(t *testing.T) {
	svc, repo := newService(t, nil)
	ctx := context.Background()

	later := txn("t9", "A", "2024-01-20", 102, "fee")
	later.ValueDate = civil.Date{Year: 2024, Month: 1, Day: 2}
	require.NoError(t, repo.SaveTransactions(ctx, []core.Transaction{
		txn("t1", "A", "2024-01-01", 100, "fee"),
		txn("t2", "A", "2024-01-02", -102, "fee"),
		later,
	}))

	first, err := svc.ScoreStored(ctx, "t2", "")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Group.Count)
	assert.InDelta(t, 101.0, first.Group.Mean, 1e-9)
	assert.False(t, first.Flags.Opposite, "the offsetting booking comes later")

	// Rescoring after more bookings arrive gives the same population.
	require.NoError(t, repo.SaveTransaction(ctx, txn("t10", "A", "2024-01-25", 7000, "fee")))
	again, err := svc.ScoreStored(ctx, "t2", "")
	require.NoError(t, err)
	assert.Equal(t, first.Group, again.Group)
	assert.Equal(t, first.Decision, again.Decision)

	// The later booking itself does see the earlier ones.
	scored, err := svc.ScoreStored(ctx, "t9", "")
	require.NoError(t, err)
	assert.Equal(t, 3, scored.Group.Count)
	assert.True(t, scored.Flags.Opposite)
}

func TestScoreBatch(t *testing.T) {
	pub := &fakePublisher{}
	svc, repo := newService(t, pub)
	ctx := context.Background()

	runID, scored, err := svc.ScoreBatch(ctx, []core.Transaction{
		txn("a", "A", "2024-01-02", 100, "Coupon payment"),
		txn("", "B", "2024-01-03", 300000, "Transfer to suspicious account"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	require.Len(t, scored, 2)
	assert.Equal(t, "a", scored[0].Transaction.ID)
	assert.NotEmpty(t, scored[1].Transaction.ID)
	assert.False(t, scored[0].Decision.IsAnomaly)
	assert.True(t, scored[1].Decision.IsAnomaly)
	assert.Len(t, pub.decisions, 2)
	assert.Empty(t, pub.requests)

	_, err = repo.GetTransaction(ctx, scored[1].Transaction.ID)
	assert.NoError(t, err)

	pending, err := repo.PendingAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, runID, pending[0].RunID)
}

func TestScoreBatchRejectsInvalid(t *testing.T) {
	svc, repo := newService(t, nil)
	ctx := context.Background()
	bad := txn("b", "A", "2024-01-02", 100, "fee")
	bad.BookingDate = civil.Date{}

	_, _, err := svc.ScoreBatch(ctx, []core.Transaction{txn("a", "A", "2024-01-02", 100, "fee"), bad})
	require.Error(t, err)
	_, err = repo.GetTransaction(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound, "a failed batch stores nothing")
}

func TestScoringServiceClose(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)
	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestScoringServicePublishFailureKeepsDecision(t *testing.T) {
	pub := &fakePublisher{}
	svc, repo := newService(t, pub)
	ctx := context.Background()
	require.NoError(t, repo.SaveTransaction(ctx, txn("t1", "A", "2024-01-03", 100, "suspicious")))

	pub.failWith = errors.New("broker down")
	scored, err := svc.ScoreStored(ctx, "t1", "run")
	require.NoError(t, err)

	pending, err := repo.PendingAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, scored.DecisionID, pending[0].ID)
}

// Ensure the default window applies when unset.
func TestNewScoringServiceDefaults(t *testing.T) {
	svc := NewScoringService(nil, nil, nil, ScoringServiceConfig{})
	assert.Equal(t, 90, svc.config.ReferenceWindowDays)
}

