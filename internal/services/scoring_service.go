package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"cashmon/internal/amqp"
	"cashmon/internal/core"
	"cashmon/internal/features"
	"cashmon/internal/log"
	"cashmon/internal/scoring"
	"cashmon/internal/storage"
)

// Repository is the persistence the scoring service needs. It is satisfied
// by storage.SQLiteRepository and adapters.MemoryRepository.
type Repository interface {
	SaveTransaction(ctx context.Context, t core.Transaction) error
	SaveTransactions(ctx context.Context, txns []core.Transaction) error
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListReference(ctx context.Context, since, until civil.Date) ([]core.Transaction, error)
	SaveDecision(ctx context.Context, d storage.Decision) (int64, error)
	ListAnomalies(ctx context.Context, limit int) ([]storage.Alert, error)
	PendingAlerts(ctx context.Context, limit int) ([]storage.Alert, error)
	MarkAlertSynced(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
	Close() error
}

// Publisher hands work and results to the message broker.
type Publisher interface {
	PublishScoreRequest(ctx context.Context, transactionID, runID string) error
	PublishDecision(ctx context.Context, msg *amqp.DecisionMessage) error
	Close() error
}

// Scored is a pipeline result together with the ID of its stored decision.
type Scored struct {
	DecisionID int64 `json:"decision_id"`
	scoring.Result
}

// Submission is the outcome of SubmitTransaction. Exactly one of Queued and
// Scored is set.
type Submission struct {
	TransactionID string  `json:"transaction_id"`
	RunID         string  `json:"run_id"`
	Queued        bool    `json:"queued"`
	Scored        *Scored `json:"scored,omitempty"`
}

// ScoringServiceConfig tunes the scoring service.
type ScoringServiceConfig struct {
	// ReferenceWindowDays is how far before a transaction's booking date the
	// reference population reaches.
	ReferenceWindowDays int
}

// ScoringService orchestrates scoring across storage, the pipeline and AMQP.
type ScoringService struct {
	pipeline  *scoring.Pipeline
	repo      Repository
	publisher Publisher
	config    ScoringServiceConfig
	slog      *log.StructuredLogger
}

// NewScoringService wires the service. publisher may be nil, in which case
// submissions are scored synchronously.
func NewScoringService(pipeline *scoring.Pipeline, repo Repository, publisher Publisher, config ScoringServiceConfig) *ScoringService {
	if config.ReferenceWindowDays <= 0 {
		config.ReferenceWindowDays = 90
	}
	return &ScoringService{
		pipeline:  pipeline,
		repo:      repo,
		publisher: publisher,
		config:    config,
		slog:      log.NewStructuredLogger(log.New(log.Config{Component: log.ComponentScoring, Handler: slog.Default().Handler()})),
	}
}

// Pipeline exposes the underlying pipeline for schema and explanations.
func (s *ScoringService) Pipeline() *scoring.Pipeline { return s.pipeline }

// SubmitTransaction stores txn and queues it for scoring. When no broker is
// available, or publishing fails, it is scored in-line instead.
func (s *ScoringService) SubmitTransaction(ctx context.Context, txn core.Transaction) (Submission, error) {
	if err := txn.Validate(); err != nil {
		return Submission{}, err
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	runID := uuid.NewString()
	if err := s.repo.SaveTransaction(ctx, txn); err != nil {
		return Submission{}, fmt.Errorf("save transaction: %w", err)
	}

	sub := Submission{TransactionID: txn.ID, RunID: runID}
	if s.publisher != nil {
		err := s.publisher.PublishScoreRequest(ctx, txn.ID, runID)
		if err == nil {
			sub.Queued = true
			return sub, nil
		}
		slog.WarnContext(ctx, "Failed to queue score request, scoring in-line",
			log.FieldTransactionID, txn.ID, log.FieldError, err)
	}

	scored, err := s.ScoreStored(ctx, txn.ID, runID)
	if err != nil {
		return Submission{}, err
	}
	sub.Scored = &scored
	return sub, nil
}

// ScoreStored scores a stored transaction against the stored transactions
// booked within the reference window ending on its booking date, then
// records the decision. Later bookings never enter the population, so a
// transaction scores the same whenever it is scored.
func (s *ScoringService) ScoreStored(ctx context.Context, transactionID, runID string) (Scored, error) {
	txn, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return Scored{}, err
	}
	since := txn.BookingDate.AddDays(-s.config.ReferenceWindowDays)
	ref, err := s.repo.ListReference(ctx, since, txn.BookingDate)
	if err != nil {
		return Scored{}, err
	}

	res, err := s.pipeline.ScoreAgainst(ctx, txn, features.NewSnapshot(ref))
	if err != nil {
		return Scored{}, fmt.Errorf("score transaction %s: %w", transactionID, err)
	}
	return s.record(ctx, runID, res, time.Now())
}

// ScoreBatch scores txns as one population, stores them with their
// decisions under a fresh run ID and returns the results in input order.
// Transactions without an ID are assigned one.
func (s *ScoringService) ScoreBatch(ctx context.Context, txns []core.Transaction) (string, []Scored, error) {
	runID := uuid.NewString()
	batch := make([]core.Transaction, len(txns))
	for i, t := range txns {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		batch[i] = t
	}

	results, err := s.pipeline.ScoreBatch(ctx, batch)
	if err != nil {
		return runID, nil, err
	}
	if err := s.repo.SaveTransactions(ctx, batch); err != nil {
		return runID, nil, fmt.Errorf("save batch: %w", err)
	}

	now := time.Now()
	out := make([]Scored, len(results))
	anomalies := 0
	for i, r := range results {
		if out[i], err = s.record(ctx, runID, r, now); err != nil {
			return runID, nil, err
		}
		if r.Decision.IsAnomaly {
			anomalies++
		}
	}
	slog.InfoContext(ctx, "Batch scored",
		log.FieldRunID, runID,
		log.FieldBatchSize, len(out),
		"anomalies", anomalies)
	return runID, out, nil
}

func (s *ScoringService) record(ctx context.Context, runID string, r scoring.Result, at time.Time) (Scored, error) {
	id, err := s.repo.SaveDecision(ctx, storage.Decision{
		TransactionID: r.Transaction.ID,
		RunID:         runID,
		Label:         r.Label,
		NAVPct:        r.NAVPct,
		DealType:      r.Cluster,
		Flags:         r.Flags,
		IsAnomaly:     r.Decision.IsAnomaly,
		DecisionScore: r.Decision.DecisionScore,
		ScoredAt:      at,
	})
	if err != nil {
		return Scored{}, err
	}
	s.slog.LogTransactionScored(ctx, r.Transaction.ID, r.Transaction.ClientID, runID,
		r.Decision.IsAnomaly, r.Decision.DecisionScore, r.Cluster)

	if s.publisher != nil {
		msg := &amqp.DecisionMessage{
			DecisionID:    id,
			TransactionID: r.Transaction.ID,
			RunID:         runID,
			Label:         r.Label,
			IsAnomaly:     r.Decision.IsAnomaly,
			DecisionScore: r.Decision.DecisionScore,
			Timestamp:     at,
		}
		if err := s.publisher.PublishDecision(ctx, msg); err != nil {
			// The decision is stored; consumers can catch up from the database.
			slog.WarnContext(ctx, "Failed to publish decision",
				log.FieldDecisionID, id, log.FieldError, err)
		}
	}
	return Scored{DecisionID: id, Result: r}, nil
}

// Explain returns the n features that contributed most to r's score.
func (s *ScoringService) Explain(r scoring.Result, n int) ([]scoring.Contribution, error) {
	return s.pipeline.Explain(r, n)
}

// Anomalies returns the most recent anomalous decisions.
func (s *ScoringService) Anomalies(ctx context.Context, limit int) ([]storage.Alert, error) {
	return s.repo.ListAnomalies(ctx, limit)
}

// Ping reports whether storage is reachable.
func (s *ScoringService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close closes both storage and AMQP connections
func (s *ScoringService) Close() error {
	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
