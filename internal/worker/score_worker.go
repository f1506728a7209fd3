package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"cashmon/internal/amqp"
	"cashmon/internal/core"
	"cashmon/internal/log"
	"cashmon/internal/services"
	"cashmon/internal/storage"
)

const stopTimeout = 10 * time.Second

// Scorer scores a stored transaction; satisfied by services.ScoringService.
type Scorer interface {
	ScoreStored(ctx context.Context, transactionID, runID string) (services.Scored, error)
}

// Consumer delivers score requests; satisfied by amqp.Client.
type Consumer interface {
	ConsumeScoreRequests(ctx context.Context, handler func(context.Context, *amqp.ScoreRequest) error) error
}

// AlertSyncer periodically pushes anomalies to the alerts sheet; satisfied
// by services.AlertSyncProcessor.
type AlertSyncer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ScoreWorker scores transactions named by AMQP score requests.
type ScoreWorker struct {
	scorer Scorer
}

func NewScoreWorker(scorer Scorer) *ScoreWorker {
	return &ScoreWorker{scorer: scorer}
}

// HandleScoreRequest processes a single score request from AMQP. Requests
// that can never succeed (unknown transaction, invalid stored record) are
// acknowledged after logging; any other failure is returned so the message
// is requeued.
func (w *ScoreWorker) HandleScoreRequest(ctx context.Context, req *amqp.ScoreRequest) error {
	slog.DebugContext(ctx, "Processing score request",
		log.FieldTransactionID, req.TransactionID,
		log.FieldRunID, req.RunID)

	scored, err := w.scorer.ScoreStored(ctx, req.TransactionID, req.RunID)
	var verr *core.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.As(err, &verr):
		slog.WarnContext(ctx, "Discarding unscorable request",
			log.FieldTransactionID, req.TransactionID,
			log.FieldError, err)
		return nil
	case err != nil:
		return fmt.Errorf("score transaction %s: %w", req.TransactionID, err)
	}

	slog.DebugContext(ctx, "Score request done",
		log.FieldTransactionID, req.TransactionID,
		log.FieldDecisionID, scored.DecisionID)
	return nil
}

// Run consumes score requests and, when syncer is non-nil, runs the alert
// sync loop alongside until ctx is done or either side fails.
func Run(ctx context.Context, consumer Consumer, w *ScoreWorker, syncer AlertSyncer) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := consumer.ConsumeScoreRequests(gctx, w.HandleScoreRequest)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if syncer != nil {
		g.Go(func() error {
			if err := syncer.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return syncer.Stop(stopCtx)
		})
	}

	return g.Wait()
}
