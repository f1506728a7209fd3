package http

import (
	"context"
	"net/http"
	"time"

	"cashmon/internal/log"
	"cashmon/internal/scoring"
)

const (
	defaultAnomalyLimit = 50
	maxAnomalyLimit     = 500
	readyTimeout        = 2 * time.Second
)

// handleScore stores one transaction and either queues it or returns its
// decision. ?explain=n attaches the top n feature contributions to an
// in-line decision.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	explain, err := queryInt(r, "explain", 0, 0, s.maxExplain)
	if err != nil {
		fail(w, r, err)
		return
	}

	var req TransactionRequest
	if err := decodeJSON(w, r, maxSingleBody, &req); err != nil {
		fail(w, r, err)
		return
	}
	txn, err := s.toTransaction(req, "")
	if err != nil {
		fail(w, r, err)
		return
	}

	sub, err := s.svc.SubmitTransaction(r.Context(), txn)
	if err != nil {
		fail(w, r, err)
		return
	}

	resp := SubmitResponse{TransactionID: sub.TransactionID, RunID: sub.RunID, Queued: sub.Queued}
	if sub.Scored == nil {
		writeJSON(w, r, http.StatusAccepted, resp)
		return
	}

	view := decisionView(*sub.Scored)
	if explain > 0 {
		view.Contributions = s.explain(r.Context(), sub.Scored.Result, explain)
	}
	resp.Decision = &view
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleScoreBatch(w http.ResponseWriter, r *http.Request) {
	explain, err := queryInt(r, "explain", 0, 0, s.maxExplain)
	if err != nil {
		fail(w, r, err)
		return
	}

	var reqs []TransactionRequest
	if err := decodeJSON(w, r, maxBatchBody, &reqs); err != nil {
		fail(w, r, err)
		return
	}
	txns, err := s.parseBatch(reqs)
	if err != nil {
		fail(w, r, err)
		return
	}

	runID, scored, err := s.svc.ScoreBatch(r.Context(), txns)
	if err != nil {
		fail(w, r, err)
		return
	}

	resp := BatchResponse{RunID: runID, Count: len(scored), Results: make([]DecisionView, len(scored))}
	for i, sc := range scored {
		resp.Results[i] = decisionView(sc)
		if explain > 0 {
			resp.Results[i].Contributions = s.explain(r.Context(), sc.Result, explain)
		}
		if sc.Decision.IsAnomaly {
			resp.Anomalies++
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultAnomalyLimit, 1, maxAnomalyLimit)
	if err != nil {
		fail(w, r, err)
		return
	}
	alerts, err := s.svc.Anomalies(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}

	views := make([]AlertView, len(alerts))
	for i, a := range alerts {
		views[i] = alertView(a)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"anomalies": views})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports 503 while storage is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// explain returns nil when the model cannot explain itself.
func (s *Server) explain(ctx context.Context, res scoring.Result, n int) []scoring.Contribution {
	contribs, err := s.svc.Explain(res, n)
	if err != nil {
		log.FromContext(ctx).DebugContext(ctx, "Explain unavailable", log.FieldError, err)
		return nil
	}
	return contribs
}
