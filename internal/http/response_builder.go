package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cashmon/internal/core"
	"cashmon/internal/features"
	"cashmon/internal/log"
	"cashmon/internal/middleware/trace"
	"cashmon/internal/scoring"
	"cashmon/internal/services"
	"cashmon/internal/storage"
)

// DecisionView is the API shape of one scored transaction.
type DecisionView struct {
	DecisionID    int64                  `json:"decision_id"`
	TransactionID string                 `json:"transaction_id"`
	ClientID      string                 `json:"client_id"`
	Label         string                 `json:"label"`
	NAVPct        float64                `json:"nav_pct"`
	DealType      int                    `json:"deal_type"`
	Flags         features.Flags         `json:"flags"`
	IsAnomaly     bool                   `json:"is_anomaly"`
	DecisionScore float64                `json:"decision_score"`
	Contributions []scoring.Contribution `json:"contributions,omitempty"`
}

// AlertView is a stored anomaly as listed by /api/anomalies.
type AlertView struct {
	DecisionID    int64            `json:"decision_id"`
	RunID         string           `json:"run_id"`
	Transaction   core.Transaction `json:"transaction"`
	Label         string           `json:"label"`
	DealType      int              `json:"deal_type"`
	Flags         features.Flags   `json:"flags"`
	DecisionScore float64          `json:"decision_score"`
	ScoredAt      time.Time        `json:"scored_at"`
	Synced        bool             `json:"synced"`
}

type SubmitResponse struct {
	TransactionID string        `json:"transaction_id"`
	RunID         string        `json:"run_id"`
	Queued        bool          `json:"queued"`
	Decision      *DecisionView `json:"decision,omitempty"`
}

type BatchResponse struct {
	RunID     string         `json:"run_id"`
	Count     int            `json:"count"`
	Anomalies int            `json:"anomalies"`
	Results   []DecisionView `json:"results"`
}

type errorResponse struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func decisionView(s services.Scored) DecisionView {
	return DecisionView{
		DecisionID:    s.DecisionID,
		TransactionID: s.Transaction.ID,
		ClientID:      s.Transaction.ClientID,
		Label:         s.Label,
		NAVPct:        s.NAVPct,
		DealType:      s.Cluster,
		Flags:         s.Flags,
		IsAnomaly:     s.Decision.IsAnomaly,
		DecisionScore: s.Decision.DecisionScore,
	}
}

func alertView(a storage.Alert) AlertView {
	return AlertView{
		DecisionID:    a.ID,
		RunID:         a.RunID,
		Transaction:   a.Transaction,
		Label:         a.Label,
		DealType:      a.DealType,
		Flags:         a.Flags,
		DecisionScore: a.DecisionScore,
		ScoredAt:      a.ScoredAt.UTC(),
		Synced:        !a.AlertSyncedAt.IsZero(),
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Failed to write response", log.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string, fields map[string]string) {
	writeJSON(w, r, status, errorResponse{
		Error:     msg,
		Fields:    fields,
		RequestID: trace.GetRequestID(r.Context()),
	})
}

// fail maps err onto a status code. Unexpected errors are logged and
// reported without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr *RequestError
		valErr *core.ValidationError
	)
	switch {
	case errors.As(err, &reqErr):
		writeError(w, r, reqErr.Status, reqErr.Message, reqErr.Fields)
	case errors.As(err, &valErr):
		writeError(w, r, http.StatusBadRequest, "validation failed", map[string]string{valErr.Field: valErr.Err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error(), nil)
	case r.Context().Err() != nil:
		writeError(w, r, http.StatusServiceUnavailable, "request cancelled", nil)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
		writeError(w, r, http.StatusInternalServerError, "internal error", nil)
	}
}
