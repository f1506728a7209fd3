package amqp

import (
	"encoding/json"
	"time"
)

// ScoreRequest asks the worker to score a stored transaction. It carries
// only the ID; the worker loads the transaction and its reference window
// from the database.
type ScoreRequest struct {
	TransactionID string    `json:"transaction_id"`
	RunID         string    `json:"run_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewScoreRequest(transactionID, runID string) *ScoreRequest {
	return &ScoreRequest{
		TransactionID: transactionID,
		RunID:         runID,
		Timestamp:     time.Now(),
	}
}

func (m *ScoreRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ScoreRequestFromJSON(data []byte) (*ScoreRequest, error) {
	var msg ScoreRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecisionMessage is published on the result queue after a transaction has
// been scored and stored.
type DecisionMessage struct {
	DecisionID    int64     `json:"decision_id"`
	TransactionID string    `json:"transaction_id"`
	RunID         string    `json:"run_id,omitempty"`
	Label         string    `json:"label"`
	IsAnomaly     bool      `json:"is_anomaly"`
	DecisionScore float64   `json:"decision_score"`
	Timestamp     time.Time `json:"timestamp"`
}

func (m *DecisionMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DecisionMessageFromJSON(data []byte) (*DecisionMessage, error) {
	var msg DecisionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
