package scoring

import (
	"fmt"

	"cashmon/internal/core"
	"cashmon/internal/features"
)

// Scorer is the pre-trained decision function. Implementations must be
// safe for concurrent use.
type Scorer interface {
	// Features is the layout the scorer was calibrated on.
	Features() []string
	Score(v features.FeatureVector) (core.Decision, error)
}

// Explainer is implemented by scorers able to break a decision down into
// per-feature contributions.
type Explainer interface {
	Contributions(v features.FeatureVector) ([]Contribution, error)
}

// Contribution is one feature's share of a decision score.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// LinearModel scores intercept + sum(weight * value). Lower scores are more
// abnormal: a transaction is an anomaly when its score falls below the
// threshold.
type LinearModel struct {
	features  []string
	weights   []float64
	intercept float64
	threshold float64
}

// NewLinearModel copies the decision function out of an artifact.
func NewLinearModel(a *Artifact) (*LinearModel, error) {
	if len(a.Weights) != len(a.Features) {
		return nil, fmt.Errorf("%w: %d weights for %d features", ErrInvalidArtifact, len(a.Weights), len(a.Features))
	}
	return &LinearModel{
		features:  append([]string(nil), a.Features...),
		weights:   append([]float64(nil), a.Weights...),
		intercept: a.Intercept,
		threshold: a.Threshold,
	}, nil
}

func (m *LinearModel) Features() []string {
	return append([]string(nil), m.features...)
}

func (m *LinearModel) Score(v features.FeatureVector) (core.Decision, error) {
	values, err := m.values(v)
	if err != nil {
		return core.Decision{}, err
	}
	score := m.intercept
	for i, x := range values {
		score += m.weights[i] * x
	}
	return core.Decision{IsAnomaly: score < m.threshold, DecisionScore: score}, nil
}

func (m *LinearModel) Contributions(v features.FeatureVector) ([]Contribution, error) {
	values, err := m.values(v)
	if err != nil {
		return nil, err
	}
	out := make([]Contribution, len(values))
	for i, x := range values {
		out[i] = Contribution{
			Feature:      m.features[i],
			Value:        x,
			Weight:       m.weights[i],
			Contribution: m.weights[i] * x,
		}
	}
	return out, nil
}

func (m *LinearModel) values(v features.FeatureVector) ([]float64, error) {
	values := v.Values()
	if len(values) != len(m.weights) {
		return nil, fmt.Errorf("%w: vector has %d values, model expects %d", features.ErrSchemaMismatch, len(values), len(m.weights))
	}
	return values, nil
}
