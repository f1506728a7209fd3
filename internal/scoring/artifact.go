package scoring

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"cashmon/internal/features"
)

// ErrInvalidArtifact is returned when a model artifact cannot be used.
var ErrInvalidArtifact = errors.New("invalid model artifact")

type (
	// Artifact is the calibration output a scoring process is started with:
	// feature layout, scaling parameters, decision function and deal-type
	// rules. It is read once and shared read-only.
	Artifact struct {
		Version        string        `yaml:"version"`
		Features       []string      `yaml:"features"`
		Scaler         ScalerParams  `yaml:"scaler"`
		DealTypes      int           `yaml:"deal_types"`
		MaxTokens      int           `yaml:"max_tokens"`
		Weights        []float64     `yaml:"weights"`
		Intercept      float64       `yaml:"intercept"`
		Threshold      float64       `yaml:"threshold"`
		Clusters       []ClusterRule `yaml:"clusters"`
		DefaultCluster int           `yaml:"default_cluster"`
	}

	// ScalerParams holds the standardization of the two continuous inputs.
	ScalerParams struct {
		NetAmount features.Scaler `yaml:"net_amount"`
		NAVPct    features.Scaler `yaml:"nav_pct"`
	}

	// ClusterRule assigns a deal type to labels containing any keyword.
	ClusterRule struct {
		ID       int      `yaml:"id"`
		Name     string   `yaml:"name"`
		Keywords []string `yaml:"keywords"`
	}
)

// LoadArtifact reads and validates a YAML artifact from disk.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	a, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// ParseArtifact decodes a YAML artifact. Unknown keys are rejected.
func ParseArtifact(data []byte) (*Artifact, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var a Artifact
	if err := dec.Decode(&a); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidArtifact)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if a.DealTypes == 0 {
		a.DealTypes = features.DefaultDealTypes
	}
	if len(a.Features) == 0 {
		a.Features = features.Schema(a.DealTypes)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the internal consistency of the artifact.
func (a *Artifact) Validate() error {
	if a.DealTypes < 1 {
		return fmt.Errorf("%w: deal_types must be positive, got %d", ErrInvalidArtifact, a.DealTypes)
	}
	if err := features.CheckSchema(a.Features, features.Schema(a.DealTypes)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if len(a.Weights) != len(a.Features) {
		return fmt.Errorf("%w: %d weights for %d features", ErrInvalidArtifact, len(a.Weights), len(a.Features))
	}
	if a.DefaultCluster < 0 || a.DefaultCluster >= a.DealTypes {
		return fmt.Errorf("%w: default_cluster %d outside [0,%d)", ErrInvalidArtifact, a.DefaultCluster, a.DealTypes)
	}
	for _, c := range a.Clusters {
		if c.ID < 0 || c.ID >= a.DealTypes {
			return fmt.Errorf("%w: cluster %q id %d outside [0,%d)", ErrInvalidArtifact, c.Name, c.ID, a.DealTypes)
		}
	}
	return nil
}

// Encoder builds the feature encoder calibrated by this artifact.
func (a *Artifact) Encoder() (*features.Encoder, error) {
	return features.NewEncoder(a.Scaler.NetAmount, a.Scaler.NAVPct, a.DealTypes)
}
