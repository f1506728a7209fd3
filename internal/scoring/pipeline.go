package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"cashmon/internal/core"
	"cashmon/internal/features"
)

// ErrNotExplainable is returned by Explain when the scorer cannot break a
// decision into contributions.
var ErrNotExplainable = errors.New("scorer does not support explanations")

// Error kinds reported to the Recorder.
const (
	KindValidation = "validation"
	KindSchema     = "schema"
	KindCluster    = "cluster"
	KindScore      = "score"
)

// Recorder receives pipeline measurements. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	Scored(anomaly bool)
	Failed(kind string)
	BatchDone(size int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) Scored(bool) {}
func (nopRecorder) Failed(string) {}
func (nopRecorder) BatchDone(int, time.Duration) {}

// Options configure a Pipeline.
type Options struct {
	// MaxTokens overrides the artifact's label truncation when positive.
	MaxTokens int
	// ExcludeSelf scores amounts against their group without themselves.
	ExcludeSelf bool
	Recorder    Recorder
}

// Result is the scored outcome of one transaction.
type Result struct {
	features.Derived
	Cluster  int                    `json:"deal_type"`
	Vector   features.FeatureVector `json:"vector"`
	Decision core.Decision          `json:"decision"`
}

// Pipeline chains derivation, encoding, clustering and scoring. It holds no
// mutable state and is safe for concurrent use.
type Pipeline struct {
	encoder   *features.Encoder
	scorer    Scorer
	clusterer Clusterer
	derive    features.Options
	rec       Recorder
}

// NewPipeline checks that the encoder built from the artifact produces the
// exact layout the scorer was calibrated on.
func NewPipeline(a *Artifact, scorer Scorer, clusterer Clusterer, opts Options) (*Pipeline, error) {
	if a == nil || scorer == nil || clusterer == nil {
		return nil, errors.New("pipeline: artifact, scorer and clusterer are required")
	}
	enc, err := a.Encoder()
	if err != nil {
		return nil, err
	}
	if err := features.CheckSchema(enc.Schema(), scorer.Features()); err != nil {
		return nil, err
	}

	maxTokens := a.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Pipeline{
		encoder:   enc,
		scorer:    scorer,
		clusterer: clusterer,
		derive:    features.Options{MaxTokens: maxTokens, ExcludeSelf: opts.ExcludeSelf},
		rec:       rec,
	}, nil
}

// Schema is the feature layout of every vector the pipeline produces.
func (p *Pipeline) Schema() []string { return p.encoder.Schema() }

// ScoreBatch scores txns as one population. The first invalid transaction
// aborts the batch; results follow input order.
func (p *Pipeline) ScoreBatch(ctx context.Context, txns []core.Transaction) ([]Result, error) {
	start := time.Now()
	for i, t := range txns {
		if err := t.Validate(); err != nil {
			p.rec.Failed(KindValidation)
			return nil, fmt.Errorf("transaction %d (%s): %w", i, t.ID, err)
		}
	}

	snap := features.NewSnapshot(txns)
	derived, err := snap.DeriveAll(p.derive)
	if err != nil {
		p.rec.Failed(KindValidation)
		return nil, err
	}

	results := make([]Result, len(derived))
	for i, d := range derived {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := p.score(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("transaction %d (%s): %w", i, d.Transaction.ID, err)
		}
		results[i] = r
	}
	p.rec.BatchDone(len(results), time.Since(start))
	return results, nil
}

// ScoreAgainst scores one transaction against a reference population, for
// example the stored history window. The transaction is appended to the
// reference for opposite and repeat matching; a reference entry with the
// same ID is replaced rather than counted twice. reference may be nil.
func (p *Pipeline) ScoreAgainst(ctx context.Context, txn core.Transaction, reference *features.Snapshot) (Result, error) {
	if err := txn.Validate(); err != nil {
		p.rec.Failed(KindValidation)
		return Result{}, err
	}

	var pop []core.Transaction
	if reference != nil {
		for _, t := range reference.Transactions() {
			if txn.ID != "" && t.ID == txn.ID {
				continue
			}
			pop = append(pop, t)
		}
	}
	snap := features.NewSnapshot(append(pop, txn))

	d, err := snap.Derive(snap.Len()-1, p.derive)
	if err != nil {
		p.rec.Failed(KindValidation)
		return Result{}, err
	}
	return p.score(ctx, d)
}

func (p *Pipeline) score(ctx context.Context, d features.Derived) (Result, error) {
	cluster, err := p.clusterer.Cluster(ctx, d.Label)
	if err != nil {
		p.rec.Failed(KindCluster)
		return Result{}, err
	}
	v, err := p.encoder.Encode(d, cluster)
	if err != nil {
		p.rec.Failed(KindSchema)
		return Result{}, err
	}
	dec, err := p.scorer.Score(v)
	if err != nil {
		if errors.Is(err, features.ErrSchemaMismatch) {
			p.rec.Failed(KindSchema)
		} else {
			p.rec.Failed(KindScore)
		}
		return Result{}, fmt.Errorf("score: %w", err)
	}
	p.rec.Scored(dec.IsAnomaly)
	return Result{Derived: d, Cluster: cluster, Vector: v, Decision: dec}, nil
}

// Explain returns the n largest contributions to a result's decision score
// by magnitude. n <= 0 returns all of them.
func (p *Pipeline) Explain(r Result, n int) ([]Contribution, error) {
	ex, ok := p.scorer.(Explainer)
	if !ok {
		return nil, ErrNotExplainable
	}
	contribs, err := ex.Contributions(r.Vector)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(contribs, func(i, j int) bool {
		return math.Abs(contribs[i].Contribution) > math.Abs(contribs[j].Contribution)
	})
	if n > 0 && n < len(contribs) {
		contribs = contribs[:n]
	}
	return contribs, nil
}
