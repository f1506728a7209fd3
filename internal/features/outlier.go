package features

import (
	"math"

	"cashmon/internal/core"
)

// SigmaThreshold is the number of standard deviations beyond which an
// amount is an outlier.
const SigmaThreshold = 3.0

// MinGroupSize is the smallest population with a defined sample standard
// deviation.
const MinGroupSize = 2

// OutlierState is the outcome of the 3-sigma rule for one transaction.
type OutlierState int

const (
	OutlierNone OutlierState = iota
	OutlierFlagged
	// OutlierInsufficientData: the group has fewer than MinGroupSize
	// members, or no variation at all. Never flagged.
	OutlierInsufficientData
)

func (s OutlierState) String() string {
	switch s {
	case OutlierNone:
		return "none"
	case OutlierFlagged:
		return "flagged"
	case OutlierInsufficientData:
		return "insufficient_data"
	default:
		return "unknown"
	}
}

// IsOutlier reports |amount - mean| > 3 * std. A non-positive or NaN std
// never flags.
func IsOutlier(amount, mean, std float64) bool {
	if !(std > 0) {
		return false
	}
	return math.Abs(amount-mean) > SigmaThreshold*std
}

// GroupStats is a running mean/variance (Welford) of absolute amounts.
type GroupStats struct {
	Count int
	Mean  float64
	m2    float64
}

// Add folds one more absolute amount into the statistics.
func (g GroupStats) Add(x float64) GroupStats {
	g.Count++
	delta := x - g.Mean
	g.Mean += delta / float64(g.Count)
	g.m2 += delta * (x - g.Mean)
	return g
}

// Without returns the statistics of the population minus one member x.
// It is how a transaction is scored against its group without biasing the
// band with its own amount.
func (g GroupStats) Without(x float64) GroupStats {
	if g.Count <= 1 {
		return GroupStats{}
	}
	n := float64(g.Count)
	mean := (n*g.Mean - x) / (n - 1)
	m2 := g.m2 - (x-g.Mean)*(x-mean)
	if m2 < 0 {
		m2 = 0
	}
	return GroupStats{Count: g.Count - 1, Mean: mean, m2: m2}
}

// Std is the sample standard deviation (n-1 denominator). NaN below
// MinGroupSize.
func (g GroupStats) Std() float64 {
	if g.Count < MinGroupSize {
		return math.NaN()
	}
	return math.Sqrt(g.m2 / float64(g.Count-1))
}

// Check applies the 3-sigma rule to an absolute amount.
func (g GroupStats) Check(amount float64) OutlierState {
	std := g.Std()
	if g.Count < MinGroupSize || !(std > 0) {
		return OutlierInsufficientData
	}
	if IsOutlier(amount, g.Mean, std) {
		return OutlierFlagged
	}
	return OutlierNone
}

// ComputeGroupStats aggregates |net_amount| per (client, category).
func ComputeGroupStats(txns []core.Transaction) map[core.GroupKey]GroupStats {
	stats := make(map[core.GroupKey]GroupStats)
	for _, t := range txns {
		key := t.GroupKey()
		stats[key] = stats[key].Add(t.AbsAmount())
	}
	return stats
}
