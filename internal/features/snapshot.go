package features

import (
	"fmt"
	"time"

	"cashmon/internal/core"
	"cashmon/internal/labels"
)

// Flags are the boolean inputs of the feature vector, in schema order.
type Flags struct {
	Opposite    bool `json:"is_opp_transaction"`
	Outlier     bool `json:"is_3_sigma"`
	Delta7      bool `json:"date_delta_7"`
	Delta30     bool `json:"date_delta_30"`
	Weekend     bool `json:"fin_semaine"`
	MonthEnd    bool `json:"fin_mois"`
	QuarterEnd  bool `json:"fin_trimestre"`
	SemesterEnd bool `json:"fin_semestre"`
	YearEnd     bool `json:"fin_annee"`
	Similar     bool `json:"is_similar"`
	BadWords    bool `json:"has_bad_word"`
}

// FlagNames lists the report column of each flag, in Values order.
var FlagNames = []string{
	"is_opp_transaction", "is_3_sigma", "date_delta_7", "date_delta_30",
	"fin_semaine", "fin_mois", "fin_trimestre", "fin_semestre", "fin_annee",
	"is_similar", "has_bad_word",
}

// Values returns the flags in FlagNames order.
func (f Flags) Values() []bool {
	return []bool{
		f.Opposite, f.Outlier, f.Delta7, f.Delta30,
		f.Weekend, f.MonthEnd, f.QuarterEnd, f.SemesterEnd, f.YearEnd,
		f.Similar, f.BadWords,
	}
}

// Derived is everything computed for one transaction before encoding.
type Derived struct {
	Transaction core.Transaction `json:"transaction"`
	Label       string           `json:"label"`
	BadWords    []string         `json:"bad_words,omitempty"`
	NAVPct      float64          `json:"nav_pct"`
	Dates       DateFeatures     `json:"dates"`
	Group       GroupStats       `json:"-"`
	Outlier     OutlierState     `json:"-"`
	Flags       Flags            `json:"flags"`
}

// Options tune flag derivation.
type Options struct {
	// MaxTokens truncates labels; <= 0 keeps every token.
	MaxTokens int
	// ExcludeSelf scores each transaction against its group without its
	// own amount (leave-one-out).
	ExcludeSelf bool
}

// Snapshot is an immutable, point-in-time copy of a transaction population
// with its group statistics and batch-level flags precomputed. It is safe
// for concurrent use.
type Snapshot struct {
	txns      []core.Transaction
	stats     map[core.GroupKey]GroupStats
	opposites []bool
	repeats   []bool
	takenAt   time.Time
}

// NewSnapshot copies txns and computes group statistics, opposite matches
// and repeat flags once. Callers may mutate txns afterwards.
func NewSnapshot(txns []core.Transaction) *Snapshot {
	cp := make([]core.Transaction, len(txns))
	copy(cp, txns)
	return &Snapshot{
		txns:      cp,
		stats:     ComputeGroupStats(cp),
		opposites: MatchOpposites(cp),
		repeats:   FlagRepeats(cp),
		takenAt:   time.Now(),
	}
}

// With returns a new snapshot extended by txn; the receiver is unchanged.
// The new transaction sits at index Len()-1 of the result.
func (s *Snapshot) With(txn core.Transaction) *Snapshot {
	txns := make([]core.Transaction, 0, len(s.txns)+1)
	txns = append(txns, s.txns...)
	txns = append(txns, txn)
	return NewSnapshot(txns)
}

// Len is the population size.
func (s *Snapshot) Len() int { return len(s.txns) }

// TakenAt is when the snapshot was built.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Transactions returns a copy of the population.
func (s *Snapshot) Transactions() []core.Transaction {
	cp := make([]core.Transaction, len(s.txns))
	copy(cp, s.txns)
	return cp
}

// Stats returns the statistics of a group, if it has members.
func (s *Snapshot) Stats(key core.GroupKey) (GroupStats, bool) {
	g, ok := s.stats[key]
	return g, ok
}

// Derive computes label, NAV percentage, date features and every flag of
// the i-th transaction.
func (s *Snapshot) Derive(i int, opts Options) (Derived, error) {
	if i < 0 || i >= len(s.txns) {
		return Derived{}, fmt.Errorf("derive: index %d out of range [0,%d)", i, len(s.txns))
	}
	txn := s.txns[i]
	if err := txn.Validate(); err != nil {
		return Derived{}, err
	}
	nav, err := txn.NAVPct()
	if err != nil {
		return Derived{}, err
	}

	label := labels.NormalizeN(txn.Description, opts.MaxTokens)
	dates := ExtractDates(txn.BookingDate, txn.ValueDate)

	group := s.stats[txn.GroupKey()]
	if opts.ExcludeSelf {
		group = group.Without(txn.AbsAmount())
	}
	outlier := group.Check(txn.AbsAmount())

	return Derived{
		Transaction: txn,
		Label:       label,
		BadWords:    labels.BadWordsIn(label),
		NAVPct:      nav,
		Dates:       dates,
		Group:       group,
		Outlier:     outlier,
		Flags: Flags{
			Opposite:    s.opposites[i],
			Outlier:     outlier == OutlierFlagged,
			Delta7:      dates.Delta7,
			Delta30:     dates.Delta30,
			Weekend:     dates.Weekend,
			MonthEnd:    dates.MonthEnd,
			QuarterEnd:  dates.QuarterEnd,
			SemesterEnd: dates.SemesterEnd,
			YearEnd:     dates.YearEnd,
			Similar:     s.repeats[i],
			BadWords:    labels.HasBadWords(label),
		},
	}, nil
}

// DeriveAll derives every transaction of the snapshot, in order. The first
// invalid transaction aborts with its index.
func (s *Snapshot) DeriveAll(opts Options) ([]Derived, error) {
	out := make([]Derived, len(s.txns))
	for i := range s.txns {
		d, err := s.Derive(i, opts)
		if err != nil {
			return nil, fmt.Errorf("transaction %d (%s): %w", i, s.txns[i].ID, err)
		}
		out[i] = d
	}
	return out, nil
}
