package features

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrSchemaMismatch means the encoder and the scorer disagree on the
// feature layout. It is a configuration error and must stop the process.
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// DefaultDealTypes is the size of the deal-type one-hot block.
const DefaultDealTypes = 6

var flagNames = [...]string{
	"is_opp_transaction",
	"is_3_sigma",
	"date_delta_7",
	"date_delta_30",
	"fin_semaine",
	"fin_mois",
	"fin_trimestre",
	"fin_semestre",
	"fin_annee",
	"is_similar",
}

// Schema returns the ordered feature names for a deal-type block of the
// given size.
func Schema(dealTypes int) []string {
	names := make([]string, 0, 2+2*len(flagNames)+dealTypes+1)
	names = append(names, "net_amount", "NAV_pct")
	for _, f := range flagNames {
		names = append(names, f+"_0", f+"_1")
	}
	for k := 0; k < dealTypes; k++ {
		names = append(names, fmt.Sprintf("deal_type_%d", k))
	}
	return append(names, "has_bad_word")
}

// CheckSchema compares an encoder schema with the one a scorer was
// calibrated on, name by name.
func CheckSchema(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: encoder has %d features, scorer expects %d", ErrSchemaMismatch, len(got), len(want))
	}
	var diffs []string
	for i := range got {
		if got[i] != want[i] {
			diffs = append(diffs, fmt.Sprintf("#%d %q != %q", i, got[i], want[i]))
		}
	}
	if len(diffs) > 0 {
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(diffs, ", "))
	}
	return nil
}

// Pair is the (false, true) one-hot encoding of a boolean.
type Pair struct {
	False float64 `json:"0"`
	True  float64 `json:"1"`
}

// OneHot encodes b as (1,0) or (0,1).
func OneHot(b bool) Pair {
	if b {
		return Pair{True: 1}
	}
	return Pair{False: 1}
}

// FeatureVector is the scorer input. Field order follows Schema.
type FeatureVector struct {
	NetAmount   float64   `json:"net_amount"`
	NAVPct      float64   `json:"nav_pct"`
	Opposite    Pair      `json:"is_opp_transaction"`
	Outlier     Pair      `json:"is_3_sigma"`
	Delta7      Pair      `json:"date_delta_7"`
	Delta30     Pair      `json:"date_delta_30"`
	Weekend     Pair      `json:"fin_semaine"`
	MonthEnd    Pair      `json:"fin_mois"`
	QuarterEnd  Pair      `json:"fin_trimestre"`
	SemesterEnd Pair      `json:"fin_semestre"`
	YearEnd     Pair      `json:"fin_annee"`
	Similar     Pair      `json:"is_similar"`
	DealType    []float64 `json:"deal_type"`
	BadWords    float64   `json:"has_bad_word"`
}

// Values flattens the vector in schema order.
func (v FeatureVector) Values() []float64 {
	out := make([]float64, 0, 2+2*len(flagNames)+len(v.DealType)+1)
	out = append(out, v.NetAmount, v.NAVPct)
	for _, p := range []Pair{
		v.Opposite, v.Outlier, v.Delta7, v.Delta30, v.Weekend,
		v.MonthEnd, v.QuarterEnd, v.SemesterEnd, v.YearEnd, v.Similar,
	} {
		out = append(out, p.False, p.True)
	}
	out = append(out, v.DealType...)
	return append(out, v.BadWords)
}

// Scaler standardizes a continuous field with calibration-time parameters.
type Scaler struct {
	Mean  float64 `yaml:"mean" json:"mean"`
	Scale float64 `yaml:"scale" json:"scale"`
}

// Apply returns (x - mean) / scale.
func (s Scaler) Apply(x float64) float64 {
	return (x - s.Mean) / s.Scale
}

func (s Scaler) validate(field string) error {
	if s.Scale == 0 || math.IsNaN(s.Scale) || math.IsInf(s.Scale, 0) || math.IsNaN(s.Mean) {
		return fmt.Errorf("%w: %s scaler has invalid parameters (mean=%v, scale=%v)", ErrSchemaMismatch, field, s.Mean, s.Scale)
	}
	return nil
}

// Encoder builds feature vectors. Scaling parameters are fixed at
// construction and never refit on the data being scored.
type Encoder struct {
	netAmount Scaler
	navPct    Scaler
	dealTypes int
}

// NewEncoder validates the calibration parameters.
func NewEncoder(netAmount, navPct Scaler, dealTypes int) (*Encoder, error) {
	if err := netAmount.validate("net_amount"); err != nil {
		return nil, err
	}
	if err := navPct.validate("NAV_pct"); err != nil {
		return nil, err
	}
	if dealTypes < 1 {
		return nil, fmt.Errorf("%w: deal type block must have at least one column, got %d", ErrSchemaMismatch, dealTypes)
	}
	return &Encoder{netAmount: netAmount, navPct: navPct, dealTypes: dealTypes}, nil
}

// DealTypes is the size of the deal-type block.
func (e *Encoder) DealTypes() int { return e.dealTypes }

// Schema is the encoder's feature layout.
func (e *Encoder) Schema() []string { return Schema(e.dealTypes) }

// Encode turns a derived record and its deal-type cluster into a vector.
func (e *Encoder) Encode(d Derived, cluster int) (FeatureVector, error) {
	if cluster < 0 || cluster >= e.dealTypes {
		return FeatureVector{}, fmt.Errorf("%w: deal type %d outside [0,%d)", ErrSchemaMismatch, cluster, e.dealTypes)
	}
	deal := make([]float64, e.dealTypes)
	deal[cluster] = 1

	f := d.Flags
	v := FeatureVector{
		NetAmount:   e.netAmount.Apply(d.Transaction.NetAmount),
		NAVPct:      e.navPct.Apply(d.NAVPct),
		Opposite:    OneHot(f.Opposite),
		Outlier:     OneHot(f.Outlier),
		Delta7:      OneHot(f.Delta7),
		Delta30:     OneHot(f.Delta30),
		Weekend:     OneHot(f.Weekend),
		MonthEnd:    OneHot(f.MonthEnd),
		QuarterEnd:  OneHot(f.QuarterEnd),
		SemesterEnd: OneHot(f.SemesterEnd),
		YearEnd:     OneHot(f.YearEnd),
		Similar:     OneHot(f.Similar),
		DealType:    deal,
	}
	if f.BadWords {
		v.BadWords = 1
	}
	return v, nil
}
