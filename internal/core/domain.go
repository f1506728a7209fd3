package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DateLayout is the only accepted textual date format.
const DateLayout = "2006-01-02"

type (
	// Transaction is the unit of analysis: one cash movement booked on a fund.
	Transaction struct {
		ID          string     `json:"id"`
		BookingDate civil.Date `json:"booking_date"`
		ValueDate   civil.Date `json:"value_date"`
		Description string     `json:"description"`
		NetAmount   float64    `json:"net_amount"`
		ClientID    string     `json:"client_id"`
		Category    string     `json:"category"`
		MarketValue float64    `json:"market_value"`
	}

	// Decision is the scorer output for a single transaction.
	Decision struct {
		IsAnomaly     bool    `json:"is_anomaly"`
		DecisionScore float64 `json:"decision_score"`
	}

	// ValidationError reports a single invalid input field.
	ValidationError struct {
		Field string
		Err   error
	}
)

var (
	ErrMissingDate     = errors.New("date is missing")
	ErrInvalidDate     = errors.New("invalid date")
	ErrZeroMarketValue = errors.New("market value must be non-zero")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrMissingField    = errors.New("required field is missing")
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ParseDate parses a YYYY-MM-DD string into a calendar date.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, ErrMissingDate
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		// Spreadsheet exports sometimes carry a time part.
		if t, terr := time.Parse(time.RFC3339, s); terr == nil {
			return civil.DateOf(t), nil
		}
		return civil.Date{}, fmt.Errorf("%w %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Validate checks the fields every scoring step relies on.
// The description may be empty or of any length; it normalizes to a
// possibly empty label.
func (t Transaction) Validate() error {
	if err := validateDate(t.BookingDate); err != nil {
		return invalid("booking_date", err)
	}
	if err := validateDate(t.ValueDate); err != nil {
		return invalid("value_date", err)
	}
	if math.IsNaN(t.NetAmount) || math.IsInf(t.NetAmount, 0) {
		return invalid("net_amount", ErrInvalidAmount)
	}
	if math.IsNaN(t.MarketValue) || math.IsInf(t.MarketValue, 0) {
		return invalid("market_value", ErrInvalidAmount)
	}
	if t.MarketValue == 0 {
		return invalid("market_value", ErrZeroMarketValue)
	}
	return nil
}

func validateDate(d civil.Date) error {
	if d.IsZero() {
		return ErrMissingDate
	}
	if !d.IsValid() {
		return fmt.Errorf("%w %s", ErrInvalidDate, d)
	}
	return nil
}

// NAVPct returns the net amount as a percentage of the fund market value.
func (t Transaction) NAVPct() (float64, error) {
	if t.MarketValue == 0 {
		return 0, invalid("market_value", ErrZeroMarketValue)
	}
	return 100 * t.NetAmount / t.MarketValue, nil
}

// AbsAmount returns the unsigned transaction amount.
func (t Transaction) AbsAmount() float64 {
	return math.Abs(t.NetAmount)
}

// GroupKey returns the (client, category) grouping used for amount statistics.
func (t Transaction) GroupKey() GroupKey {
	return GroupKey{ClientID: t.ClientID, Category: t.Category}
}

// GroupKey identifies a client/category population.
type GroupKey struct {
	ClientID string
	Category string
}

func (k GroupKey) String() string {
	return k.ClientID + "/" + k.Category
}
