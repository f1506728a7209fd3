// Package ingest loads transaction batches from CSV and XLSX exports and
// from spreadsheet rows. Columns are located by header name, so exports
// from different custodians can be loaded without reordering.
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"cashmon/internal/core"
)

var (
	ErrNoHeader      = errors.New("no header row")
	ErrMissingColumn = errors.New("required column missing")
)

// Field is a transaction attribute a column can map to.
type Field int

const (
	FieldID Field = iota
	FieldBookingDate
	FieldValueDate
	FieldDescription
	FieldNetAmount
	FieldClientID
	FieldCategory
	FieldMarketValue
	fieldCount
)

var fieldNames = [fieldCount]string{
	"id", "booking_date", "value_date", "description",
	"net_amount", "client_id", "category", "market_value",
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "unknown"
	}
	return fieldNames[f]
}

// aliases maps normalized header names to fields.
var aliases = map[string]Field{
	"id":                FieldID,
	"transaction_id":    FieldID,
	"reference":         FieldID,
	"booking_date":      FieldBookingDate,
	"trade_date":        FieldBookingDate,
	"date_comptable":    FieldBookingDate,
	"value_date":        FieldValueDate,
	"settlement_date":   FieldValueDate,
	"date_valeur":       FieldValueDate,
	"description":       FieldDescription,
	"narrative":         FieldDescription,
	"libelle":           FieldDescription,
	"net_amount":        FieldNetAmount,
	"amount":            FieldNetAmount,
	"montant":           FieldNetAmount,
	"client_id":         FieldClientID,
	"client":            FieldClientID,
	"fund":              FieldClientID,
	"fund_id":           FieldClientID,
	"category":          FieldCategory,
	"type":              FieldCategory,
	"message_type":      FieldCategory,
	"market_value":      FieldMarketValue,
	"fund_market_value": FieldMarketValue,
	"nav":               FieldMarketValue,
}

var required = []Field{FieldBookingDate, FieldValueDate, FieldDescription, FieldNetAmount, FieldMarketValue}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(h)
}

// Mapping is the column index of every field; -1 when absent.
type Mapping [fieldCount]int

// MapHeader locates the fields in a header row. The first column matching
// a field wins.
func MapHeader(header []string) (Mapping, error) {
	var m Mapping
	for i := range m {
		m[i] = -1
	}
	for col, h := range header {
		if f, ok := aliases[normalizeHeader(h)]; ok && m[f] < 0 {
			m[f] = col
		}
	}
	var missing []string
	for _, f := range required {
		if m[f] < 0 {
			missing = append(missing, f.String())
		}
	}
	if len(missing) > 0 {
		return m, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return m, nil
}

// RowError locates a parse failure; Line is 1-based and counts the header.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// Transaction converts one data row. Rows without an ID column value get a
// random UUID.
func (m Mapping) Transaction(row []string) (core.Transaction, error) {
	get := func(f Field) string {
		if m[f] < 0 || m[f] >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[m[f]])
	}

	var (
		t   core.Transaction
		err error
	)
	t.ID = get(FieldID)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.BookingDate, err = parseDate(get(FieldBookingDate)); err != nil {
		return t, &core.ValidationError{Field: "booking_date", Err: err}
	}
	if t.ValueDate, err = parseDate(get(FieldValueDate)); err != nil {
		return t, &core.ValidationError{Field: "value_date", Err: err}
	}
	if t.NetAmount, err = core.ParseAmount(get(FieldNetAmount)); err != nil {
		return t, &core.ValidationError{Field: "net_amount", Err: err}
	}
	if t.MarketValue, err = core.ParseAmount(get(FieldMarketValue)); err != nil {
		return t, &core.ValidationError{Field: "market_value", Err: err}
	}
	t.Description = get(FieldDescription)
	t.ClientID = get(FieldClientID)
	t.Category = get(FieldCategory)
	return t, t.Validate()
}

// ParseRecords converts a header row followed by data rows. Blank rows are
// skipped; the first invalid row aborts with a *RowError.
func ParseRecords(records [][]string) ([]core.Transaction, error) {
	if len(records) == 0 {
		return nil, ErrNoHeader
	}
	m, err := MapHeader(records[0])
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(records)-1)
	for i, row := range records[1:] {
		if blank(row) {
			continue
		}
		t, err := m.Transaction(row)
		if err != nil {
			return nil, &RowError{Line: i + 2, Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var dayFirstLayouts = []string{"02/01/2006", "02.01.2006"}

// parseDate accepts ISO dates, day-first European dates and Excel serial
// day numbers.
func parseDate(s string) (civil.Date, error) {
	d, err := core.ParseDate(s)
	if err == nil || errors.Is(err, core.ErrMissingDate) {
		return d, err
	}
	for _, layout := range dayFirstLayouts {
		if t, perr := time.Parse(layout, s); perr == nil {
			return civil.DateOf(t), nil
		}
	}
	if serial, perr := strconv.ParseFloat(s, 64); perr == nil && serial > 0 {
		if t, xerr := excelize.ExcelDateToTime(serial, false); xerr == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, err
}
