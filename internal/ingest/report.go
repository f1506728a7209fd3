package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// ReportRow is one line of a scoring report.
type ReportRow struct {
	TransactionID string
	ClientID      string
	BookingDate   string
	NetAmount     float64
	Label         string
	NAVPct        float64
	DealType      int
	Flags         []bool
	IsAnomaly     bool
	DecisionScore float64
}

func reportHeader(flagNames []string) []string {
	h := []string{"transaction_id", "client_id", "booking_date", "net_amount", "label", "nav_pct", "deal_type"}
	h = append(h, flagNames...)
	return append(h, "is_anomaly", "decision_score")
}

func (r ReportRow) record() []string {
	rec := []string{
		r.TransactionID,
		r.ClientID,
		r.BookingDate,
		strconv.FormatFloat(r.NetAmount, 'f', -1, 64),
		r.Label,
		strconv.FormatFloat(r.NAVPct, 'f', 6, 64),
		strconv.Itoa(r.DealType),
	}
	for _, f := range r.Flags {
		rec = append(rec, strconv.FormatBool(f))
	}
	return append(rec,
		strconv.FormatBool(r.IsAnomaly),
		strconv.FormatFloat(r.DecisionScore, 'f', 6, 64),
	)
}

// WriteCSVReport writes a header named after flagNames and one line per row.
func WriteCSVReport(w io.Writer, flagNames []string, rows []ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader(flagNames)); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSXReport writes the same table to a single-sheet workbook with
// anomalies highlighted.
func WriteXLSXReport(w io.Writer, flagNames []string, rows []ReportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Report"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	header := reportHeader(flagNames)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	highlight, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#F8CBAD"}},
	})
	if err != nil {
		return err
	}

	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	for i, r := range rows {
		line := i + 2
		values := make([]any, 0, len(header))
		values = append(values, r.TransactionID, r.ClientID, r.BookingDate, r.NetAmount, r.Label, r.NAVPct, r.DealType)
		for _, fl := range r.Flags {
			values = append(values, fl)
		}
		values = append(values, r.IsAnomaly, r.DecisionScore)
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", line), &values); err != nil {
			return err
		}
		if r.IsAnomaly {
			if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", line), fmt.Sprintf("%s%d", lastCol, line), highlight); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}
