package services

import (
	"cashmon/internal/ingest"
	"cashmon/internal/scoring"
)

// ReportRows flattens pipeline results into report lines, in input order.
// Flag columns follow features.FlagNames.
func ReportRows(results []scoring.Result) []ingest.ReportRow {
	rows := make([]ingest.ReportRow, len(results))
	for i, r := range results {
		rows[i] = ingest.ReportRow{
			TransactionID: r.Transaction.ID,
			ClientID:      r.Transaction.ClientID,
			BookingDate:   r.Transaction.BookingDate.String(),
			NetAmount:     r.Transaction.NetAmount,
			Label:         r.Label,
			NAVPct:        r.NAVPct,
			DealType:      r.Cluster,
			Flags:         r.Flags.Values(),
			IsAnomaly:     r.Decision.IsAnomaly,
			DecisionScore: r.Decision.DecisionScore,
		}
	}
	return rows
}

// ResultsOf strips decision IDs from scored results.
func ResultsOf(scored []Scored) []scoring.Result {
	out := make([]scoring.Result, len(scored))
	for i, s := range scored {
		out[i] = s.Result
	}
	return out
}
