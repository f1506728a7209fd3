package services

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashmon/internal/core"
	"cashmon/internal/features"
	"cashmon/internal/scoring"
)

func TestReportRows(t *testing.T) {
	r := scoring.Result{
		Derived: features.Derived{
			Transaction: core.Transaction{
				ID:          "t1",
				ClientID:    "C1",
				BookingDate: civil.Date{Year: 2024, Month: time.June, Day: 28},
				NetAmount:   -300,
			},
			Label:  "custody fee",
			NAVPct: -0.03,
			Flags:  features.Flags{SemesterEnd: true},
		},
		Cluster:  3,
		Decision: core.Decision{IsAnomaly: true, DecisionScore: -0.2},
	}

	rows := ReportRows(ResultsOf([]Scored{{DecisionID: 9, Result: r}}))
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "2024-06-28", row.BookingDate)
	assert.Equal(t, 3, row.DealType)
	assert.Len(t, row.Flags, len(features.FlagNames))
	assert.True(t, row.Flags[7], "fin_semestre")
	assert.True(t, row.IsAnomaly)
}
