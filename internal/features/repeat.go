package features

import (
	"sort"
	"strings"

	"cashmon/internal/core"
)

// FlagRepeats marks transactions "similar to yesterday". The batch is walked
// in (booking_date, client_id) order, stable on ties; a record is flagged
// when the client's immediately preceding record in that walk was booked
// exactly one calendar day earlier with the same absolute amount. Same-day
// duplicates are not repeats. Results are index-aligned with the input.
func FlagRepeats(batch []core.Transaction) []bool {
	order := make([]int, len(batch))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ta, tb := batch[order[a]], batch[order[b]]
		if c := ta.BookingDate.Compare(tb.BookingDate); c != 0 {
			return c < 0
		}
		return strings.Compare(ta.ClientID, tb.ClientID) < 0
	})

	out := make([]bool, len(batch))
	last := make(map[string]core.Transaction)
	for _, idx := range order {
		cur := batch[idx]
		if prev, ok := last[cur.ClientID]; ok {
			out[idx] = cur.BookingDate.DaysSince(prev.BookingDate) == 1 &&
				prev.AbsAmount() == cur.AbsAmount()
		}
		last[cur.ClientID] = cur
	}
	return out
}
