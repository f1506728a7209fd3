package features

import (
	"cloud.google.com/go/civil"

	"cashmon/internal/core"
)

type oppositeKey struct {
	valueDate civil.Date
	clientID  string
	amount    float64
}

func keyOf(t core.Transaction) oppositeKey {
	return oppositeKey{valueDate: t.ValueDate, clientID: t.ClientID, amount: t.NetAmount}
}

// MatchOpposites flags, for every transaction of the batch, whether another
// transaction has the same value date, the same client and the negated
// amount. Results are index-aligned with batch.
//
// A transaction never matches itself: a zero amount is its own negation, so
// it only matches when a second zero-amount record exists for the same
// client and value date.
func MatchOpposites(batch []core.Transaction) []bool {
	counts := make(map[oppositeKey]int, len(batch))
	for _, t := range batch {
		counts[keyOf(t)]++
	}

	out := make([]bool, len(batch))
	for i, t := range batch {
		want := keyOf(t)
		want.amount = -t.NetAmount
		n := counts[want]
		if t.NetAmount == 0 {
			n-- // itself
		}
		out[i] = n > 0
	}
	return out
}

// IsOppositeMatched checks a single transaction against a batch. Batch
// entries carrying the same non-empty ID as txn are the transaction itself
// and are skipped.
func IsOppositeMatched(txn core.Transaction, batch []core.Transaction) bool {
	for _, other := range batch {
		if txn.ID != "" && other.ID == txn.ID {
			continue
		}
		if other.ValueDate == txn.ValueDate &&
			other.ClientID == txn.ClientID &&
			other.NetAmount == -txn.NetAmount {
			return true
		}
	}
	return false
}
