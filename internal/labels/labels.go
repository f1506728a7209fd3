// Package labels turns free-text transaction descriptions into canonical
// labels and scans them for suspicious keywords.
//
// A label is a lowercase, single-space-joined sequence of ASCII alphabetic
// tokens longer than two letters, with noise tokens removed and every run of
// consecutive currency codes replaced by CurrencyMarker. Normalization is a
// pure function of the description: digits, punctuation and non-ASCII
// letters are dropped, and an input without alphabetic runs yields "".
package labels

import "strings"

// CurrencyMarker replaces each maximal run of currency codes in a label.
const CurrencyMarker = "[CCY]"

// Normalize returns the canonical label of a description.
func Normalize(description string) string {
	return NormalizeN(description, 0)
}

// NormalizeN is Normalize keeping only the first maxTokens surviving tokens.
// Truncation happens before currency masking, so a run of codes cut by the
// limit still collapses into a single marker. maxTokens <= 0 means no limit.
func NormalizeN(description string, maxTokens int) string {
	tokens := alphaTokens(description)

	kept := tokens[:0]
	for _, tok := range tokens {
		if len(tok) <= 2 {
			continue
		}
		if _, noise := exclusions[tok]; noise {
			continue
		}
		kept = append(kept, tok)
	}
	if maxTokens > 0 && len(kept) > maxTokens {
		kept = kept[:maxTokens]
	}

	return strings.Join(maskCurrencies(kept), " ")
}

// alphaTokens extracts maximal runs of ASCII letters, lowercased.
func alphaTokens(s string) []string {
	var (
		out   []string
		start = -1
	)
	for i := 0; i <= len(s); i++ {
		letter := i < len(s) && isASCIILetter(s[i])
		switch {
		case letter && start < 0:
			start = i
		case !letter && start >= 0:
			out = append(out, strings.ToLower(s[start:i]))
			start = -1
		}
	}
	return out
}

func isASCIILetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func maskCurrencies(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	inRun := false
	for _, tok := range tokens {
		if _, ok := currencies[tok]; ok {
			if !inRun {
				out = append(out, CurrencyMarker)
				inRun = true
			}
			continue
		}
		inRun = false
		out = append(out, tok)
	}
	return out
}

// HasBadWords reports whether any token of the label is a suspicious keyword.
// Every token is inspected; the empty label has none.
func HasBadWords(label string) bool {
	for _, tok := range strings.Fields(label) {
		if _, ok := badWords[tok]; ok {
			return true
		}
	}
	return false
}

// BadWordsIn returns the distinct suspicious keywords of a label in order of
// first appearance. It backs the explanation shown next to a decision.
func BadWordsIn(label string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, tok := range strings.Fields(label) {
		if _, ok := badWords[tok]; !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
