package labels

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"currency run collapses", "Transfer of EUR 100 USD 50", "transfer [CCY]"},
		{"end to end description", "Transfer of EUR 676.90 suspicious account", "transfer [CCY] suspicious account"},
		{"separate runs stay separate", "EUR fee then USD rebate", "[CCY] fee then [CCY] rebate"},
		{"noise and short tokens dropped", "REF: 12345 OUR EXT to BNP Paribas", ""},
		{"digits split tokens", "ABC123DEF", "abc def"},
		{"non ascii letters discarded", "Café Über payé", "caf ber pay"},
		{"no alphabetic runs", "12/03 - 400.00 ++", ""},
		{"empty", "", ""},
		{"mixed case", "DiViDeNd Coupon", "dividend coupon"},
		{"country names removed", "Dividend Luxembourg France", "dividend"},
		{"currency-like english words kept", "Try again with pen from cop Ron", "try again with pen from cop ron"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeLongDescription(t *testing.T) {
	in := strings.Repeat("wire transfer ", 400)
	got := Normalize(in)
	assert.Len(t, strings.Fields(got), 800)
	assert.True(t, strings.HasPrefix(got, "wire transfer wire"))
	assert.Equal(t, "wire transfer", NormalizeN(in, 2))
}

func TestNormalizeIsIdempotentOnInput(t *testing.T) {
	in := "Wire EUR/GBP 1.000,00 ref 99 coupon payment"
	first := Normalize(in)
	assert.Equal(t, first, Normalize(in))
	assert.Equal(t, "wire [CCY] coupon payment", first)
}

func TestNormalizeN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"truncates before masking", "eur usd gbp coupon", 2, "[CCY]"},
		{"keeps first tokens", "alpha beta gamma delta", 3, "alpha beta gamma"},
		{"limit counts surviving tokens only", "ab ref alpha beta", 1, "alpha"},
		{"zero means no limit", "alpha beta gamma", 0, "alpha beta gamma"},
		{"limit above length", "alpha beta", 10, "alpha beta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeN(tt.in, tt.max))
		})
	}
}

func TestHasBadWords(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"wire fraud alert", true},
		{"routine payment", false},
		{"", false},
		{"coupon dividend suspicious", true},
		{"[CCY] transfer", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, HasBadWords(tt.label))
		})
	}
}

func TestHasBadWordsChecksEveryToken(t *testing.T) {
	// the keyword is the last token, not the first
	assert.True(t, HasBadWords("coupon payment laundering"))
}

func TestOnlyExcludedTokensYieldEmptyLabel(t *testing.T) {
	label := Normalize("ref our ext BNP 42 to of")
	assert.Empty(t, label)
	assert.False(t, HasBadWords(label))
}

func TestBadWordsIn(t *testing.T) {
	got := BadWordsIn("suspicious account suspicious transfer fraud")
	assert.Equal(t, []string{"suspicious", "account", "fraud"}, got)
	assert.Nil(t, BadWordsIn("routine payment"))
}

func TestWordListsAreDeduplicated(t *testing.T) {
	words := BadWords()
	seen := map[string]bool{}
	for _, w := range words {
		assert.False(t, seen[w], "duplicate %q", w)
		seen[w] = true
	}
	assert.Contains(t, words, "laundering")
	assert.Contains(t, Currencies(), "eur")
	assert.Contains(t, Exclusions(), "ref")
}
