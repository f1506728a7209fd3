package core

import (
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
)

func validTxn() Transaction {
	return Transaction{
		ID:          "t1",
		BookingDate: civil.Date{Year: 2024, Month: 1, Day: 1},
		ValueDate:   civil.Date{Year: 2024, Month: 1, Day: 10},
		Description: "Transfer of EUR 676.90 suspicious account",
		NetAmount:   300000,
		ClientID:    "A",
		Category:    "MT103",
		MarketValue: 10000000,
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-01-01", true},
		{"2024-02-29", true},
		{"2024-12-30T00:00:00Z", true},
		{"2023-02-29", false},
		{"01/02/2024", false},
		{"", false},
	}
	for i, tc := range cases {
		_, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTxn().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	empty := validTxn()
	empty.Description = ""
	if err := empty.Validate(); err != nil {
		t.Fatalf("empty description must be accepted, got %v", err)
	}

	long := validTxn()
	long.Description = strings.Repeat("wire transfer ", 360)
	if len(long.Description) < 5000 {
		t.Fatalf("test description too short: %d", len(long.Description))
	}
	if err := long.Validate(); err != nil {
		t.Fatalf("long description must be accepted, got %v", err)
	}

	bads := []struct {
		mutate func(*Transaction)
		field  string
		want   error
	}{
		{func(t *Transaction) { t.BookingDate = civil.Date{} }, "booking_date", ErrMissingDate},
		{func(t *Transaction) { t.ValueDate = civil.Date{} }, "value_date", ErrMissingDate},
		{func(t *Transaction) { t.ValueDate = civil.Date{Year: 2023, Month: 2, Day: 30} }, "value_date", ErrInvalidDate},
		{func(t *Transaction) { t.MarketValue = 0 }, "market_value", ErrZeroMarketValue},
	}
	for i, tc := range bads {
		txn := validTxn()
		tc.mutate(&txn)
		err := txn.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != tc.field {
			t.Fatalf("case %d expected validation error on %s, got %v", i, tc.field, err)
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestNAVPct(t *testing.T) {
	pct, err := validTxn().NAVPct()
	if err != nil || pct != 3.0 {
		t.Fatalf("expected 3.0, got %v (err=%v)", pct, err)
	}

	txn := validTxn()
	txn.MarketValue = 0
	if _, err := txn.NAVPct(); !errors.Is(err, ErrZeroMarketValue) {
		t.Fatalf("expected ErrZeroMarketValue, got %v", err)
	}
}
