package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"1.23", 1.23, true},
		{"1,23", 1.23, true},
		{"-300000", -300000, true},
		{" 2.50 ", 2.5, true},
		{"1 234,56", 1234.56, true},
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"1,234,567", 1234567, true},
		{"1'000.50", 1000.5, true},
		{"500-", -500, true},
		{"0", 0, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseDecimalIsExact(t *testing.T) {
	d, err := ParseDecimal("0,1")
	if err != nil {
		t.Fatal(err)
	}
	sum := d.Add(d).Add(d)
	if sum.String() != "0.3" {
		t.Fatalf("expected exact 0.3, got %s", sum)
	}
	if _, err := ParseDecimal("12 EUR"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
