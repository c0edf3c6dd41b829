package money

import (
	"errors"
	"testing"
)

func TestParseCents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr error
	}{
		{name: "whole", input: "100", want: 10000},
		{name: "two places", input: "99.99", want: 9999},
		{name: "one place", input: "5.5", want: 550},
		{name: "trimmed", input: "  3.00 ", want: 300},
		{name: "negative", input: "-1", wantErr: ErrNegativeAmount},
		{name: "sub cent", input: "0.001", wantErr: ErrTooPrecise},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCents(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ParseCents(%q) error = %v, want %v", tc.input, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCents(%q) unexpected error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("ParseCents(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseCentsRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ParseCents("abc"); err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
	if _, err := ParseCents(""); err == nil {
		t.Fatal("expected error for empty amount")
	}
}

func TestFromFloat(t *testing.T) {
	t.Parallel()

	got, err := FromFloat(99.99)
	if err != nil {
		t.Fatalf("FromFloat() unexpected error: %v", err)
	}
	if got != 9999 {
		t.Fatalf("FromFloat(99.99) = %d, want 9999", got)
	}
	if _, err := FromFloat(-0.5); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("FromFloat(-0.5) error = %v, want %v", err, ErrNegativeAmount)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cents    int64
		currency string
		want     string
	}{
		{cents: 1350, currency: "usd", want: "$13.50"},
		{cents: 0, currency: "", want: "$0.00"},
		{cents: 500, currency: "EUR", want: "€5.00"},
		{cents: 12345, currency: "twd", want: "123.45 TWD"},
	}

	for _, tc := range tests {
		if got := Format(tc.cents, tc.currency); got != tc.want {
			t.Fatalf("Format(%d, %q) = %q, want %q", tc.cents, tc.currency, got, tc.want)
		}
	}
}
