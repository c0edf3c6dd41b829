// Package money converts between decimal amounts used at the edges (requests,
// catalog files, emails) and the integer cents stored and computed internally.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more than two decimal places")
)

var hundred = decimal.NewFromInt(100)

// ParseCents parses a decimal string such as "99.99" into cents.
func ParseCents(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal amount into cents, rejecting fractions of a cent.
func FromDecimal(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	return cents.IntPart(), nil
}

// FromFloat converts a JSON number into cents, rounding half away from zero to
// the nearest cent.
func FromFloat(f float64) (int64, error) {
	d := decimal.NewFromFloat(f)
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}

func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents for display, e.g. Format(1350, "usd") == "$13.50".
func Format(cents int64, currency string) string {
	amount := ToDecimal(cents).StringFixed(2)
	switch strings.ToLower(strings.TrimSpace(currency)) {
	case "", "usd":
		return "$" + amount
	case "eur":
		return "€" + amount
	case "gbp":
		return "£" + amount
	default:
		return amount + " " + strings.ToUpper(currency)
	}
}
