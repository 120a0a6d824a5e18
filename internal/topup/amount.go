// internal/topup/amount.go
package topup

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNotNumber   = errors.New("not a number")
	ErrNotPositive = errors.New("amount must be positive")
	ErrTooLarge    = errors.New("amount too large")
)

// MaxAmount caps a single top-up.
var MaxAmount = decimal.NewFromInt(1_000_000_000)

// ParseAmount reads a user typed amount. A decimal comma is accepted.
func ParseAmount(text string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	if s == "" {
		return 0, ErrNotNumber
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrNotNumber
	}
	if !d.IsPositive() {
		return 0, ErrNotPositive
	}
	if d.GreaterThan(MaxAmount) {
		return 0, ErrTooLarge
	}
	f, _ := d.Float64()
	if !finite(f) || f <= 0 {
		return 0, ErrNotNumber
	}
	return f, nil
}

// Convert turns a fiat amount into an asset quantity at price, rounded to
// decimals. It returns nil when the price is unusable.
func Convert(amount, price float64, decimals int32) *float64 {
	if !finite(price) || !finite(amount) || price <= 0 || amount <= 0 {
		return nil
	}
	q := decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(price)).Round(decimals)
	f, _ := q.Float64()
	return &f
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
