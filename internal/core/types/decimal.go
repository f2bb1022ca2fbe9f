// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Quantity is a line-item quantity (fractional for weighed items).
type Quantity = decimal.Decimal

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// FormatMoney renders a monetary value with exactly two decimals, as fiscal documents expect.
func FormatMoney(m Money) string {
	return m.StringFixed(2)
}

// FormatQuantity renders a quantity with four decimals.
func FormatQuantity(q Quantity) string {
	return q.StringFixed(4)
}
