// Package core provides the domain model shared by the ledger, the
// aggregation engine and the reporting layer.
//
// This file contains amount parsing for user-entered input and the
// presentation-boundary formatting helpers. All arithmetic stays on
// decimal.Decimal; float64 never enters storage or aggregation.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-entered amount string to a decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rejects empty input, explicit signs, zero and negative values.
//
// Examples:
//
//	ParseAmount("100.50") -> 100.50, nil
//	ParseAmount("100,50") -> 100.50, nil
//	ParseAmount("-5")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only unsigned positive values allowed
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with two-place currency precision.
// Display only; callers keep the full-precision decimal for arithmetic.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
