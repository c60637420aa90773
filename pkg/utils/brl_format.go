// Package utils provides common utility functions for retailcast.
package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatBRL formats an amount in Brazilian Real notation (R$ 1.234,56).
// Thousands are grouped with dots and cents follow a comma.
func FormatBRL(amount decimal.Decimal) string {
	negative := amount.IsNegative()
	fixed := amount.Abs().StringFixed(2)

	intPart, decPart, _ := strings.Cut(fixed, ".")
	formatted := "R$ " + groupThousands(intPart, ".") + "," + decPart

	if negative && !amount.Round(2).IsZero() {
		return "-" + formatted
	}
	return formatted
}

// FormatQuantity formats a forecast quantity with two decimals.
func FormatQuantity(q float64) string {
	return fmt.Sprintf("%.2f", q)
}

// FormatError formats an evaluation error compactly; large values switch to
// exponent notation so report tables stay narrow.
func FormatError(mse float64) string {
	if mse >= 1e6 {
		return fmt.Sprintf("%.3e", mse)
	}
	return fmt.Sprintf("%.2f", mse)
}

// groupThousands inserts sep every three digits from the right.
func groupThousands(digits, sep string) string {
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	head := len(digits) % 3
	if head > 0 {
		sb.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}
