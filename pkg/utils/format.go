// Package utils provides shared utility functions.
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatIndianCurrency formats an amount in rupees with lakh/crore grouping,
// e.g. ₹12,34,567.89. Rounding is half away from zero on the paise digit.
func FormatIndianCurrency(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)
	negative := d.IsNegative()
	str := d.Abs().StringFixed(2)

	parts := strings.SplitN(str, ".", 2)
	result := "₹" + formatIndianNumber(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber groups digits as 3 then 2s from the right.
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	result := s[n-3:]
	s = s[:n-3]
	for len(s) > 2 {
		result = s[len(s)-2:] + "," + result
		s = s[:len(s)-2]
	}
	return s + "," + result
}

// FormatPercent formats a fraction as a signed percentage, 0.0123 -> +1.23%.
func FormatPercent(fraction float64) string {
	d := decimal.NewFromFloat(fraction).Mul(decimal.NewFromInt(100)).Round(2)
	sign := ""
	if d.IsPositive() {
		sign = "+"
	}
	return sign + d.StringFixed(2) + "%"
}

// FormatPnL formats P&L with an explicit sign.
func FormatPnL(pnl float64) string {
	formatted := FormatIndianCurrency(pnl)
	if decimal.NewFromFloat(pnl).Round(2).IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatCompact formats large amounts in lakhs (L) or crores (Cr).
func FormatCompact(amount float64) string {
	d := decimal.NewFromFloat(amount)
	switch abs := d.Abs(); {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(10_000_000)):
		return "₹" + d.Div(decimal.NewFromInt(10_000_000)).StringFixed(2) + " Cr"
	case abs.GreaterThanOrEqual(decimal.NewFromInt(100_000)):
		return "₹" + d.Div(decimal.NewFromInt(100_000)).StringFixed(2) + " L"
	}
	return FormatIndianCurrency(amount)
}
