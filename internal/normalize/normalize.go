// Package normalize converts display strings from bank statements into the
// canonical forms used for storage and comparison.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	amountStrip = regexp.MustCompile(`[^0-9.\-]`)
	hundred     = decimal.NewFromInt(100)
)

// currencyPrefix matches a leading rupee marker. The dot of "Rs." would
// otherwise survive stripping and read as a decimal point.
var currencyPrefix = regexp.MustCompile(`(?i)^(?:rs\.?|inr|₹)\s*`)

// Amount converts a major-unit display string such as "1,234.50" into minor
// units (123450). It never fails: empty or non-numeric input yields 0.
func Amount(s string) int64 {
	return AmountMinor(s, false)
}

// AmountMinor converts s into minor units. When alreadyMinor is set the value
// is only rounded, not rescaled, so feeding the formatted result back in with
// alreadyMinor=true returns the same number.
func AmountMinor(s string, alreadyMinor bool) int64 {
	s = currencyPrefix.ReplaceAllString(strings.TrimSpace(s), "")
	cleaned := strings.TrimSuffix(amountStrip.ReplaceAllString(s, ""), ".")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return 0
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0
	}
	if !alreadyMinor {
		d = d.Mul(hundred)
	}

	rounded := d.Round(0).BigInt()
	if !rounded.IsInt64() {
		return 0
	}
	return rounded.Int64()
}

// Narration produces the comparison form of a narration: whitespace collapsed,
// trimmed, lowercased, control characters removed.
func Narration(s string) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, collapsed)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
