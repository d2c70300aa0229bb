package parser

import (
	"regexp"
	"strings"

	"github.com/dvloznov/statement-ledger/internal/domain"
)

var (
	refMarkerRe = regexp.MustCompile(`(?i)\b(?:ref|chq|utr)(?:\s*no\.?)?[:.\-\s]+([A-Za-z0-9\-/]*\d[A-Za-z0-9\-/]*)$`)
	emailLikeRe = regexp.MustCompile(`(?i)[a-z0-9._\-]+@[a-z0-9\-.]+`)
	digitRunRe  = regexp.MustCompile(`\d{8,}`)
)

// DeriveReference pulls a reference number out of a narration, preferring a
// trailing ref:/chq:/utr: marker, then an email-like handle, then any run of
// eight or more digits. It returns "" when nothing qualifies.
func DeriveReference(narration string) string {
	n := strings.TrimSpace(narration)
	if n == "" {
		return ""
	}
	if m := refMarkerRe.FindStringSubmatch(n); m != nil {
		return m[1]
	}
	if m := emailLikeRe.FindString(n); m != "" {
		return strings.Trim(m, ".-")
	}
	return digitRunRe.FindString(n)
}

var (
	creditHints = []string{"cr", "credit", "deposit", "refund", "salary", "interest", "reversal", "cashback"}
	debitHints  = []string{"dr", "debit", "withdrawal", "atm", "pos", "charges", "fee", "emi"}
)

// calibrate decides which side a lone amount column belongs to. The running
// balance is authoritative when the previous balance is known; otherwise a
// narration keyword decides. guessed reports a fall back to debit with no
// evidence either way.
func calibrate(prevBalance, amount, balance *int64, narration string) (side domain.TxnType, guessed bool) {
	if amount != nil && balance != nil && prevBalance != nil {
		switch *balance {
		case *prevBalance - *amount:
			return domain.TxnTypeDebit, false
		case *prevBalance + *amount:
			return domain.TxnTypeCredit, false
		}
	}

	words := strings.FieldsFunc(strings.ToLower(narration), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	for _, w := range words {
		for _, h := range creditHints {
			if w == h {
				return domain.TxnTypeCredit, false
			}
		}
		for _, h := range debitHints {
			if w == h {
				return domain.TxnTypeDebit, false
			}
		}
	}
	return domain.TxnTypeDebit, true
}
