// Package alias derives a counterparty alias candidate from a transaction
// narration.
package alias

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/normalize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxWords   = 4
	maxKeyLen  = 200
	minLetters = 3
	leadWords  = 3
)

// Candidate is the alias suggested for one narration. Key is the normalized
// comparison form; Display is what a new counterparty would be named. An
// empty Key means no usable candidate.
type Candidate struct {
	Key     string
	Display string
	Type    domain.AliasType
}

var (
	emailRe      = regexp.MustCompile(`(?i)[a-z0-9._\-]+@[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,}`)
	phoneRe      = regexp.MustCompile(`(?:^|\D)(\d{10})(?:\D|$)`)
	maskRe       = regexp.MustCompile(`\*{2,}(\d{2,4})\b`)
	upiPrefixRe  = regexp.MustCompile(`(?i)^upi\s*[-/:]\s*`)
	segmentSepRe = regexp.MustCompile(`[-|/]`)
	ifscRe       = regexp.MustCompile(`(?i)^[a-z]{4}0[a-z0-9]{6}$`)
	longDigitsRe = regexp.MustCompile(`\d{6,}`)
	digitsRe     = regexp.MustCompile(`\d+`)
)

// processorCodes are rail, bank and handle tokens that never name a person.
var processorCodes = map[string]struct{}{
	"upi": {}, "neft": {}, "imps": {}, "rtgs": {}, "nach": {}, "ach": {}, "ecs": {},
	"pos": {}, "atm": {}, "cr": {}, "dr": {}, "p2a": {}, "p2m": {}, "p2p": {},
	"ref": {}, "txn": {}, "inb": {}, "mb": {}, "ib": {}, "ifsc": {}, "utr": {},
	"ybl": {}, "okaxis": {}, "oksbi": {}, "okhdfcbank": {}, "okicici": {}, "paytm": {},
	"hdfc": {}, "icici": {}, "sbi": {}, "axis": {}, "kotak": {}, "yesb": {}, "utib": {},
	"sbin": {}, "icic": {}, "kkbk": {}, "pytm": {}, "bank": {},
}

// Extract runs the heuristics in order and returns the first candidate that
// yields something: email handle, 10-digit phone, star-masked account
// number, UPI payee name, first name-like segment, leading words. Only star
// masks count as an account; card numbers printed with X masks belong to the
// account holder and would merge every card purchase.
func Extract(narration string) Candidate {
	n := strings.Join(strings.Fields(narration), " ")
	if n == "" {
		return Candidate{}
	}

	if m := emailRe.FindString(n); m != "" {
		return literal(strings.ToLower(strings.Trim(m, ".-_")), domain.AliasTypeEmail)
	}
	if m := phoneRe.FindStringSubmatch(n); m != nil {
		return literal(m[1], domain.AliasTypePhone)
	}
	if m := maskRe.FindStringSubmatch(n); m != nil {
		return literal("acct_mask_"+m[1], domain.AliasTypeAccount)
	}
	if name := upiName(n); name != "" {
		return named(name, domain.AliasTypeUPI)
	}
	if name := firstSegment(n); name != "" {
		return named(name, domain.AliasTypeSegment)
	}
	if name := leadingWords(n); name != "" {
		return named(name, domain.AliasTypeWords)
	}
	return Candidate{}
}

func literal(v string, t domain.AliasType) Candidate {
	return Candidate{Key: normalize.Truncate(normalize.Narration(v), maxKeyLen), Display: v, Type: t}
}

func named(name string, t domain.AliasType) Candidate {
	words := strings.Fields(name)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	joined := strings.Join(words, " ")
	return Candidate{
		Key:     normalize.Truncate(normalize.Narration(joined), maxKeyLen),
		Display: cases.Title(language.English).String(joined),
		Type:    t,
	}
}

// upiName takes the payee name from UPI-style narrations such as
// "UPI-JOHN DOE-DOEJOHN@BANK" or "UPI/412345678901/RAVI KUMAR/ravi@okaxis/Payment".
func upiName(n string) string {
	loc := upiPrefixRe.FindStringIndex(n)
	if loc == nil {
		return ""
	}
	parts := segmentSepRe.Split(n[loc[1]:], -1)

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if at := strings.IndexByte(p, '@'); at >= 0 {
			// Reached the VPA without a name; fall back to its local part.
			local := strings.NewReplacer(".", " ", "_", " ").Replace(p[:at])
			return cleanName(local)
		}
		if ifscRe.MatchString(p) || (longDigitsRe.MatchString(p) && letterCount(p) == 0) {
			continue
		}
		if name := cleanName(p); name != "" {
			return name
		}
	}
	return ""
}

// firstSegment returns the first separator-delimited piece that looks like a
// name rather than a rail or bank code.
func firstSegment(n string) string {
	if !segmentSepRe.MatchString(n) {
		return ""
	}
	for _, p := range segmentSepRe.Split(n, -1) {
		p = strings.TrimSpace(p)
		if strings.ContainsRune(p, '@') || ifscRe.MatchString(p) {
			continue
		}
		if name := cleanName(p); name != "" {
			return name
		}
	}
	return ""
}

func leadingWords(n string) string {
	var out []string
	for _, w := range strings.Fields(n) {
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			continue
		}
		w = strings.Trim(w, ".,;:*#()")
		if w == "" {
			continue
		}
		out = append(out, w)
		if len(out) == leadWords {
			break
		}
	}
	return strings.Join(out, " ")
}

// cleanName strips digits, punctuation and code tokens from p. It returns ""
// unless enough letters remain.
func cleanName(p string) string {
	p = digitsRe.ReplaceAllString(p, " ")
	var words []string
	for _, w := range strings.Fields(p) {
		w = strings.Trim(w, ".,;:*#()_")
		if w == "" {
			continue
		}
		if _, code := processorCodes[strings.ToLower(w)]; code {
			continue
		}
		words = append(words, w)
	}
	name := strings.Join(words, " ")
	if letterCount(name) < minLetters {
		return ""
	}
	return name
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
