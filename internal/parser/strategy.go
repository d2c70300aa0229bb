package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dvloznov/statement-ledger/internal/normalize"
)

// Match is the typed result of a strategy. Amount columns are nil when the
// column was empty ("-") or absent. When only one amount column was found and
// its side is unknown, Ambiguous is set and the value sits in Amount.
type Match struct {
	Narration  string
	Withdrawal *int64
	Deposit    *int64
	Balance    *int64
	Amount     *int64
	Ambiguous  bool
}

// Strategy parses the text after the leading date of one statement record.
type Strategy interface {
	Name() string
	Match(rest string) (Match, bool)
}

// DefaultStrategies is the chain tried in order for every buffered record.
func DefaultStrategies() []Strategy {
	return []Strategy{
		threeColumn{},
		twoColumn{},
		loose{},
	}
}

const moneyPattern = `\d[\d,]*(?:\.\d{1,2})?`

var (
	threeColumnRe = regexp.MustCompile(`^(.+?)\s+(` + moneyPattern + `|-)\s+(` + moneyPattern + `|-)\s+(` + moneyPattern + `)$`)
	twoColumnRe   = regexp.MustCompile(`^(.+?)\s+(` + moneyPattern + `)\s+(` + moneyPattern + `)$`)
	looseTokenRe  = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	moneyCellRe   = regexp.MustCompile(`^` + moneyPattern + `$`)
	drCrSuffixRe  = regexp.MustCompile(`(?i)(\d)\s*(?:cr|dr)\.?$`)
)

// threeColumn: narration, withdrawal, deposit, balance.
type threeColumn struct{}

func (threeColumn) Name() string { return "three_column" }

func (threeColumn) Match(rest string) (Match, bool) {
	m := threeColumnRe.FindStringSubmatch(rest)
	if m == nil {
		return Match{}, false
	}
	if !consistentDecimals(m[2], m[3], m[4]) {
		return Match{}, false
	}
	return Match{
		Narration:  strings.TrimSpace(m[1]),
		Withdrawal: moneyOrNil(m[2]),
		Deposit:    moneyOrNil(m[3]),
		Balance:    moneyOrNil(m[4]),
	}, true
}

// twoColumn: narration, one amount column of unknown side, balance.
type twoColumn struct{}

func (twoColumn) Name() string { return "two_column" }

func (twoColumn) Match(rest string) (Match, bool) {
	m := twoColumnRe.FindStringSubmatch(rest)
	if m == nil {
		return Match{}, false
	}
	if !consistentDecimals(m[2], m[3]) {
		return Match{}, false
	}
	return Match{
		Narration: strings.TrimSpace(m[1]),
		Amount:    moneyOrNil(m[2]),
		Balance:   moneyOrNil(m[3]),
		Ambiguous: true,
	}, true
}

// loose picks numeric tokens that are not glued to letters or '@', so digits
// inside UPI handles and reference codes are left in the narration.
type loose struct{}

func (loose) Name() string { return "loose" }

func (loose) Match(rest string) (Match, bool) {
	spans := looseTokenRe.FindAllStringIndex(rest, -1)
	var tokens [][]int
	for _, sp := range spans {
		if adjacentToWord(rest, sp[0], sp[1]) {
			continue
		}
		tokens = append(tokens, sp)
	}
	if len(tokens) < 2 {
		return Match{}, false
	}

	used := tokens[len(tokens)-2:]
	if len(tokens) >= 3 {
		used = tokens[len(tokens)-3:]
	}

	value := func(sp []int) *int64 {
		v := normalize.Amount(rest[sp[0]:sp[1]])
		return &v
	}

	var m Match
	m.Balance = value(used[len(used)-1])
	if len(used) == 3 {
		m.Withdrawal = nonZero(value(used[0]))
		m.Deposit = nonZero(value(used[1]))
	} else {
		m.Amount = value(used[0])
		m.Ambiguous = true
	}
	m.Narration = removeSpans(rest, used)
	return m, true
}

func adjacentToWord(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if r == '@' || unicode.IsLetter(r) {
			return true
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if r == '@' || unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func removeSpans(s string, spans [][]int) string {
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		b.WriteString(s[prev:sp[0]])
		b.WriteByte(' ')
		prev = sp[1]
	}
	b.WriteString(s[prev:])
	return strings.Join(strings.Fields(b.String()), " ")
}

// consistentDecimals rejects token sets where some amounts carry decimals and
// others do not, which usually means a reference number was taken as money.
func consistentDecimals(tokens ...string) bool {
	withDot, withoutDot := 0, 0
	for _, t := range tokens {
		if t == "-" {
			continue
		}
		if strings.Contains(t, ".") {
			withDot++
		} else {
			withoutDot++
		}
	}
	return withDot == 0 || withoutDot == 0
}

func moneyOrNil(tok string) *int64 {
	tok = strings.TrimSpace(tok)
	if tok == "" || tok == "-" {
		return nil
	}
	v := normalize.Amount(tok)
	return &v
}

func nonZero(v *int64) *int64 {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}

// parseMoneyCell parses a column slice. ok is false when the cell holds
// something other than a single amount, which indicates a mis-sliced line.
func parseMoneyCell(cell string) (v *int64, ok bool) {
	cell = strings.TrimSpace(drCrSuffixRe.ReplaceAllString(strings.TrimSpace(cell), "$1"))
	if cell == "" || cell == "-" {
		return nil, true
	}
	if !moneyCellRe.MatchString(cell) {
		return nil, false
	}
	return moneyOrNil(cell), true
}
