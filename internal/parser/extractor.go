// Package parser turns statement text into ordered raw transaction tuples.
//
// Two segmentation modes exist. When a column-label row is found, data lines
// are sliced at the label offsets and non-dated lines are merged into the
// narration of the current record. Otherwise lines are buffered: a dated line
// starts a new record and everything until the next dated line is joined onto
// it. Each buffered record goes through an ordered chain of strategies.
package parser

import (
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/normalize"
)

const (
	ModeHeader = "header"
	ModeBuffer = "buffer"

	// DefaultAmountCeilingMinor is 10 crore rupees in paise.
	DefaultAmountCeilingMinor int64 = 100_000_000_00

	maxNoteInput = 200
)

// Config tunes the extractor.
type Config struct {
	// AmountCeilingMinor nulls out any parsed amount whose absolute value is
	// larger. Zero disables the clamp.
	AmountCeilingMinor int64
	Strategies         []Strategy
}

// LineNote describes a record that was dropped or needed a guess.
type LineNote struct {
	Line   int    `json:"line"`
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

// Result is the outcome of one extraction. Per-line problems are reported in
// Skipped and Warnings; extraction itself never fails.
type Result struct {
	Mode         string
	Transactions []domain.RawTransaction
	Skipped      []LineNote
	Warnings     []LineNote
}

// Extractor is safe for concurrent use.
type Extractor struct {
	strategies []Strategy
	ceiling    int64
}

// NewExtractor builds an extractor with the default strategy chain unless cfg
// supplies one.
func NewExtractor(cfg Config) *Extractor {
	strategies := cfg.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{
		strategies: strategies,
		ceiling:    cfg.AmountCeilingMinor,
	}
}

var (
	sectionEndRe     = regexp.MustCompile(`(?i)^\s*(?:statement\s+summary|opening\s+balance|closing\s+balance|\*+\s*end\s+of\s+statement)`)
	openingBalanceRe = regexp.MustCompile(`(?i)opening\s+balance[^\d]*(` + moneyPattern + `)`)
)

// record is one statement entry being assembled.
type record struct {
	line      int
	rawLines  []string
	firstLine string
	cells     map[columnKind]string
	extra     []string
}

// run carries per-extraction state.
type run struct {
	e           *Extractor
	res         Result
	prevBalance *int64
}

// Extract parses text into raw transactions.
func (e *Extractor) Extract(text string) Result {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	r := &run{e: e}
	for i, ln := range lines {
		if lay, ok := detectHeader(ln); ok {
			r.res.Mode = ModeHeader
			r.extractWithLayout(lay, lines[i+1:], i+2)
			return r.res
		}
	}

	r.res.Mode = ModeBuffer
	r.extractBuffered(lines)
	return r.res
}

func (r *run) extractBuffered(lines []string) {
	var cur *record
	flush := func() {
		if cur != nil {
			r.finishBuffered(cur)
			cur = nil
		}
	}

	for i, ln := range lines {
		trimmed := strings.TrimSpace(ln)
		if trimmed == "" {
			continue
		}
		if normalize.DatePrefix.MatchString(trimmed) {
			flush()
			cur = &record{line: i + 1, rawLines: []string{trimmed}}
			continue
		}
		if cur == nil {
			r.seedOpeningBalance(trimmed)
			continue
		}
		cur.rawLines = append(cur.rawLines, trimmed)
	}
	flush()
}

func (r *run) finishBuffered(rec *record) {
	joined := strings.Join(strings.Fields(strings.Join(rec.rawLines, " ")), " ")
	dateTok, rest := splitDate(joined)
	date, ok := normalize.Date(dateTok)
	if !ok {
		r.skip(rec.line, joined, "invalid date")
		return
	}

	m, ok := r.runChain(rest)
	if !ok {
		r.skip(rec.line, joined, "no strategy matched")
		return
	}
	r.emit(rec.line, joined, date, nil, m, "")
}

func (r *run) extractWithLayout(lay *layout, lines []string, firstLineNo int) {
	var cur *record
	flush := func() {
		if cur != nil {
			r.finishSliced(lay, cur)
			cur = nil
		}
	}

	for i, ln := range lines {
		lineNo := firstLineNo + i
		trimmed := strings.TrimSpace(ln)
		if trimmed == "" {
			continue
		}
		if _, ok := detectHeader(ln); ok {
			continue
		}
		if sectionEndRe.MatchString(trimmed) {
			flush()
			continue
		}
		if normalize.DatePrefix.MatchString(trimmed) {
			flush()
			cur = &record{
				line:      lineNo,
				rawLines:  []string{trimmed},
				firstLine: ln,
				cells:     lay.slice(ln),
			}
			continue
		}
		if cur == nil {
			continue
		}
		cur.rawLines = append(cur.rawLines, trimmed)
		if narr := lay.slice(ln)[colNarration]; narr != "" {
			cur.extra = append(cur.extra, narr)
		}
	}
	flush()
}

func (r *run) finishSliced(lay *layout, rec *record) {
	rawLine := strings.Join(strings.Fields(strings.Join(rec.rawLines, " ")), " ")

	dateTok, leftover := splitDate(rec.cells[colDate])
	date, ok := normalize.Date(dateTok)
	if !ok {
		r.skip(rec.line, rawLine, "invalid date")
		return
	}

	narrParts := make([]string, 0, 2+len(rec.extra))
	if leftover != "" {
		narrParts = append(narrParts, leftover)
	}
	narrParts = append(narrParts, rec.cells[colNarration])
	narrParts = append(narrParts, rec.extra...)
	narration := strings.Join(strings.Fields(strings.Join(narrParts, " ")), " ")

	var valueDate *civil.Date
	if lay.has(colValueDate) {
		if vd, ok := normalize.Date(firstToken(rec.cells[colValueDate])); ok {
			valueDate = &vd
		}
	}

	w, okW := parseMoneyCell(rec.cells[colWithdrawal])
	d, okD := parseMoneyCell(rec.cells[colDeposit])
	b, okB := parseMoneyCell(rec.cells[colBalance])

	if okW && okD && okB && b != nil && (w != nil || d != nil) {
		m := Match{Narration: narration, Withdrawal: w, Deposit: d, Balance: b}
		r.emit(rec.line, rawLine, date, valueDate, m, rec.cells[colReference])
		return
	}

	// The slices did not line up; retry the first physical line with the
	// strategy chain and keep the continuation text.
	_, rest := splitDate(strings.Join(strings.Fields(rec.firstLine), " "))
	m, ok := r.runChain(rest)
	if !ok {
		r.skip(rec.line, rawLine, "columns misaligned and no strategy matched")
		return
	}
	if len(rec.extra) > 0 {
		m.Narration = strings.Join(append([]string{m.Narration}, rec.extra...), " ")
	}
	r.emit(rec.line, rawLine, date, valueDate, m, "")
}

func (r *run) runChain(rest string) (Match, bool) {
	rest = strings.TrimSpace(drCrSuffixRe.ReplaceAllString(strings.TrimSpace(rest), "$1"))
	if rest == "" {
		return Match{}, false
	}
	for _, s := range r.e.strategies {
		if m, ok := s.Match(rest); ok {
			return m, true
		}
	}
	return Match{}, false
}

func (r *run) emit(line int, rawLine string, date civil.Date, valueDate *civil.Date, m Match, refCell string) {
	m.Withdrawal = r.clamp(m.Withdrawal)
	m.Deposit = r.clamp(m.Deposit)
	m.Balance = r.clamp(m.Balance)
	m.Amount = r.clamp(m.Amount)

	if m.Ambiguous {
		side, guessed := calibrate(r.prevBalance, m.Amount, m.Balance, m.Narration)
		if guessed {
			r.warn(line, rawLine, "amount side guessed as "+string(side))
		}
		if side == domain.TxnTypeCredit {
			m.Deposit = m.Amount
		} else {
			m.Withdrawal = m.Amount
		}
	}

	tx := domain.RawTransaction{
		Date:        date,
		ValueDate:   valueDate,
		Narration:   m.Narration,
		RawLine:     rawLine,
		DebitMinor:  m.Withdrawal,
		CreditMinor: m.Deposit,
	}
	tx.Type = domain.ExpectedType(tx.DebitMinor, tx.CreditMinor)
	switch tx.Type {
	case domain.TxnTypeDebit:
		tx.AmountMinor = *tx.DebitMinor
	case domain.TxnTypeCredit:
		tx.AmountMinor = *tx.CreditMinor
	}
	if m.Balance != nil {
		tx.BalanceMinor = *m.Balance
		r.prevBalance = m.Balance
	}

	ref := strings.TrimSpace(refCell)
	if ref == "" {
		ref = DeriveReference(m.Narration)
	}
	tx.Reference = domain.StringPtr(ref)

	r.res.Transactions = append(r.res.Transactions, tx)
}

func (r *run) clamp(v *int64) *int64 {
	if v == nil || r.e.ceiling <= 0 {
		return v
	}
	abs := *v
	if abs < 0 {
		abs = -abs
	}
	if abs > r.e.ceiling {
		return nil
	}
	return v
}

func (r *run) seedOpeningBalance(line string) {
	if m := openingBalanceRe.FindStringSubmatch(line); m != nil {
		v := normalize.Amount(m[1])
		r.prevBalance = &v
	}
}

func (r *run) skip(line int, input, reason string) {
	r.res.Skipped = append(r.res.Skipped, LineNote{Line: line, Input: normalize.Truncate(input, maxNoteInput), Reason: reason})
}

func (r *run) warn(line int, input, reason string) {
	r.res.Warnings = append(r.res.Warnings, LineNote{Line: line, Input: normalize.Truncate(input, maxNoteInput), Reason: reason})
}

// splitDate separates the leading date token from the rest of a line.
func splitDate(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexFunc(s, func(r rune) bool { return r == ' ' })
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

func firstToken(s string) string {
	tok, _ := splitDate(s)
	return tok
}
