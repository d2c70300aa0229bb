package parser

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

type columnKind int

const (
	colDate columnKind = iota
	colNarration
	colReference
	colValueDate
	colWithdrawal
	colDeposit
	colBalance
)

func (k columnKind) numeric() bool {
	return k == colWithdrawal || k == colDeposit || k == colBalance
}

var headerMarkers = []struct {
	kind columnKind
	re   *regexp.Regexp
}{
	{colValueDate, regexp.MustCompile(`(?i)\bvalue\s*(?:dt|date)\b\.?`)},
	{colDate, regexp.MustCompile(`(?i)\b(?:txn\s+|tran\s+|transaction\s+)?date\b`)},
	{colNarration, regexp.MustCompile(`(?i)\b(?:narration|description|particulars|details|remarks)\b`)},
	{colReference, regexp.MustCompile(`(?i)\b(?:chq|cheque|ref)\b[./\w ]*?(?:no\b\.?)?`)},
	{colWithdrawal, regexp.MustCompile(`(?i)\b(?:withdrawals?|debits?)\b(?:\s+amt\b\.?|\s+amount\b)?(?:\s*\(\w+\))?`)},
	{colDeposit, regexp.MustCompile(`(?i)\b(?:deposits?|credits?)\b(?:\s+amt\b\.?|\s+amount\b)?(?:\s*\(\w+\))?`)},
	{colBalance, regexp.MustCompile(`(?i)\b(?:closing\s+)?balance\b(?:\s*\(\w+\))?`)},
}

// column is one labelled span of a fixed-width statement table, in rune
// offsets. end is exclusive; -1 means "to end of line".
type column struct {
	kind       columnKind
	labelStart int
	labelEnd   int
	start      int
	end        int
}

// layout is the set of columns inferred from a header row.
type layout struct {
	columns []column
}

// detectHeader recognises a column-label row. It needs date, narration and
// balance labels plus at least one of withdrawal or deposit.
func detectHeader(line string) (*layout, bool) {
	line = expandTabs(line)
	if strings.TrimSpace(line) == "" {
		return nil, false
	}

	type span struct{ start, end int }
	var taken []span
	overlaps := func(s, e int) bool {
		for _, t := range taken {
			if s < t.end && e > t.start {
				return true
			}
		}
		return false
	}

	found := make(map[columnKind]column)
	for _, marker := range headerMarkers {
		for _, loc := range marker.re.FindAllStringIndex(line, -1) {
			if overlaps(loc[0], loc[1]) {
				continue
			}
			taken = append(taken, span{loc[0], loc[1]})
			found[marker.kind] = column{
				kind:       marker.kind,
				labelStart: utf8.RuneCountInString(line[:loc[0]]),
				labelEnd:   utf8.RuneCountInString(line[:loc[1]]),
			}
			break
		}
	}

	_, hasDate := found[colDate]
	_, hasNarr := found[colNarration]
	_, hasBal := found[colBalance]
	_, hasW := found[colWithdrawal]
	_, hasD := found[colDeposit]
	if !hasDate || !hasNarr || !hasBal || !(hasW || hasD) {
		return nil, false
	}

	cols := make([]column, 0, len(found))
	for _, c := range found {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].labelStart < cols[j].labelStart })

	// Text columns are left aligned under their label; amounts are right
	// aligned and may start anywhere after the previous label ends.
	for i := range cols {
		switch {
		case i == 0:
			cols[i].start = 0
		case cols[i].kind.numeric():
			cols[i].start = cols[i-1].labelEnd + 1
		default:
			cols[i].start = cols[i].labelStart
		}
	}
	for i := range cols {
		if i == len(cols)-1 {
			cols[i].end = -1
		} else {
			cols[i].end = cols[i+1].start
		}
	}

	return &layout{columns: cols}, true
}

// slice cuts a data line into cells keyed by column kind.
func (l *layout) slice(line string) map[columnKind]string {
	runes := []rune(expandTabs(line))
	cells := make(map[columnKind]string, len(l.columns))
	for _, c := range l.columns {
		start := c.start
		if start > len(runes) {
			start = len(runes)
		}
		end := c.end
		if end < 0 || end > len(runes) {
			end = len(runes)
		}
		if end < start {
			end = start
		}
		cells[c.kind] = strings.TrimSpace(string(runes[start:end]))
	}
	return cells
}

func (l *layout) has(kind columnKind) bool {
	for _, c := range l.columns {
		if c.kind == kind {
			return true
		}
	}
	return false
}

func expandTabs(line string) string {
	if !strings.Contains(line, "\t") {
		return line
	}
	const tabWidth = 8
	var b strings.Builder
	col := 0
	for _, r := range line {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}
