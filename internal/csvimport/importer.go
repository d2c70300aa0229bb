// Package csvimport reads tabular statement exports (CSV and XLSX) into the
// same raw transaction tuples the text extractor produces.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/normalize"
	"github.com/dvloznov/statement-ledger/internal/parser"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrMissingRequiredColumns is returned when the header row has no
// resolvable date or narration column. No rows are processed in that case.
var ErrMissingRequiredColumns = errors.New("missing required columns")

const maxNoteInput = 200

// Result is the outcome of one import. Row-level problems are reported in
// Skipped and Warnings; Import only fails on unreadable input or a header
// that cannot be resolved.
type Result struct {
	Transactions []domain.RawTransaction
	Skipped      []parser.LineNote
	Warnings     []parser.LineNote
}

// Importer converts tabular rows using the header alias table.
type Importer struct{}

// NewImporter returns an Importer.
func NewImporter() *Importer {
	return &Importer{}
}

// ImportCSV reads comma separated rows from r. A UTF-8 byte order mark is
// tolerated.
func (im *Importer) ImportCSV(r io.Reader) (Result, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("ImportCSV: reading rows: %w", err)
	}
	return im.importRows(rows)
}

// ImportXLSX reads the first sheet of a workbook from r.
func (im *Importer) ImportXLSX(r io.Reader) (Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("ImportXLSX: opening workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return Result{}, fmt.Errorf("ImportXLSX: workbook has no sheets")
	}

	// Raw values keep dates as serial numbers instead of a locale format.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Result{}, fmt.Errorf("ImportXLSX: reading sheet %q: %w", sheet, err)
	}
	return im.importRows(rows)
}

func (im *Importer) importRows(rows [][]string) (Result, error) {
	var res Result

	headerIdx := -1
	for i, row := range rows {
		if !isBlank(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return res, nil
	}

	cols, err := resolveHeader(rows[headerIdx])
	if err != nil {
		return Result{}, err
	}

	for i, row := range rows[headerIdx+1:] {
		if isBlank(row) {
			continue
		}
		lineNo := headerIdx + i + 2
		cols.convert(&res, lineNo, row)
	}
	return res, nil
}

func (c columns) convert(res *Result, lineNo int, row []string) {
	rawLine := strings.Join(row, ",")
	skip := func(reason string) {
		res.Skipped = append(res.Skipped, parser.LineNote{Line: lineNo, Input: normalize.Truncate(rawLine, maxNoteInput), Reason: reason})
	}

	date, ok := parseDate(c.cell(row, fieldDate))
	if !ok {
		skip("invalid date")
		return
	}
	narration := strings.Join(strings.Fields(c.cell(row, fieldNarration)), " ")
	if narration == "" {
		skip("empty narration")
		return
	}

	tx := domain.RawTransaction{
		Date:      date,
		Narration: narration,
		RawLine:   rawLine,
	}
	if vd, ok := parseDate(c.cell(row, fieldValueDate)); ok {
		tx.ValueDate = &vd
	}
	if bal := c.amount(row, fieldBalance); bal != nil {
		tx.BalanceMinor = *bal
	}

	if c.has(fieldDebit) || c.has(fieldCredit) {
		tx.DebitMinor = positive(c.amount(row, fieldDebit))
		tx.CreditMinor = positive(c.amount(row, fieldCredit))
	} else if amt := c.amount(row, fieldAmount); amt != nil {
		switch typeHint(c.cell(row, fieldType)) {
		case domain.TxnTypeDebit:
			tx.DebitMinor = positive(abs(amt))
		case domain.TxnTypeCredit:
			tx.CreditMinor = positive(abs(amt))
		default:
			if *amt < 0 {
				tx.DebitMinor = positive(abs(amt))
			} else {
				tx.AmountMinor = *amt
				res.Warnings = append(res.Warnings, parser.LineNote{
					Line:   lineNo,
					Input:  normalize.Truncate(rawLine, maxNoteInput),
					Reason: "amount has no type hint; stored as other",
				})
			}
		}
	}

	tx.Type = domain.ExpectedType(tx.DebitMinor, tx.CreditMinor)
	switch tx.Type {
	case domain.TxnTypeDebit:
		tx.AmountMinor = *tx.DebitMinor
	case domain.TxnTypeCredit:
		tx.AmountMinor = *tx.CreditMinor
	}

	ref := strings.TrimSpace(c.cell(row, fieldReference))
	if ref == "" {
		ref = parser.DeriveReference(narration)
	}
	tx.Reference = domain.StringPtr(ref)

	res.Transactions = append(res.Transactions, tx)
}

func (c columns) cell(row []string, f field) string {
	col, ok := c[f]
	if !ok || col.index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col.index])
}

func (c columns) has(f field) bool {
	_, ok := c[f]
	return ok
}

// amount returns nil for an absent column or an empty cell. Columns whose
// header ends in _paise already hold minor units.
func (c columns) amount(row []string, f field) *int64 {
	v := c.cell(row, f)
	if v == "" || v == "-" {
		return nil
	}
	n := normalize.AmountMinor(v, c[f].minor)
	return &n
}

var (
	debitHints  = map[string]struct{}{"debit": {}, "dr": {}, "d": {}, "withdrawal": {}, "wdl": {}}
	creditHints = map[string]struct{}{"credit": {}, "cr": {}, "c": {}, "deposit": {}, "dep": {}}
)

func typeHint(v string) domain.TxnType {
	v = strings.ToLower(strings.Trim(strings.TrimSpace(v), "."))
	if _, ok := debitHints[v]; ok {
		return domain.TxnTypeDebit
	}
	if _, ok := creditHints[v]; ok {
		return domain.TxnTypeCredit
	}
	return domain.TxnTypeOther
}

// parseDate accepts the text layouts normalize.Date knows plus spreadsheet
// serial day numbers.
func parseDate(v string) (civil.Date, bool) {
	if d, ok := normalize.Date(v); ok {
		return d, true
	}
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial < 1 || serial > 2958465 {
		return civil.Date{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return civil.Date{}, false
	}
	return civil.DateOf(t), true
}

func positive(v *int64) *int64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func abs(v *int64) *int64 {
	if v == nil || *v >= 0 {
		return v
	}
	n := -*v
	return &n
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
