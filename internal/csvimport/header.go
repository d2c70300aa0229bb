package csvimport

import (
	"fmt"
	"strings"
)

type field int

const (
	fieldDate field = iota
	fieldValueDate
	fieldNarration
	fieldReference
	fieldType
	fieldAmount
	fieldDebit
	fieldCredit
	fieldBalance
)

func (f field) String() string {
	switch f {
	case fieldDate:
		return "txn_date"
	case fieldValueDate:
		return "value_date"
	case fieldNarration:
		return "narration"
	case fieldReference:
		return "reference"
	case fieldType:
		return "txn_type"
	case fieldAmount:
		return "amount"
	case fieldDebit:
		return "debit"
	case fieldCredit:
		return "credit"
	case fieldBalance:
		return "balance"
	}
	return "unknown"
}

// headerAliases lists accepted header names per field, most specific first.
var headerAliases = []struct {
	field   field
	aliases []string
}{
	{fieldDate, []string{"txn_date", "date"}},
	{fieldValueDate, []string{"value_date", "value_dt"}},
	{fieldNarration, []string{"narration", "description"}},
	{fieldReference, []string{"reference", "reference_number", "ref"}},
	{fieldType, []string{"txn_type", "type"}},
	{fieldAmount, []string{"amount_rupees", "amount", "amount_paise"}},
	{fieldDebit, []string{"debit_paise", "debit"}},
	{fieldCredit, []string{"credit_paise", "credit"}},
	{fieldBalance, []string{"balance_rupees", "balance", "balance_paise"}},
}

const minorSuffix = "_paise"

type column struct {
	index int
	minor bool
}

type columns map[field]column

// resolveHeader maps header cells onto fields. Matching ignores case and
// treats runs of spaces as underscores, so "Txn Date" resolves too.
func resolveHeader(header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := canonicalHeader(h)
		if _, dup := index[key]; !dup && key != "" {
			index[key] = i
		}
	}

	cols := make(columns)
	for _, entry := range headerAliases {
		for _, name := range entry.aliases {
			if i, ok := index[name]; ok {
				cols[entry.field] = column{index: i, minor: strings.HasSuffix(name, minorSuffix)}
				break
			}
		}
	}

	var missing []string
	for _, f := range []field{fieldDate, fieldNarration} {
		if !cols.has(f) {
			missing = append(missing, f.String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("resolveHeader: %w: %s", ErrMissingRequiredColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

func canonicalHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(h), "_"))
}
