package csvimport

import (
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestImportCSV_MinorUnitHeaderIsNotRescaled(t *testing.T) {
	in := "txn_date,narration,amount_paise,txn_type,balance_paise\n" +
		"01/09/2025,UPI-JOHN DOE-DOEJOHN@BANK,50000,debit,150000\n"

	res, err := NewImporter().ImportCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)

	tx := res.Transactions[0]
	assert.Equal(t, civil.Date{Year: 2025, Month: 9, Day: 1}, tx.Date)
	assert.Equal(t, domain.TxnTypeDebit, tx.Type)
	assert.Equal(t, int64(50000), tx.AmountMinor)
	assert.Equal(t, domain.Int64Ptr(50000), tx.DebitMinor)
	assert.Equal(t, int64(150000), tx.BalanceMinor)
}

func TestImportCSV_MajorUnitHeaderIsScaled(t *testing.T) {
	in := "Date,Description,Amount,Type,Balance\n" +
		"2025-09-01,NEFT-ACME CORP REF: AB12345,500.00,CR,\"1,500.00\"\n"

	res, err := NewImporter().ImportCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)

	tx := res.Transactions[0]
	assert.Equal(t, domain.TxnTypeCredit, tx.Type)
	assert.Equal(t, int64(50000), tx.AmountMinor)
	assert.Equal(t, domain.Int64Ptr(50000), tx.CreditMinor)
	assert.Nil(t, tx.DebitMinor)
	assert.Equal(t, int64(150000), tx.BalanceMinor)
	require.NotNil(t, tx.Reference)
	assert.Equal(t, "AB12345", *tx.Reference)
}

func TestImportCSV_DebitCreditColumns(t *testing.T) {
	in := "\ufeffDate,Narration,Debit,Credit,Balance,Reference Number\n" +
		"02/09/25,ATM WDL,1000.00,,24000.00,\n" +
		"03/09/25,NEFT-ACME SALARY,,25000.00,49000.00,N123\n"

	res, err := NewImporter().ImportCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Empty(t, res.Warnings)

	atm := res.Transactions[0]
	assert.Equal(t, domain.TxnTypeDebit, atm.Type)
	assert.Equal(t, int64(100000), atm.AmountMinor)
	assert.Nil(t, atm.CreditMinor)
	assert.Nil(t, atm.Reference)

	salary := res.Transactions[1]
	assert.Equal(t, domain.TxnTypeCredit, salary.Type)
	assert.Equal(t, int64(2500000), salary.AmountMinor)
	require.NotNil(t, salary.Reference)
	assert.Equal(t, "N123", *salary.Reference)
}

func TestImportCSV_AmountWithoutTypeHint(t *testing.T) {
	in := "txn_date,narration,amount\n" +
		"01/09/2025,ZOMATO ORDER,-250.00\n" +
		"01/09/2025,MYSTERY ENTRY,100.00\n"

	res, err := NewImporter().ImportCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)

	neg := res.Transactions[0]
	assert.Equal(t, domain.TxnTypeDebit, neg.Type)
	assert.Equal(t, int64(25000), neg.AmountMinor)

	unknown := res.Transactions[1]
	assert.Equal(t, domain.TxnTypeOther, unknown.Type)
	assert.Equal(t, int64(10000), unknown.AmountMinor)
	assert.Nil(t, unknown.DebitMinor)
	assert.Nil(t, unknown.CreditMinor)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 3, res.Warnings[0].Line)
}

func TestImportCSV_MissingRequiredColumns(t *testing.T) {
	_, err := NewImporter().ImportCSV(strings.NewReader("amount,balance\n1.00,2.00\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredColumns)
	assert.Contains(t, err.Error(), "txn_date")
	assert.Contains(t, err.Error(), "narration")
}

func TestImportCSV_SkipsBadRows(t *testing.T) {
	in := "txn_date,narration,debit,credit,balance\n" +
		"not a date,SOMETHING,1.00,,2.00\n" +
		"\n" +
		"04/09/2025,,1.00,,2.00\n" +
		"05/09/2025,VALID,1.00,,2.00\n"

	res, err := NewImporter().ImportCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "invalid date", res.Skipped[0].Reason)
	assert.Equal(t, 2, res.Skipped[0].Line)
	assert.Equal(t, "empty narration", res.Skipped[1].Reason)
	assert.Equal(t, 3, res.Skipped[1].Line, "blank lines are not counted")
}

func TestImportCSV_Empty(t *testing.T) {
	res, err := NewImporter().ImportCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
}

func TestImportXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Txn Date", "Narration", "Amount", "Type", "Balance"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"01/09/2025", "UPI-JOHN DOE-DOEJOHN@BANK", 500.5, "DR", 1000}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{45901, "SWIGGY", 120, "DR", 880}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := NewImporter().ImportXLSX(buf)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)

	first := res.Transactions[0]
	assert.Equal(t, domain.TxnTypeDebit, first.Type)
	assert.Equal(t, int64(50050), first.AmountMinor)
	assert.Equal(t, int64(100000), first.BalanceMinor)

	second := res.Transactions[1]
	assert.Equal(t, civil.Date{Year: 2025, Month: 9, Day: 1}, second.Date)
	assert.Equal(t, int64(12000), second.AmountMinor)
}

func TestResolveHeader_PrefersFirstAlias(t *testing.T) {
	cols, err := resolveHeader([]string{"date", "narration", "amount_paise", "amount"})
	require.NoError(t, err)
	assert.Equal(t, column{index: 3, minor: false}, cols[fieldAmount])

	cols, err = resolveHeader([]string{"date", "narration", "amount_paise"})
	require.NoError(t, err)
	assert.Equal(t, column{index: 2, minor: true}, cols[fieldAmount])
}
