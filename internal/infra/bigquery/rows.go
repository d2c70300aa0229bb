package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRow is one exported transaction in <dataset>.transactions.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED
	StatementID   string `bigquery:"statement_id"`   // REQUIRED

	AccountID bigquery.NullString `bigquery:"account_id"` // NULLABLE

	TransactionDate civil.Date        `bigquery:"transaction_date"` // REQUIRED
	ValueDate       bigquery.NullDate `bigquery:"value_date"`       // NULLABLE

	Narration string              `bigquery:"narration"` // REQUIRED
	Reference bigquery.NullString `bigquery:"reference"` // NULLABLE
	TxnType   string              `bigquery:"txn_type"`  // REQUIRED

	Amount       *big.Rat           `bigquery:"amount"`        // REQUIRED NUMERIC, rupees
	AmountMinor  int64              `bigquery:"amount_minor"`  // REQUIRED
	DebitMinor   bigquery.NullInt64 `bigquery:"debit_minor"`   // NULLABLE
	CreditMinor  bigquery.NullInt64 `bigquery:"credit_minor"`  // NULLABLE
	BalanceAfter *big.Rat           `bigquery:"balance_after"` // REQUIRED NUMERIC, rupees

	Checksum       string              `bigquery:"checksum"`        // REQUIRED
	CounterpartyID bigquery.NullString `bigquery:"counterparty_id"` // NULLABLE

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// CounterpartyRow is one snapshot of a counterparty in <dataset>.counterparties.
type CounterpartyRow struct {
	CounterpartyID string `bigquery:"counterparty_id"`
	UserID         string `bigquery:"user_id"`
	CanonicalName  string `bigquery:"canonical_name"`

	TxCount     int64    `bigquery:"tx_count"`
	TotalDebit  *big.Rat `bigquery:"total_debit"`
	TotalCredit *big.Rat `bigquery:"total_credit"`

	FirstSeen bigquery.NullDate `bigquery:"first_seen"`
	LastSeen  bigquery.NullDate `bigquery:"last_seen"`

	SnapshotTS time.Time `bigquery:"snapshot_ts"`
}

// rupees converts minor units to an exact NUMERIC value.
func rupees(minor int64) *big.Rat {
	return decimal.New(minor, -2).Rat()
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

func nullDate(d *civil.Date) bigquery.NullDate {
	if d == nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: *d, Valid: true}
}

func nullInt(v *int64) bigquery.NullInt64 {
	if v == nil {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: *v, Valid: true}
}

// NewTransactionRow maps a stored transaction to its export row.
func NewTransactionRow(tx *domain.TransactionRecord, exported time.Time) *TransactionRow {
	return &TransactionRow{
		TransactionID:   tx.ID,
		UserID:          tx.UserID,
		StatementID:     tx.StatementID,
		AccountID:       nullString(tx.AccountID),
		TransactionDate: tx.Date,
		ValueDate:       nullDate(tx.ValueDate),
		Narration:       tx.Narration,
		Reference:       nullString(tx.Reference),
		TxnType:         string(tx.Type),
		Amount:          rupees(tx.AmountMinor),
		AmountMinor:     tx.AmountMinor,
		DebitMinor:      nullInt(tx.DebitMinor),
		CreditMinor:     nullInt(tx.CreditMinor),
		BalanceAfter:    rupees(tx.BalanceMinor),
		Checksum:        tx.Checksum,
		CounterpartyID:  nullString(tx.CounterpartyID),
		ExportedTS:      exported,
	}
}

// NewCounterpartyRow maps a counterparty to a snapshot row.
func NewCounterpartyRow(cp *domain.Counterparty, snapshot time.Time) *CounterpartyRow {
	return &CounterpartyRow{
		CounterpartyID: cp.ID,
		UserID:         cp.UserID,
		CanonicalName:  cp.CanonicalName,
		TxCount:        int64(cp.TxCount),
		TotalDebit:     rupees(cp.TotalDebitMinor),
		TotalCredit:    rupees(cp.TotalCreditMinor),
		FirstSeen:      nullDate(cp.FirstSeen),
		LastSeen:       nullDate(cp.LastSeen),
		SnapshotTS:     snapshot,
	}
}
