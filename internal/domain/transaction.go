package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// TxnType classifies a transaction by which amount column is populated.
type TxnType string

const (
	TxnTypeDebit  TxnType = "debit"
	TxnTypeCredit TxnType = "credit"
	TxnTypeOther  TxnType = "other"
)

// RawTransaction is the format-agnostic tuple produced by the text extractor
// and the CSV importer. It carries no identity and no checksum yet.
type RawTransaction struct {
	Date         civil.Date
	ValueDate    *civil.Date
	Narration    string
	RawLine      string
	Reference    *string
	Type         TxnType
	AmountMinor  int64
	DebitMinor   *int64
	CreditMinor  *int64
	BalanceMinor int64
}

// TransactionRecord is one persisted statement line.
type TransactionRecord struct {
	ID             string      `json:"id"`
	StatementID    string      `json:"statement_id"`
	UserID         string      `json:"user_id"`
	AccountID      *string     `json:"account_id,omitempty"`
	Date           civil.Date  `json:"date"`
	ValueDate      *civil.Date `json:"value_date,omitempty"`
	Narration      string      `json:"narration"`
	RawLine        string      `json:"raw_line"`
	Reference      *string     `json:"reference,omitempty"`
	Type           TxnType     `json:"type"`
	AmountMinor    int64       `json:"amount_minor"`
	DebitMinor     *int64      `json:"debit_minor,omitempty"`
	CreditMinor    *int64      `json:"credit_minor,omitempty"`
	BalanceMinor   int64       `json:"balance_minor"`
	Checksum       string      `json:"checksum"`
	CounterpartyID *string     `json:"counterparty_id,omitempty"`
	ManualFlag     bool        `json:"manual_flag"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// ExpectedType derives the transaction type from the populated amount columns.
func ExpectedType(debit, credit *int64) TxnType {
	switch {
	case debit != nil && *debit > 0:
		return TxnTypeDebit
	case credit != nil && *credit > 0:
		return TxnTypeCredit
	default:
		return TxnTypeOther
	}
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
