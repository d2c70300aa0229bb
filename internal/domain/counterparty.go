package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Counterparty is a canonical payer or payee inferred from narrations.
// Aggregates are always recomputed from matching transactions.
type Counterparty struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	CanonicalName    string      `json:"canonical_name"`
	TxCount          int         `json:"tx_count"`
	TotalDebitMinor  int64       `json:"total_debit_minor"`
	TotalCreditMinor int64       `json:"total_credit_minor"`
	FirstSeen        *civil.Date `json:"first_seen,omitempty"`
	LastSeen         *civil.Date `json:"last_seen,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// AliasType records which heuristic produced an alias.
type AliasType string

const (
	AliasTypeEmail     AliasType = "email"
	AliasTypePhone     AliasType = "phone"
	AliasTypeAccount   AliasType = "account_mask"
	AliasTypeUPI       AliasType = "upi"
	AliasTypeSegment   AliasType = "segment"
	AliasTypeWords     AliasType = "words"
	AliasTypeNarration AliasType = "narration"
	AliasTypeManual    AliasType = "manual"
)

// CounterpartyAlias maps a normalized comparison key to a counterparty.
type CounterpartyAlias struct {
	CounterpartyID string    `json:"counterparty_id"`
	Alias          string    `json:"alias"`
	AliasType      AliasType `json:"alias_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// CounterpartyHistory records a manual reassignment of a transaction.
type CounterpartyHistory struct {
	TransactionID     string
	OldCounterpartyID *string
	NewCounterpartyID string
	ChangedBy         string
	Reason            string
}
