// Package store declares the persistence contracts the ledger services depend
// on. Implementations live under internal/infra.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/statement-ledger/internal/domain"
)

var (
	// ErrNotFound is returned when a row scoped to the caller does not exist.
	ErrNotFound = errors.New("not found")

	// ErrParseInProgress is returned when a statement is already being parsed.
	ErrParseInProgress = errors.New("statement parse already in progress")
)

// StatementFilter narrows ListStatements.
type StatementFilter struct {
	// Query matches a substring of the filename, case-insensitively.
	Query  string
	Limit  int
	Offset int
}

// TransactionFix is the set of corrected fields written by the consistency
// checker.
type TransactionFix struct {
	AmountMinor int64
	Type        domain.TxnType
	Checksum    string
}

// StatementRepository provides statement lifecycle operations.
type StatementRepository interface {
	// InsertStatement stores a new statement row in status uploaded.
	InsertStatement(ctx context.Context, st *domain.Statement) error

	// GetStatement returns ErrNotFound when the statement does not belong to userID.
	GetStatement(ctx context.Context, userID, statementID string) (*domain.Statement, error)

	// FindStatementByChecksum returns nil, nil when the user has no statement with that content hash.
	FindStatementByChecksum(ctx context.Context, userID, contentSHA256 string) (*domain.Statement, error)

	// ListStatements returns the user's statements, newest first.
	ListStatements(ctx context.Context, userID string, filter StatementFilter) ([]*domain.Statement, error)

	// MarkParsing moves a statement to parsing. It fails with ErrParseInProgress
	// when the statement is already parsing, unless force is set.
	MarkParsing(ctx context.Context, userID, statementID string, force bool) error

	// MarkParsed sets status parsed, parsed_at and tx_count and clears any error.
	MarkParsed(ctx context.Context, statementID string, txCount int) error

	// MarkUnparsed sets a non-success terminal status (error or needs_text) with a message.
	MarkUnparsed(ctx context.Context, statementID string, status domain.ParseStatus, message string) error

	// RenameStatement changes the display filename.
	RenameStatement(ctx context.Context, userID, statementID, filename string) error

	// DeleteStatement removes the statement and, by cascade, its transactions and logs.
	DeleteStatement(ctx context.Context, userID, statementID string) error

	// RefreshTxCount recounts the statement's transactions and stores the result.
	RefreshTxCount(ctx context.Context, statementID string) (int, error)

	// GetStatementMetrics summarises a parsed statement.
	GetStatementMetrics(ctx context.Context, userID, statementID string) (*domain.StatementMetrics, error)
}

// TransactionRepository provides transaction row operations.
type TransactionRepository interface {
	// UpsertTransaction inserts the row or, when (user_id, checksum) exists,
	// only refreshes updated_at. tx.ID is set to the stored row's id.
	UpsertTransaction(ctx context.Context, tx *domain.TransactionRecord) error

	// ListStatementTransactions returns a statement's rows in date order.
	ListStatementTransactions(ctx context.Context, userID, statementID string) ([]*domain.TransactionRecord, error)

	// ListUnclustered returns the user's rows without a counterparty.
	ListUnclustered(ctx context.Context, userID string) ([]*domain.TransactionRecord, error)

	// GetTransaction returns ErrNotFound when the row does not belong to userID.
	GetTransaction(ctx context.Context, userID, transactionID string) (*domain.TransactionRecord, error)

	// ListTransactionsByNarration returns rows whose narration contains fragment, ignoring case.
	ListTransactionsByNarration(ctx context.Context, userID, fragment string) ([]*domain.TransactionRecord, error)

	// FindTransactionByChecksum returns nil, nil when the user has no row with that checksum.
	FindTransactionByChecksum(ctx context.Context, userID, checksum string) (*domain.TransactionRecord, error)

	// ApplyTransactionFix writes corrected amount, type and checksum.
	ApplyTransactionFix(ctx context.Context, transactionID string, fix TransactionFix) error

	// AssignCounterparty sets counterparty_id on the given rows. Callers bound the slice size.
	AssignCounterparty(ctx context.Context, counterpartyID string, transactionIDs []string) error

	// SetManualCounterparty sets counterparty_id and manual_flag on one row.
	SetManualCounterparty(ctx context.Context, transactionID, counterpartyID string) error

	// StatementCounterpartyIDs lists the distinct counterparties referenced by a statement.
	StatementCounterpartyIDs(ctx context.Context, statementID string) ([]string, error)
}

// CounterpartyRepository provides counterparty and alias operations.
type CounterpartyRepository interface {
	// FindCounterpartyByAlias returns nil, nil when no alias row maps the key for this user.
	FindCounterpartyByAlias(ctx context.Context, userID, alias string) (*domain.Counterparty, error)

	// FindCounterpartyByName returns nil, nil when no counterparty has that canonical name.
	FindCounterpartyByName(ctx context.Context, userID, canonicalName string) (*domain.Counterparty, error)

	// InsertCounterparty stores a new counterparty with zero aggregates.
	InsertCounterparty(ctx context.Context, cp *domain.Counterparty) error

	// GetCounterparty returns ErrNotFound when the counterparty does not belong to userID.
	GetCounterparty(ctx context.Context, userID, counterpartyID string) (*domain.Counterparty, error)

	// EnsureAlias inserts the alias row unless it already exists.
	EnsureAlias(ctx context.Context, a domain.CounterpartyAlias) error

	// DetachAlias removes alias from the user's other counterparties so it
	// maps only to keepID.
	DetachAlias(ctx context.Context, userID, alias, keepID string) error

	// ListAliases returns a counterparty's aliases.
	ListAliases(ctx context.Context, counterpartyID string) ([]domain.CounterpartyAlias, error)

	// RecomputeAggregates rebuilds tx_count, totals and first/last seen from
	// the counterparty's current transactions.
	RecomputeAggregates(ctx context.Context, counterpartyID string) error

	// ListCounterparties returns the user's counterparties by tx_count, descending.
	ListCounterparties(ctx context.Context, userID string, limit int) ([]*domain.Counterparty, error)

	// InsertHistory records a manual reassignment.
	InsertHistory(ctx context.Context, h domain.CounterpartyHistory) error
}

// EventRepository stores parse logs and audit events.
type EventRepository interface {
	InsertParseLog(ctx context.Context, l *domain.ParseLog) error

	// ListParseLogs returns the most recent logs for a statement first.
	ListParseLogs(ctx context.Context, statementID string, limit int) ([]*domain.ParseLog, error)

	InsertAudit(ctx context.Context, e *domain.AuditEvent) error
}

// AccountRepository provides bank account operations.
type AccountRepository interface {
	InsertAccount(ctx context.Context, a *domain.Account) error
	ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error)
	GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
}

// DashboardRepository computes per-user overview figures.
type DashboardRepository interface {
	DashboardKPIs(ctx context.Context, userID string, top int) (*domain.DashboardKPIs, error)
}

// Queries is every operation available both on the repository and inside a
// transaction scope.
type Queries interface {
	StatementRepository
	TransactionRepository
	CounterpartyRepository
	EventRepository
	AccountRepository
	DashboardRepository
}

// Repository is the injected persistence handle.
type Repository interface {
	Queries

	// WithTx runs fn inside one atomic transaction. The transaction commits
	// when fn returns nil and rolls back otherwise. fn must only use q.
	WithTx(ctx context.Context, fn func(q Queries) error) error

	Close() error
}
