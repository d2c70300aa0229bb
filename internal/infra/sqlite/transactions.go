package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/store"
	"github.com/google/uuid"
)

const transactionColumns = `id, statement_id, user_id, account_id, txn_date, value_date, narration, raw_line,
	reference, txn_type, amount_minor, debit_minor, credit_minor, balance_minor, checksum,
	counterparty_id, manual_flag, created_at, updated_at`

func scanTransaction(s scanner) (*domain.TransactionRecord, error) {
	var (
		tx                                 domain.TransactionRecord
		accountID, reference, cpID         sql.NullString
		valueDate                          sql.NullString
		debit, credit                      sql.NullInt64
		txnDate, txnType, created, updated string
		manual                             int
	)
	if err := s.Scan(&tx.ID, &tx.StatementID, &tx.UserID, &accountID, &txnDate, &valueDate, &tx.Narration,
		&tx.RawLine, &reference, &txnType, &tx.AmountMinor, &debit, &credit, &tx.BalanceMinor, &tx.Checksum,
		&cpID, &manual, &created, &updated); err != nil {
		return nil, err
	}
	tx.AccountID = stringPtr(accountID)
	tx.Date = parseDate(txnDate)
	tx.ValueDate = datePtr(valueDate)
	tx.Reference = stringPtr(reference)
	tx.Type = domain.TxnType(txnType)
	tx.DebitMinor = intPtr(debit)
	tx.CreditMinor = intPtr(credit)
	tx.CounterpartyID = stringPtr(cpID)
	tx.ManualFlag = manual != 0
	tx.CreatedAt = parseTime(created)
	tx.UpdatedAt = parseTime(updated)
	return &tx, nil
}

func (q *queries) listTransactions(ctx context.Context, op, where string, args ...any) ([]*domain.TransactionRecord, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE `+where+
		` ORDER BY txn_date, rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: querying: %w", op, err)
	}
	defer rows.Close()

	var out []*domain.TransactionRecord
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scanning: %w", op, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterating: %w", op, err)
	}
	return out, nil
}

// UpsertTransaction inserts tx keyed on (user_id, checksum). On conflict only
// updated_at changes, and tx.ID is replaced with the existing row's id.
func (q *queries) UpsertTransaction(ctx context.Context, tx *domain.TransactionRecord) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	now := q.now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	var id string
	err := q.db.QueryRowContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, checksum) DO UPDATE SET updated_at = excluded.updated_at
		RETURNING id`,
		tx.ID, tx.StatementID, tx.UserID, nullString(tx.AccountID), tx.Date.String(), nullDate(tx.ValueDate),
		tx.Narration, tx.RawLine, nullString(tx.Reference), string(tx.Type), tx.AmountMinor,
		nullInt(tx.DebitMinor), nullInt(tx.CreditMinor), tx.BalanceMinor, tx.Checksum,
		nullString(tx.CounterpartyID), boolInt(tx.ManualFlag), formatTime(tx.CreatedAt), formatTime(tx.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("UpsertTransaction: %w", err)
	}
	tx.ID = id
	return nil
}

func (q *queries) ListStatementTransactions(ctx context.Context, userID, statementID string) ([]*domain.TransactionRecord, error) {
	return q.listTransactions(ctx, "ListStatementTransactions", `statement_id = ? AND user_id = ?`, statementID, userID)
}

func (q *queries) ListUnclustered(ctx context.Context, userID string) ([]*domain.TransactionRecord, error) {
	return q.listTransactions(ctx, "ListUnclustered", `user_id = ? AND counterparty_id IS NULL`, userID)
}

func (q *queries) ListTransactionsByNarration(ctx context.Context, userID, fragment string) ([]*domain.TransactionRecord, error) {
	return q.listTransactions(ctx, "ListTransactionsByNarration",
		`user_id = ? AND instr(lower(narration), lower(?)) > 0`, userID, fragment)
}

func (q *queries) GetTransaction(ctx context.Context, userID, transactionID string) (*domain.TransactionRecord, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`,
		transactionID, userID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetTransaction: %s: %w", transactionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return tx, nil
}

func (q *queries) FindTransactionByChecksum(ctx context.Context, userID, checksum string) (*domain.TransactionRecord, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? AND checksum = ?`,
		userID, checksum)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindTransactionByChecksum: %w", err)
	}
	return tx, nil
}

func (q *queries) ApplyTransactionFix(ctx context.Context, transactionID string, fix store.TransactionFix) error {
	res, err := q.db.ExecContext(ctx, `UPDATE transactions
		SET amount_minor = ?, txn_type = ?, checksum = ?, updated_at = ?
		WHERE id = ?`,
		fix.AmountMinor, string(fix.Type), fix.Checksum, formatTime(q.now()), transactionID)
	if err != nil {
		return fmt.Errorf("ApplyTransactionFix: %w", err)
	}
	return requireRow(res, "ApplyTransactionFix", transactionID)
}

func (q *queries) AssignCounterparty(ctx context.Context, counterpartyID string, transactionIDs []string) error {
	if len(transactionIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(transactionIDs)+2)
	args = append(args, counterpartyID, formatTime(q.now()))
	for _, id := range transactionIDs {
		args = append(args, id)
	}
	_, err := q.db.ExecContext(ctx, `UPDATE transactions SET counterparty_id = ?, updated_at = ?
		WHERE id IN (`+placeholders(len(transactionIDs))+`)`, args...)
	if err != nil {
		return fmt.Errorf("AssignCounterparty: %w", err)
	}
	return nil
}

func (q *queries) SetManualCounterparty(ctx context.Context, transactionID, counterpartyID string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE transactions SET counterparty_id = ?, manual_flag = 1, updated_at = ?
		WHERE id = ?`, counterpartyID, formatTime(q.now()), transactionID)
	if err != nil {
		return fmt.Errorf("SetManualCounterparty: %w", err)
	}
	return requireRow(res, "SetManualCounterparty", transactionID)
}

func (q *queries) StatementCounterpartyIDs(ctx context.Context, statementID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT DISTINCT counterparty_id FROM transactions
		WHERE statement_id = ? AND counterparty_id IS NOT NULL`, statementID)
	if err != nil {
		return nil, fmt.Errorf("StatementCounterpartyIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("StatementCounterpartyIDs: scanning: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
