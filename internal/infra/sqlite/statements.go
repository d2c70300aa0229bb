package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/store"
)

const statementColumns = `id, user_id, account_id, filename, storage_ref, mime_type, size, content_sha256,
	parse_status, parsed_at, tx_count, error_message, created_at, updated_at`

func scanStatement(s scanner) (*domain.Statement, error) {
	var (
		st                   domain.Statement
		accountID, errMsg    sql.NullString
		parsedAt             sql.NullString
		status               string
		createdAt, updatedAt string
	)
	if err := s.Scan(&st.ID, &st.UserID, &accountID, &st.Filename, &st.StorageRef, &st.MimeType, &st.Size,
		&st.ContentSHA256, &status, &parsedAt, &st.TxCount, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	st.AccountID = stringPtr(accountID)
	st.ErrorMessage = stringPtr(errMsg)
	st.ParsedAt = timePtr(parsedAt)
	st.ParseStatus = domain.ParseStatus(status)
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

// InsertStatement stores st. CreatedAt/UpdatedAt are filled in when zero.
func (q *queries) InsertStatement(ctx context.Context, st *domain.Statement) error {
	now := q.now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	if st.ParseStatus == "" {
		st.ParseStatus = domain.ParseStatusUploaded
	}

	_, err := q.db.ExecContext(ctx, `INSERT INTO statements (`+statementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.UserID, nullString(st.AccountID), st.Filename, st.StorageRef, st.MimeType, st.Size,
		st.ContentSHA256, string(st.ParseStatus), nil, st.TxCount, nullString(st.ErrorMessage),
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("InsertStatement: %w", err)
	}
	return nil
}

func (q *queries) GetStatement(ctx context.Context, userID, statementID string) (*domain.Statement, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+statementColumns+` FROM statements WHERE id = ? AND user_id = ?`,
		statementID, userID)
	st, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetStatement: %s: %w", statementID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetStatement: %w", err)
	}
	return st, nil
}

func (q *queries) FindStatementByChecksum(ctx context.Context, userID, contentSHA256 string) (*domain.Statement, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+statementColumns+` FROM statements WHERE user_id = ? AND content_sha256 = ?`,
		userID, contentSHA256)
	st, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindStatementByChecksum: %w", err)
	}
	return st, nil
}

func (q *queries) ListStatements(ctx context.Context, userID string, filter store.StatementFilter) ([]*domain.Statement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, `SELECT `+statementColumns+` FROM statements
		WHERE user_id = ? AND (? = '' OR instr(lower(filename), lower(?)) > 0)
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`,
		userID, filter.Query, filter.Query, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("ListStatements: querying: %w", err)
	}
	defer rows.Close()

	var out []*domain.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("ListStatements: scanning: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// MarkParsing performs the conditional uploaded|parsed|error|needs_text ->
// parsing transition.
func (q *queries) MarkParsing(ctx context.Context, userID, statementID string, force bool) error {
	res, err := q.db.ExecContext(ctx, `UPDATE statements
		SET parse_status = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND user_id = ? AND (parse_status <> ? OR ?)`,
		string(domain.ParseStatusParsing), formatTime(q.now()), statementID, userID,
		string(domain.ParseStatusParsing), boolInt(force))
	if err != nil {
		return fmt.Errorf("MarkParsing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkParsing: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := q.GetStatement(ctx, userID, statementID); err != nil {
		return fmt.Errorf("MarkParsing: %w", err)
	}
	return fmt.Errorf("MarkParsing: %s: %w", statementID, store.ErrParseInProgress)
}

func (q *queries) MarkParsed(ctx context.Context, statementID string, txCount int) error {
	now := formatTime(q.now())
	_, err := q.db.ExecContext(ctx, `UPDATE statements
		SET parse_status = ?, parsed_at = ?, tx_count = ?, error_message = NULL, updated_at = ?
		WHERE id = ?`,
		string(domain.ParseStatusParsed), now, txCount, now, statementID)
	if err != nil {
		return fmt.Errorf("MarkParsed: %w", err)
	}
	return nil
}

func (q *queries) MarkUnparsed(ctx context.Context, statementID string, status domain.ParseStatus, message string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE statements
		SET parse_status = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		string(status), nullString(domain.StringPtr(message)), formatTime(q.now()), statementID)
	if err != nil {
		return fmt.Errorf("MarkUnparsed: %w", err)
	}
	return nil
}

func (q *queries) RenameStatement(ctx context.Context, userID, statementID, filename string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE statements SET filename = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		filename, formatTime(q.now()), statementID, userID)
	if err != nil {
		return fmt.Errorf("RenameStatement: %w", err)
	}
	return requireRow(res, "RenameStatement", statementID)
}

func (q *queries) DeleteStatement(ctx context.Context, userID, statementID string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM statements WHERE id = ? AND user_id = ?`, statementID, userID)
	if err != nil {
		return fmt.Errorf("DeleteStatement: %w", err)
	}
	return requireRow(res, "DeleteStatement", statementID)
}

func (q *queries) RefreshTxCount(ctx context.Context, statementID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `UPDATE statements
		SET tx_count = (SELECT COUNT(*) FROM transactions WHERE statement_id = ?), updated_at = ?
		WHERE id = ?
		RETURNING tx_count`,
		statementID, formatTime(q.now()), statementID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("RefreshTxCount: %s: %w", statementID, store.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("RefreshTxCount: %w", err)
	}
	return n, nil
}

func (q *queries) GetStatementMetrics(ctx context.Context, userID, statementID string) (*domain.StatementMetrics, error) {
	st, err := q.GetStatement(ctx, userID, statementID)
	if err != nil {
		return nil, fmt.Errorf("GetStatementMetrics: %w", err)
	}

	m := &domain.StatementMetrics{StatementID: st.ID, ParsedAt: st.ParsedAt}
	err = q.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT counterparty_id)
		FROM transactions WHERE statement_id = ?`, statementID).Scan(&m.TxCount, &m.CounterpartyCount)
	if err != nil {
		return nil, fmt.Errorf("GetStatementMetrics: aggregating: %w", err)
	}
	return m, nil
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %s: %w", op, id, store.ErrNotFound)
	}
	return nil
}
