package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dvloznov/statement-ledger/internal/domain"
)

func (q *queries) InsertParseLog(ctx context.Context, l *domain.ParseLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = q.now()
	}
	res, err := q.db.ExecContext(ctx, `INSERT INTO parse_logs (statement_id, user_id, level, message, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(l.StatementID), l.UserID, l.Level, l.Message, nullString(domain.StringPtr(l.Meta)), formatTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("InsertParseLog: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		l.ID = id
	}
	return nil
}

func (q *queries) ListParseLogs(ctx context.Context, statementID string, limit int) ([]*domain.ParseLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, `SELECT id, statement_id, user_id, level, message, meta, created_at
		FROM parse_logs WHERE statement_id = ?
		ORDER BY id DESC
		LIMIT ?`, statementID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListParseLogs: %w", err)
	}
	defer rows.Close()

	var out []*domain.ParseLog
	for rows.Next() {
		var (
			l          domain.ParseLog
			stID, meta sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&l.ID, &stID, &l.UserID, &l.Level, &l.Message, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("ListParseLogs: scanning: %w", err)
		}
		l.StatementID = stringPtr(stID)
		l.Meta = meta.String
		l.CreatedAt = parseTime(createdAt)
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (q *queries) InsertAudit(ctx context.Context, e *domain.AuditEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = q.now()
	}
	res, err := q.db.ExecContext(ctx, `INSERT INTO audit_logs (user_id, action, entity_type, entity_id, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Action, e.EntityType, e.EntityID, nullString(domain.StringPtr(e.Meta)), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("InsertAudit: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}
