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

const counterpartyColumns = `c.id, c.user_id, c.canonical_name, c.tx_count, c.total_debit_minor, c.total_credit_minor,
	c.first_seen, c.last_seen, c.created_at, c.updated_at`

func scanCounterparty(s scanner) (*domain.Counterparty, error) {
	var (
		cp                  domain.Counterparty
		firstSeen, lastSeen sql.NullString
		created, updated    string
	)
	if err := s.Scan(&cp.ID, &cp.UserID, &cp.CanonicalName, &cp.TxCount, &cp.TotalDebitMinor, &cp.TotalCreditMinor,
		&firstSeen, &lastSeen, &created, &updated); err != nil {
		return nil, err
	}
	cp.FirstSeen = datePtr(firstSeen)
	cp.LastSeen = datePtr(lastSeen)
	cp.CreatedAt = parseTime(created)
	cp.UpdatedAt = parseTime(updated)
	return &cp, nil
}

func (q *queries) findCounterparty(ctx context.Context, op, query string, args ...any) (*domain.Counterparty, error) {
	cp, err := scanCounterparty(q.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return cp, nil
}

func (q *queries) FindCounterpartyByAlias(ctx context.Context, userID, alias string) (*domain.Counterparty, error) {
	return q.findCounterparty(ctx, "FindCounterpartyByAlias", `SELECT `+counterpartyColumns+`
		FROM counterparty_aliases a
		JOIN counterparties c ON c.id = a.counterparty_id
		WHERE c.user_id = ? AND a.alias = ?
		ORDER BY a.created_at, c.id
		LIMIT 1`, userID, alias)
}

// FindCounterpartyByName matches canonical_name without regard to case.
func (q *queries) FindCounterpartyByName(ctx context.Context, userID, canonicalName string) (*domain.Counterparty, error) {
	return q.findCounterparty(ctx, "FindCounterpartyByName", `SELECT `+counterpartyColumns+`
		FROM counterparties c
		WHERE c.user_id = ? AND c.canonical_name = ?
		LIMIT 1`, userID, canonicalName)
}

func (q *queries) InsertCounterparty(ctx context.Context, cp *domain.Counterparty) error {
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	now := q.now()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	_, err := q.db.ExecContext(ctx, `INSERT INTO counterparties
		(id, user_id, canonical_name, tx_count, total_debit_minor, total_credit_minor, first_seen, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, 0, NULL, NULL, ?, ?)`,
		cp.ID, cp.UserID, cp.CanonicalName, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("InsertCounterparty: %w", err)
	}
	cp.TxCount, cp.TotalDebitMinor, cp.TotalCreditMinor = 0, 0, 0
	cp.FirstSeen, cp.LastSeen = nil, nil
	return nil
}

func (q *queries) GetCounterparty(ctx context.Context, userID, counterpartyID string) (*domain.Counterparty, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+counterpartyColumns+` FROM counterparties c WHERE c.id = ? AND c.user_id = ?`,
		counterpartyID, userID)
	cp, err := scanCounterparty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetCounterparty: %s: %w", counterpartyID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetCounterparty: %w", err)
	}
	return cp, nil
}

func (q *queries) EnsureAlias(ctx context.Context, a domain.CounterpartyAlias) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO counterparty_aliases (counterparty_id, alias, alias_type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (counterparty_id, alias) DO NOTHING`,
		a.CounterpartyID, a.Alias, string(a.AliasType), formatTime(q.now()))
	if err != nil {
		return fmt.Errorf("EnsureAlias: %w", err)
	}
	return nil
}

// DetachAlias removes alias from every counterparty of userID except keepID.
func (q *queries) DetachAlias(ctx context.Context, userID, alias, keepID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM counterparty_aliases
		WHERE alias = ? AND counterparty_id <> ?
		  AND counterparty_id IN (SELECT id FROM counterparties WHERE user_id = ?)`,
		alias, keepID, userID)
	if err != nil {
		return fmt.Errorf("DetachAlias: %w", err)
	}
	return nil
}

func (q *queries) ListAliases(ctx context.Context, counterpartyID string) ([]domain.CounterpartyAlias, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT counterparty_id, alias, alias_type, created_at
		FROM counterparty_aliases WHERE counterparty_id = ? ORDER BY created_at, alias`, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("ListAliases: %w", err)
	}
	defer rows.Close()

	var out []domain.CounterpartyAlias
	for rows.Next() {
		var (
			a                    domain.CounterpartyAlias
			aliasType, createdAt string
		)
		if err := rows.Scan(&a.CounterpartyID, &a.Alias, &aliasType, &createdAt); err != nil {
			return nil, fmt.Errorf("ListAliases: scanning: %w", err)
		}
		a.AliasType = domain.AliasType(aliasType)
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecomputeAggregates overwrites the counterparty's aggregates with a fresh
// aggregation over its transactions. It never increments.
func (q *queries) RecomputeAggregates(ctx context.Context, counterpartyID string) error {
	var (
		count               int
		debit, credit       int64
		firstSeen, lastSeen sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(debit_minor), 0), COALESCE(SUM(credit_minor), 0),
		MIN(txn_date), MAX(txn_date)
		FROM transactions WHERE counterparty_id = ?`, counterpartyID).
		Scan(&count, &debit, &credit, &firstSeen, &lastSeen)
	if err != nil {
		return fmt.Errorf("RecomputeAggregates: aggregating: %w", err)
	}

	res, err := q.db.ExecContext(ctx, `UPDATE counterparties
		SET tx_count = ?, total_debit_minor = ?, total_credit_minor = ?, first_seen = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`,
		count, debit, credit, firstSeen, lastSeen, formatTime(q.now()), counterpartyID)
	if err != nil {
		return fmt.Errorf("RecomputeAggregates: updating: %w", err)
	}
	return requireRow(res, "RecomputeAggregates", counterpartyID)
}

func (q *queries) ListCounterparties(ctx context.Context, userID string, limit int) ([]*domain.Counterparty, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, `SELECT `+counterpartyColumns+` FROM counterparties c
		WHERE c.user_id = ?
		ORDER BY c.tx_count DESC, c.canonical_name
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListCounterparties: %w", err)
	}
	defer rows.Close()

	var out []*domain.Counterparty
	for rows.Next() {
		cp, err := scanCounterparty(rows)
		if err != nil {
			return nil, fmt.Errorf("ListCounterparties: scanning: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (q *queries) InsertHistory(ctx context.Context, h domain.CounterpartyHistory) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO counterparty_history
		(transaction_id, old_counterparty_id, new_counterparty_id, changed_by, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.TransactionID, nullString(h.OldCounterpartyID), h.NewCounterpartyID, h.ChangedBy, h.Reason, formatTime(q.now()))
	if err != nil {
		return fmt.Errorf("InsertHistory: %w", err)
	}
	return nil
}
