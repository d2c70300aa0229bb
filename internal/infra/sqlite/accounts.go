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

const accountColumns = `id, user_id, bank_name, account_number_masked, ifsc, branch, currency, created_at`

func scanAccount(s scanner) (*domain.Account, error) {
	var (
		a                    domain.Account
		masked, ifsc, branch sql.NullString
		createdAt            string
	)
	if err := s.Scan(&a.ID, &a.UserID, &a.BankName, &masked, &ifsc, &branch, &a.Currency, &createdAt); err != nil {
		return nil, err
	}
	a.AccountNumberMasked = stringPtr(masked)
	a.IFSC = stringPtr(ifsc)
	a.Branch = stringPtr(branch)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (q *queries) InsertAccount(ctx context.Context, a *domain.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Currency == "" {
		a.Currency = "INR"
	}
	a.CreatedAt = q.now()

	_, err := q.db.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.BankName, nullString(a.AccountNumberMasked), nullString(a.IFSC), nullString(a.Branch),
		a.Currency, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("InsertAccount: %w", err)
	}
	return nil
}

func (q *queries) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: scanning: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *queries) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	a, err := scanAccount(q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ? AND user_id = ?`,
		accountID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetAccount: %s: %w", accountID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return a, nil
}
