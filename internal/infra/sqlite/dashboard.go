package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-ledger/internal/domain"
)

// DashboardKPIs gathers the overview figures with one query per figure.
// Run it inside WithTx for a consistent snapshot.
func (q *queries) DashboardKPIs(ctx context.Context, userID string, top int) (*domain.DashboardKPIs, error) {
	k := &domain.DashboardKPIs{}

	var lastParsed sql.NullString
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(parsed_at) FROM statements WHERE user_id = ?`, userID).
		Scan(&k.StatementCount, &lastParsed)
	if err != nil {
		return nil, fmt.Errorf("DashboardKPIs: statements: %w", err)
	}
	k.LastParsedAt = timePtr(lastParsed)

	err = q.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(debit_minor), 0), COALESCE(SUM(credit_minor), 0)
		FROM transactions WHERE user_id = ?`, userID).
		Scan(&k.TransactionCount, &k.TotalDebitMinor, &k.TotalCreditMinor)
	if err != nil {
		return nil, fmt.Errorf("DashboardKPIs: transactions: %w", err)
	}

	err = q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM counterparties WHERE user_id = ?`, userID).
		Scan(&k.CounterpartyCount)
	if err != nil {
		return nil, fmt.Errorf("DashboardKPIs: counterparties: %w", err)
	}

	var balance int64
	err = q.db.QueryRowContext(ctx, `SELECT balance_minor FROM transactions WHERE user_id = ?
		ORDER BY txn_date DESC, rowid DESC LIMIT 1`, userID).Scan(&balance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("DashboardKPIs: latest balance: %w", err)
	default:
		k.LatestBalanceMinor = &balance
	}

	cps, err := q.ListCounterparties(ctx, userID, top)
	if err != nil {
		return nil, fmt.Errorf("DashboardKPIs: %w", err)
	}
	k.TopCounterparties = make([]domain.Counterparty, 0, len(cps))
	for _, cp := range cps {
		k.TopCounterparties = append(k.TopCounterparties, *cp)
	}
	return k, nil
}
