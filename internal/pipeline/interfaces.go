package pipeline

import (
	"context"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/grouping"
)

// Grouper clusters a user's unassigned transactions after a parse.
type Grouper interface {
	Run(ctx context.Context, rc domain.RequestContext) (*grouping.Report, error)
}

// Exporter mirrors parsed statements into an analytics warehouse.
// Export failures never fail a parse.
type Exporter interface {
	ExportStatement(ctx context.Context, st *domain.Statement, txs []*domain.TransactionRecord, cps []*domain.Counterparty) (int, error)
	DeleteStatement(ctx context.Context, userID, statementID string) error
}
