package notionsync

import (
	"context"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/jomei/notionapi"
)

// NotionService is the part of the Notion API the sync uses.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	ArchivePage(ctx context.Context, pageID string) error
}

// CounterpartySource supplies the counterparties to mirror.
type CounterpartySource interface {
	ListCounterparties(ctx context.Context, userID string, limit int) ([]*domain.Counterparty, error)
	ListAliases(ctx context.Context, counterpartyID string) ([]domain.CounterpartyAlias, error)
}
