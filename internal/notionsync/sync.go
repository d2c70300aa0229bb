// Package notionsync mirrors a user's counterparties into a Notion database.
package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-ledger/internal/logger"
	"github.com/jomei/notionapi"
)

// pageSize is the Notion maximum for database queries.
const pageSize = 100

// SyncReport counts what one sync did or, in a dry run, would do.
type SyncReport struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// SyncCounterparties makes the database hold one page per counterparty of
// userID. Existing pages are matched by their Counterparty ID property and
// updated in place; pages for unknown or missing ids are archived. A failure
// on one page is logged and counted and the rest still sync.
func SyncCounterparties(ctx context.Context, src CounterpartySource, client NotionService, databaseID, userID string, dryRun bool) (*SyncReport, error) {
	log := logger.FromContext(ctx).With().
		Str("user_id", userID).
		Str("database_id", databaseID).
		Bool("dry_run", dryRun).
		Logger()

	cps, err := src.ListCounterparties(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("SyncCounterparties: listing counterparties: %w", err)
	}
	wanted := make(map[string]bool, len(cps))
	for _, cp := range cps {
		wanted[cp.ID] = true
	}

	pages, err := queryAllPages(ctx, client, databaseID)
	if err != nil {
		return nil, fmt.Errorf("SyncCounterparties: %w", err)
	}
	log.Info().Int("counterparties", len(cps)).Int("pages", len(pages)).Msg("Starting counterparty sync to Notion")

	report := &SyncReport{}
	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		id := counterpartyIDOf(page)
		if id != "" && wanted[id] && existing[id] == "" {
			existing[id] = string(page.ID)
			continue
		}
		if dryRun {
			report.Archived++
			continue
		}
		if err := client.ArchivePage(ctx, string(page.ID)); err != nil {
			report.Failed++
			log.Warn().Err(err).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			continue
		}
		report.Archived++
	}

	for _, cp := range cps {
		pageID, found := existing[cp.ID]
		if dryRun {
			if found {
				report.Updated++
			} else {
				report.Created++
			}
			continue
		}

		aliases, err := src.ListAliases(ctx, cp.ID)
		if err != nil {
			return report, fmt.Errorf("SyncCounterparties: %w", err)
		}
		props := CounterpartyToNotionProperties(cp, aliases)

		if found {
			if _, err := client.UpdatePage(ctx, pageID, props); err != nil {
				report.Failed++
				log.Warn().Err(err).Str("counterparty_id", cp.ID).Str("page_id", pageID).Msg("Failed to update Notion page")
				continue
			}
			report.Updated++
			continue
		}

		page, err := client.CreatePage(ctx, databaseID, props)
		if err != nil {
			report.Failed++
			log.Warn().Err(err).Str("counterparty_id", cp.ID).Msg("Failed to create Notion page")
			continue
		}
		log.Debug().Str("counterparty_id", cp.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		report.Created++
	}

	log.Info().
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("archived", report.Archived).
		Int("failed", report.Failed).
		Msg("Counterparty sync completed")
	return report, nil
}

// queryAllPages follows the database cursor to the end.
func queryAllPages(ctx context.Context, client NotionService, databaseID string) ([]notionapi.Page, error) {
	var (
		all    []notionapi.Page
		cursor notionapi.Cursor
	)
	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: pageSize}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := client.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}
