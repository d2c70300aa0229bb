// Package bigquery exports parsed statements and counterparty snapshots to
// BigQuery for analytics. The SQLite store stays the system of record.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/logger"
	"google.golang.org/api/iterator"
)

const (
	transactionsTable   = "transactions"
	counterpartiesTable = "counterparties"
)

// warehouse is the BigQuery surface the exporter needs.
type warehouse interface {
	existingChecksums(ctx context.Context, userID string, checksums []string) (map[string]bool, error)
	insert(ctx context.Context, table string, rows any) error
	deleteStatement(ctx context.Context, userID, statementID string) error
}

// Exporter appends exported rows, skipping transactions whose checksum is
// already in the warehouse for that user.
type Exporter struct {
	wh  warehouse
	now func() time.Time
	bq  *bigquery.Client
}

// NewExporter creates a BigQuery client for project and writes into dataset.
func NewExporter(ctx context.Context, project, dataset string) (*Exporter, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: creating client: %w", err)
	}
	return &Exporter{
		wh:  &bqWarehouse{client: client, project: project, dataset: dataset},
		now: time.Now,
		bq:  client,
	}, nil
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.bq != nil {
		return e.bq.Close()
	}
	return nil
}

// ExportStatement appends the statement's new transactions and a snapshot of
// the given counterparties. It returns how many transaction rows were sent.
func (e *Exporter) ExportStatement(ctx context.Context, st *domain.Statement, txs []*domain.TransactionRecord, cps []*domain.Counterparty) (int, error) {
	log := logger.ForStatement(logger.FromContext(ctx), st.UserID, st.ID)
	now := e.now()

	checksums := make([]string, 0, len(txs))
	for _, tx := range txs {
		checksums = append(checksums, tx.Checksum)
	}
	seen, err := e.wh.existingChecksums(ctx, st.UserID, checksums)
	if err != nil {
		return 0, fmt.Errorf("ExportStatement: %w", err)
	}

	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		if seen[tx.Checksum] {
			continue
		}
		rows = append(rows, NewTransactionRow(tx, now))
	}
	if len(rows) > 0 {
		if err := e.wh.insert(ctx, transactionsTable, rows); err != nil {
			return 0, fmt.Errorf("ExportStatement: transactions: %w", err)
		}
	}

	if len(cps) > 0 {
		snap := make([]*CounterpartyRow, 0, len(cps))
		for _, cp := range cps {
			snap = append(snap, NewCounterpartyRow(cp, now))
		}
		if err := e.wh.insert(ctx, counterpartiesTable, snap); err != nil {
			return 0, fmt.Errorf("ExportStatement: counterparties: %w", err)
		}
	}

	log.Info().
		Int("exported", len(rows)).
		Int("skipped", len(txs)-len(rows)).
		Int("counterparties", len(cps)).
		Msg("Exported statement to BigQuery")
	return len(rows), nil
}

// DeleteStatement removes a statement's exported transactions.
func (e *Exporter) DeleteStatement(ctx context.Context, userID, statementID string) error {
	if err := e.wh.deleteStatement(ctx, userID, statementID); err != nil {
		return fmt.Errorf("DeleteStatement: %w", err)
	}
	return nil
}

// EnsureTables creates the dataset and tables when missing, with schemas
// inferred from the row types.
func (e *Exporter) EnsureTables(ctx context.Context) error {
	wh, ok := e.wh.(*bqWarehouse)
	if !ok {
		return nil
	}
	ds := wh.client.DatasetInProject(wh.project, wh.dataset)
	if _, err := ds.Metadata(ctx); err != nil {
		if err := ds.Create(ctx, &bigquery.DatasetMetadata{}); err != nil {
			return fmt.Errorf("EnsureTables: creating dataset %s: %w", wh.dataset, err)
		}
	}

	for table, row := range map[string]any{
		transactionsTable:   TransactionRow{},
		counterpartiesTable: CounterpartyRow{},
	} {
		schema, err := bigquery.InferSchema(row)
		if err != nil {
			return fmt.Errorf("EnsureTables: inferring %s schema: %w", table, err)
		}
		t := ds.Table(table)
		if _, err := t.Metadata(ctx); err == nil {
			continue
		}
		if err := t.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
			return fmt.Errorf("EnsureTables: creating %s: %w", table, err)
		}
	}
	return nil
}

type bqWarehouse struct {
	client  *bigquery.Client
	project string
	dataset string
}

func (w *bqWarehouse) table(name string) string {
	return "`" + w.project + "." + w.dataset + "." + name + "`"
}

func (w *bqWarehouse) existingChecksums(ctx context.Context, userID string, checksums []string) (map[string]bool, error) {
	seen := make(map[string]bool)
	if len(checksums) == 0 {
		return seen, nil
	}

	q := w.client.Query(`
		SELECT DISTINCT checksum
		FROM ` + w.table(transactionsTable) + `
		WHERE user_id = @user_id
		  AND checksum IN UNNEST(@checksums)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "checksums", Value: checksums},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("existingChecksums: query read: %w", err)
	}
	for {
		var row struct {
			Checksum string `bigquery:"checksum"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("existingChecksums: iter next: %w", err)
		}
		seen[row.Checksum] = true
	}
	return seen, nil
}

func (w *bqWarehouse) insert(ctx context.Context, table string, rows any) error {
	inserter := w.client.DatasetInProject(w.project, w.dataset).Table(table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (w *bqWarehouse) deleteStatement(ctx context.Context, userID, statementID string) error {
	q := w.client.Query(`
		DELETE FROM ` + w.table(transactionsTable) + `
		WHERE user_id = @user_id AND statement_id = @statement_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "statement_id", Value: statementID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("deleteStatement: run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("deleteStatement: wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("deleteStatement: job completed with error: %w", err)
	}
	return nil
}
