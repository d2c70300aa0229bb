package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dvloznov/statement-ledger/internal/artifacts"
	"github.com/dvloznov/statement-ledger/internal/checksum"
	"github.com/dvloznov/statement-ledger/internal/csvimport"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/grouping"
	"github.com/dvloznov/statement-ledger/internal/logger"
	"github.com/dvloznov/statement-ledger/internal/parser"
	"github.com/dvloznov/statement-ledger/internal/store"
	"github.com/dvloznov/statement-ledger/internal/textextract"
)

// PipelineStep represents a single step in the parse pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RC        domain.RequestContext
	Statement *domain.Statement

	Artifact textextract.Artifact
	Mode     string
	Raw      []domain.RawTransaction
	Skipped  []parser.LineNote
	Warnings []parser.LineNote

	TxCount  int
	Grouping *grouping.Report
	Exported int
}

// Step 1: LoadArtifactStep reads the uploaded bytes back from storage.
type LoadArtifactStep struct {
	Artifacts artifacts.Store
}

func (s *LoadArtifactStep) Execute(ctx context.Context, state *PipelineState) error {
	data, err := s.Artifacts.Get(ctx, state.Statement.StorageRef)
	if err != nil {
		return fmt.Errorf("LoadArtifactStep: %w", err)
	}
	state.Artifact = textextract.Artifact{
		Filename: state.Statement.Filename,
		MimeType: state.Statement.MimeType,
		Data:     data,
	}
	return nil
}

// Step 2: ExtractRowsStep turns the artifact into raw transaction tuples,
// through the tabular importer or through text extraction and the line
// extractor. It fails with textextract.ErrUnavailable when no text exists.
type ExtractRowsStep struct {
	Text      textextract.Provider
	Extractor *parser.Extractor
	Importer  *csvimport.Importer
}

func (s *ExtractRowsStep) Execute(ctx context.Context, state *PipelineState) error {
	a := state.Artifact
	switch tabularKind(a.Filename, a.MimeType) {
	case ModeCSV:
		res, err := s.Importer.ImportCSV(bytes.NewReader(a.Data))
		if err != nil {
			return fmt.Errorf("ExtractRowsStep: %w", err)
		}
		state.Mode, state.Raw, state.Skipped, state.Warnings = ModeCSV, res.Transactions, res.Skipped, res.Warnings
		return nil
	case ModeXLSX:
		res, err := s.Importer.ImportXLSX(bytes.NewReader(a.Data))
		if err != nil {
			return fmt.Errorf("ExtractRowsStep: %w", err)
		}
		state.Mode, state.Raw, state.Skipped, state.Warnings = ModeXLSX, res.Transactions, res.Skipped, res.Warnings
		return nil
	}

	text, err := s.Text.Extract(ctx, a)
	if err != nil {
		return fmt.Errorf("ExtractRowsStep: %w", err)
	}
	res := s.Extractor.Extract(text)
	state.Mode, state.Raw, state.Skipped, state.Warnings = res.Mode, res.Transactions, res.Skipped, res.Warnings
	return nil
}

// Step 3: PersistStep writes every row and marks the statement parsed in one
// store transaction. Rows already stored for the user (same checksum) are
// kept as they are.
type PersistStep struct {
	Repo store.Repository
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	st := state.Statement
	err := s.Repo.WithTx(ctx, func(q store.Queries) error {
		for i := range state.Raw {
			rec := newRecord(st, &state.Raw[i])
			if err := q.UpsertTransaction(ctx, rec); err != nil {
				return err
			}
		}
		n, err := q.RefreshTxCount(ctx, st.ID)
		if err != nil {
			return err
		}
		state.TxCount = n
		return q.MarkParsed(ctx, st.ID, n)
	})
	if err != nil {
		return fmt.Errorf("PersistStep: %w", err)
	}
	return nil
}

// Step 4: GroupStep clusters the user's unassigned rows. A grouping failure
// is logged and the parse still succeeds.
type GroupStep struct {
	Grouper Grouper
}

func (s *GroupStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Grouper == nil {
		return nil
	}
	report, err := s.Grouper.Run(ctx, state.RC)
	if err != nil {
		log := logger.ForStatement(logger.FromContext(ctx), state.RC.UserID, state.Statement.ID)
		log.Warn().Err(err).Msg("Grouping after parse failed")
		return nil
	}
	state.Grouping = report
	return nil
}

// Step 5: ExportStep mirrors the statement to the analytics warehouse when
// one is configured. Export failures are logged only.
type ExportStep struct {
	Repo     store.Repository
	Exporter Exporter
}

func (s *ExportStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Exporter == nil {
		return nil
	}
	log := logger.ForStatement(logger.FromContext(ctx), state.RC.UserID, state.Statement.ID)

	n, err := s.export(ctx, state)
	if err != nil {
		log.Warn().Err(err).Msg("Analytics export failed")
		return nil
	}
	state.Exported = n
	return nil
}

func (s *ExportStep) export(ctx context.Context, state *PipelineState) (int, error) {
	st, err := s.Repo.GetStatement(ctx, state.RC.UserID, state.Statement.ID)
	if err != nil {
		return 0, err
	}
	txs, err := s.Repo.ListStatementTransactions(ctx, state.RC.UserID, st.ID)
	if err != nil {
		return 0, err
	}
	ids, err := s.Repo.StatementCounterpartyIDs(ctx, st.ID)
	if err != nil {
		return 0, err
	}
	cps := make([]*domain.Counterparty, 0, len(ids))
	for _, id := range ids {
		cp, err := s.Repo.GetCounterparty(ctx, state.RC.UserID, id)
		if err != nil {
			return 0, err
		}
		cps = append(cps, cp)
	}
	return s.Exporter.ExportStatement(ctx, st, txs, cps)
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

func newRecord(st *domain.Statement, raw *domain.RawTransaction) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		StatementID:  st.ID,
		UserID:       st.UserID,
		AccountID:    st.AccountID,
		Date:         raw.Date,
		ValueDate:    raw.ValueDate,
		Narration:    raw.Narration,
		RawLine:      raw.RawLine,
		Reference:    raw.Reference,
		Type:         raw.Type,
		AmountMinor:  raw.AmountMinor,
		DebitMinor:   raw.DebitMinor,
		CreditMinor:  raw.CreditMinor,
		BalanceMinor: raw.BalanceMinor,
		Checksum: checksum.Row(domain.Deref(st.AccountID), raw.Date, raw.AmountMinor,
			domain.Deref(raw.Reference), raw.Narration),
	}
}

// tabularKind returns ModeCSV or ModeXLSX for spreadsheet artifacts and ""
// for everything else.
func tabularKind(filename, mimeType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ModeCSV
	case ".xlsx":
		return ModeXLSX
	}
	switch mimeType {
	case "text/csv":
		return ModeCSV
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ModeXLSX
	}
	return ""
}
