package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/statement-ledger/internal/consistency"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/logger"
	"github.com/dvloznov/statement-ledger/internal/store"
	"github.com/dvloznov/statement-ledger/internal/textextract"
)

// ListStatements returns the user's statements, newest first.
func (s *Service) ListStatements(ctx context.Context, rc domain.RequestContext, filter store.StatementFilter) ([]*domain.Statement, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("ListStatements: %w", err)
	}
	sts, err := s.repo.ListStatements(ctx, rc.UserID, filter)
	if err != nil {
		return nil, fmt.Errorf("ListStatements: %w", err)
	}
	if sts == nil {
		sts = []*domain.Statement{}
	}
	return sts, nil
}

// RenameStatement changes a statement's display filename.
func (s *Service) RenameStatement(ctx context.Context, rc domain.RequestContext, statementID, filename string) error {
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("RenameStatement: %w", err)
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return fmt.Errorf("RenameStatement: filename: %w", ErrInvalidInput)
	}
	if err := s.repo.RenameStatement(ctx, rc.UserID, statementID, filename); err != nil {
		return fmt.Errorf("RenameStatement: %w", err)
	}
	return nil
}

// DeleteStatement removes a statement with its transactions and parse logs
// and recomputes every counterparty that referenced those transactions.
func (s *Service) DeleteStatement(ctx context.Context, rc domain.RequestContext, statementID string) error {
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("DeleteStatement: %w", err)
	}
	log := logger.ForStatement(logger.FromContext(ctx), rc.UserID, statementID)

	if _, err := s.repo.GetStatement(ctx, rc.UserID, statementID); err != nil {
		return fmt.Errorf("DeleteStatement: %w", err)
	}

	var affected []string
	err := s.repo.WithTx(ctx, func(q store.Queries) error {
		ids, err := q.StatementCounterpartyIDs(ctx, statementID)
		if err != nil {
			return err
		}
		affected = ids
		if err := q.DeleteStatement(ctx, rc.UserID, statementID); err != nil {
			return err
		}
		for _, id := range ids {
			if err := q.RecomputeAggregates(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("DeleteStatement: %w", err)
	}

	if s.exporter != nil {
		if err := s.exporter.DeleteStatement(ctx, rc.UserID, statementID); err != nil {
			log.Warn().Err(err).Msg("Failed to delete exported rows")
		}
	}

	log.Info().Int("counterparties_recomputed", len(affected)).Msg("Statement deleted")
	return nil
}

// StatementMetrics summarises one statement.
func (s *Service) StatementMetrics(ctx context.Context, rc domain.RequestContext, statementID string) (*domain.StatementMetrics, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("StatementMetrics: %w", err)
	}
	m, err := s.repo.GetStatementMetrics(ctx, rc.UserID, statementID)
	if err != nil {
		return nil, fmt.Errorf("StatementMetrics: %w", err)
	}
	return m, nil
}

// StatementTransactions returns a statement's rows in date order.
func (s *Service) StatementTransactions(ctx context.Context, rc domain.RequestContext, statementID string) ([]*domain.TransactionRecord, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("StatementTransactions: %w", err)
	}
	if _, err := s.repo.GetStatement(ctx, rc.UserID, statementID); err != nil {
		return nil, fmt.Errorf("StatementTransactions: %w", err)
	}
	txs, err := s.repo.ListStatementTransactions(ctx, rc.UserID, statementID)
	if err != nil {
		return nil, fmt.Errorf("StatementTransactions: %w", err)
	}
	if txs == nil {
		txs = []*domain.TransactionRecord{}
	}
	return txs, nil
}

// StatementText returns the text the extractor sees for a statement. It
// fails with textextract.ErrUnavailable for artifacts without text.
func (s *Service) StatementText(ctx context.Context, rc domain.RequestContext, statementID string) (string, error) {
	if err := rc.Validate(); err != nil {
		return "", fmt.Errorf("StatementText: %w", err)
	}
	st, err := s.repo.GetStatement(ctx, rc.UserID, statementID)
	if err != nil {
		return "", fmt.Errorf("StatementText: %w", err)
	}
	data, err := s.artifacts.Get(ctx, st.StorageRef)
	if err != nil {
		return "", fmt.Errorf("StatementText: %w", err)
	}
	a := textextract.Artifact{Filename: st.Filename, MimeType: st.MimeType, Data: data}
	if tabularKind(st.Filename, st.MimeType) == ModeCSV {
		return string(data), nil
	}
	text, err := s.text.Extract(ctx, a)
	if err != nil {
		return "", fmt.Errorf("StatementText: %w", err)
	}
	return text, nil
}

// Refresh runs the consistency checker on a statement. With apply unset it
// only reports.
func (s *Service) Refresh(ctx context.Context, rc domain.RequestContext, statementID string, apply bool) (*consistency.Report, error) {
	var grouper consistency.Grouper
	if s.grouper != nil {
		grouper = s.grouper
	}
	report, err := consistency.NewChecker(s.repo, grouper).Check(ctx, rc, statementID, apply)
	if err != nil {
		return nil, fmt.Errorf("Refresh: %w", err)
	}
	return report, nil
}
