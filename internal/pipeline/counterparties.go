package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/grouping"
	"github.com/dvloznov/statement-ledger/internal/logger"
	"github.com/dvloznov/statement-ledger/internal/normalize"
	"github.com/dvloznov/statement-ledger/internal/store"
)

// History reasons.
const (
	ReasonPromote    = "promote"
	ReasonMergeAlias = "merge_alias"
)

// ListCounterparties returns up to CounterpartyListLimit counterparties by
// transaction count.
func (s *Service) ListCounterparties(ctx context.Context, rc domain.RequestContext) ([]*domain.Counterparty, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("ListCounterparties: %w", err)
	}
	cps, err := s.repo.ListCounterparties(ctx, rc.UserID, CounterpartyListLimit)
	if err != nil {
		return nil, fmt.Errorf("ListCounterparties: %w", err)
	}
	if cps == nil {
		cps = []*domain.Counterparty{}
	}
	return cps, nil
}

// CounterpartyDetail is a counterparty with its aliases.
type CounterpartyDetail struct {
	Counterparty *domain.Counterparty      `json:"counterparty"`
	Aliases      []domain.CounterpartyAlias `json:"aliases"`
}

// GetCounterparty returns one counterparty and its aliases.
func (s *Service) GetCounterparty(ctx context.Context, rc domain.RequestContext, counterpartyID string) (*CounterpartyDetail, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("GetCounterparty: %w", err)
	}
	cp, err := s.repo.GetCounterparty(ctx, rc.UserID, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("GetCounterparty: %w", err)
	}
	aliases, err := s.repo.ListAliases(ctx, cp.ID)
	if err != nil {
		return nil, fmt.Errorf("GetCounterparty: %w", err)
	}
	if aliases == nil {
		aliases = []domain.CounterpartyAlias{}
	}
	return &CounterpartyDetail{Counterparty: cp, Aliases: aliases}, nil
}

// RunGrouping clusters the user's unassigned transactions on demand.
func (s *Service) RunGrouping(ctx context.Context, rc domain.RequestContext) (*grouping.Report, error) {
	if s.grouper == nil {
		return &grouping.Report{}, nil
	}
	report, err := s.grouper.Run(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("RunGrouping: %w", err)
	}
	return report, nil
}

// Promote assigns one transaction to the counterparty named canonicalName,
// creating it when the user has none by that name. The transaction's
// normalized narration becomes an alias of the counterparty and the row is
// flagged manual.
func (s *Service) Promote(ctx context.Context, rc domain.RequestContext, transactionID, canonicalName string) (*domain.Counterparty, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("Promote: %w", err)
	}
	canonicalName = strings.Join(strings.Fields(canonicalName), " ")
	if canonicalName == "" {
		return nil, fmt.Errorf("Promote: canonical name: %w", ErrInvalidInput)
	}

	tx, err := s.repo.GetTransaction(ctx, rc.UserID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("Promote: %w", err)
	}
	key := normalize.Truncate(normalize.Narration(tx.Narration), MaxAliasLen)

	var cp *domain.Counterparty
	err = s.repo.WithTx(ctx, func(q store.Queries) error {
		var err error
		cp, err = q.FindCounterpartyByName(ctx, rc.UserID, canonicalName)
		if err != nil {
			return err
		}
		if cp == nil {
			cp = &domain.Counterparty{UserID: rc.UserID, CanonicalName: canonicalName}
			if err := q.InsertCounterparty(ctx, cp); err != nil {
				return err
			}
		}

		if key != "" {
			if err := q.DetachAlias(ctx, rc.UserID, key, cp.ID); err != nil {
				return err
			}
			if err := q.EnsureAlias(ctx, domain.CounterpartyAlias{
				CounterpartyID: cp.ID,
				Alias:          key,
				AliasType:      domain.AliasTypeNarration,
			}); err != nil {
				return err
			}
		}

		return reassign(ctx, q, rc, cp.ID, []*domain.TransactionRecord{tx}, ReasonPromote)
	})
	if err != nil {
		return nil, fmt.Errorf("Promote: %w", err)
	}

	cp, err = s.repo.GetCounterparty(ctx, rc.UserID, cp.ID)
	if err != nil {
		return nil, fmt.Errorf("Promote: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("user_id", rc.UserID).
		Str("transaction_id", transactionID).
		Str("counterparty_id", cp.ID).
		Msg("Transaction promoted to counterparty")
	return cp, nil
}

// MergeResult reports a MergeAlias call.
type MergeResult struct {
	Counterparty *domain.Counterparty `json:"counterparty"`
	Alias        string               `json:"alias"`
	Reassigned   int                  `json:"reassigned"`
}

// MergeAlias attaches alias to a counterparty and moves every transaction
// of the user whose narration contains it to that counterparty. Aggregates
// of every counterparty that lost rows are recomputed.
func (s *Service) MergeAlias(ctx context.Context, rc domain.RequestContext, counterpartyID, alias string) (*MergeResult, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("MergeAlias: %w", err)
	}
	key := normalize.Truncate(normalize.Narration(alias), MaxAliasLen)
	if key == "" {
		return nil, fmt.Errorf("MergeAlias: alias: %w", ErrInvalidInput)
	}

	cp, err := s.repo.GetCounterparty(ctx, rc.UserID, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("MergeAlias: %w", err)
	}
	matches, err := s.repo.ListTransactionsByNarration(ctx, rc.UserID, key)
	if err != nil {
		return nil, fmt.Errorf("MergeAlias: %w", err)
	}

	var moved []*domain.TransactionRecord
	for _, tx := range matches {
		if tx.CounterpartyID == nil || *tx.CounterpartyID != cp.ID {
			moved = append(moved, tx)
		}
	}

	err = s.repo.WithTx(ctx, func(q store.Queries) error {
		if err := q.DetachAlias(ctx, rc.UserID, key, cp.ID); err != nil {
			return err
		}
		if err := q.EnsureAlias(ctx, domain.CounterpartyAlias{
			CounterpartyID: cp.ID,
			Alias:          key,
			AliasType:      domain.AliasTypeManual,
		}); err != nil {
			return err
		}
		return reassign(ctx, q, rc, cp.ID, moved, ReasonMergeAlias)
	})
	if err != nil {
		return nil, fmt.Errorf("MergeAlias: %w", err)
	}

	cp, err = s.repo.GetCounterparty(ctx, rc.UserID, cp.ID)
	if err != nil {
		return nil, fmt.Errorf("MergeAlias: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("user_id", rc.UserID).
		Str("counterparty_id", cp.ID).
		Str("alias", key).
		Int("reassigned", len(moved)).
		Msg("Alias merged")
	return &MergeResult{Counterparty: cp, Alias: key, Reassigned: len(moved)}, nil
}

// reassign moves txs to counterpartyID, writes a history row per move and
// recomputes the target and every previous counterparty.
func reassign(ctx context.Context, q store.Queries, rc domain.RequestContext, counterpartyID string, txs []*domain.TransactionRecord, reason string) error {
	affected := map[string]bool{counterpartyID: true}
	for _, tx := range txs {
		if err := q.SetManualCounterparty(ctx, tx.ID, counterpartyID); err != nil {
			return err
		}
		if err := q.InsertHistory(ctx, domain.CounterpartyHistory{
			TransactionID:     tx.ID,
			OldCounterpartyID: tx.CounterpartyID,
			NewCounterpartyID: counterpartyID,
			ChangedBy:         rc.UserID,
			Reason:            reason,
		}); err != nil {
			return err
		}
		if tx.CounterpartyID != nil {
			affected[*tx.CounterpartyID] = true
		}
	}
	for id := range affected {
		if err := q.RecomputeAggregates(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
