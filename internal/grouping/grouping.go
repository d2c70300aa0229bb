// Package grouping clusters a user's unassigned transactions into
// counterparties by their narration alias.
package grouping

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dvloznov/statement-ledger/internal/alias"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/logger"
	"github.com/dvloznov/statement-ledger/internal/store"
)

const (
	// DefaultMinGroupSize is how many unassigned transactions must share a
	// candidate before a counterparty is created for them.
	DefaultMinGroupSize = 2

	// DefaultBatchSize bounds the id list of one reassignment statement.
	DefaultBatchSize = 100

	// AuditActionAutoGroup is recorded when a run creates a counterparty.
	AuditActionAutoGroup = "auto_group_created"
)

// Config tunes the engine. Zero values take the defaults.
type Config struct {
	MinGroupSize int
	BatchSize    int
	Blacklist    []string
}

// Report summarises one run.
type Report struct {
	Scanned  int `json:"scanned"`
	Groups   int `json:"groups"`
	Assigned int `json:"assigned"`
	Created  int `json:"created"`
	Failed   int `json:"failed"`
}

// Engine assigns counterparties to unclustered transactions.
type Engine struct {
	repo      store.Repository
	minSize   int
	batchSize int
	blacklist alias.Blacklist
}

// NewEngine builds an engine over repo.
func NewEngine(repo store.Repository, cfg Config) *Engine {
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = DefaultMinGroupSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	words := cfg.Blacklist
	if words == nil {
		words = alias.DefaultBlacklist
	}
	return &Engine{
		repo:      repo,
		minSize:   cfg.MinGroupSize,
		batchSize: cfg.BatchSize,
		blacklist: alias.NewBlacklist(words),
	}
}

type group struct {
	candidate alias.Candidate
	txIDs     []string
}

// Run clusters every transaction of rc.UserID that has no counterparty.
// Each candidate group is committed in its own store transaction; a failing
// group is logged and counted, and the rest still run. Running twice in a
// row changes nothing the second time.
func (e *Engine) Run(ctx context.Context, rc domain.RequestContext) (*Report, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	log := logger.FromContext(ctx).With().Str("user_id", rc.UserID).Logger()

	txs, err := e.repo.ListUnclustered(ctx, rc.UserID)
	if err != nil {
		return nil, fmt.Errorf("Run: listing unclustered transactions: %w", err)
	}

	report := &Report{Scanned: len(txs)}
	groups := e.collect(txs)
	report.Groups = len(groups)

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("Run: %w", err)
		}
		created, err := e.apply(ctx, rc, g)
		if err != nil {
			report.Failed++
			log.Warn().
				Err(err).
				Str("alias", g.candidate.Key).
				Int("tx_count", len(g.txIDs)).
				Msg("Failed to group candidate")
			continue
		}
		report.Assigned += len(g.txIDs)
		if created {
			report.Created++
		}
	}

	log.Info().
		Int("scanned", report.Scanned).
		Int("groups", report.Groups).
		Int("assigned", report.Assigned).
		Int("created", report.Created).
		Int("failed", report.Failed).
		Msg("Grouping run finished")
	return report, nil
}

// collect buckets transactions by candidate key and drops blacklisted keys
// and groups below the threshold. Groups come back sorted by key.
func (e *Engine) collect(txs []*domain.TransactionRecord) []group {
	byKey := make(map[string]*group)
	for _, tx := range txs {
		c := alias.Extract(tx.Narration)
		if e.blacklist.Blocks(c.Key) {
			continue
		}
		g, ok := byKey[c.Key]
		if !ok {
			g = &group{candidate: c}
			byKey[c.Key] = g
		}
		g.txIDs = append(g.txIDs, tx.ID)
	}

	out := make([]group, 0, len(byKey))
	for _, g := range byKey {
		if len(g.txIDs) >= e.minSize {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].candidate.Key < out[j].candidate.Key })
	return out
}

func (e *Engine) apply(ctx context.Context, rc domain.RequestContext, g group) (created bool, err error) {
	err = e.repo.WithTx(ctx, func(q store.Queries) error {
		cp, isNew, err := resolve(ctx, q, rc.UserID, g.candidate)
		if err != nil {
			return err
		}
		created = isNew

		if err := q.EnsureAlias(ctx, domain.CounterpartyAlias{
			CounterpartyID: cp.ID,
			Alias:          g.candidate.Key,
			AliasType:      g.candidate.Type,
		}); err != nil {
			return fmt.Errorf("apply: %w", err)
		}

		for start := 0; start < len(g.txIDs); start += e.batchSize {
			end := min(start+e.batchSize, len(g.txIDs))
			if err := q.AssignCounterparty(ctx, cp.ID, g.txIDs[start:end]); err != nil {
				return fmt.Errorf("apply: %w", err)
			}
		}

		if err := q.RecomputeAggregates(ctx, cp.ID); err != nil {
			return fmt.Errorf("apply: %w", err)
		}

		if isNew {
			meta, _ := json.Marshal(map[string]any{
				"alias":      g.candidate.Key,
				"alias_type": g.candidate.Type,
				"tx_count":   len(g.txIDs),
			})
			if err := q.InsertAudit(ctx, &domain.AuditEvent{
				UserID:     rc.UserID,
				Action:     AuditActionAutoGroup,
				EntityType: "counterparty",
				EntityID:   cp.ID,
				Meta:       string(meta),
			}); err != nil {
				return fmt.Errorf("apply: %w", err)
			}
		}
		return nil
	})
	return created, err
}

// resolve finds the counterparty for c by alias, then by canonical name, and
// creates one named c.Display when neither exists.
func resolve(ctx context.Context, q store.Queries, userID string, c alias.Candidate) (*domain.Counterparty, bool, error) {
	cp, err := q.FindCounterpartyByAlias(ctx, userID, c.Key)
	if err != nil {
		return nil, false, fmt.Errorf("resolve: %w", err)
	}
	if cp != nil {
		return cp, false, nil
	}

	cp, err = q.FindCounterpartyByName(ctx, userID, c.Display)
	if err != nil {
		return nil, false, fmt.Errorf("resolve: %w", err)
	}
	if cp != nil {
		return cp, false, nil
	}

	cp = &domain.Counterparty{UserID: userID, CanonicalName: c.Display}
	if err := q.InsertCounterparty(ctx, cp); err != nil {
		return nil, false, fmt.Errorf("resolve: %w", err)
	}
	return cp, true, nil
}
