// Package consistency audits a parsed statement's stored transactions and
// optionally repairs them.
package consistency

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-ledger/internal/checksum"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/grouping"
	"github.com/dvloznov/statement-ledger/internal/logger"
	"github.com/dvloznov/statement-ledger/internal/store"
)

// IssueKind names one class of stored-row inconsistency.
type IssueKind string

const (
	IssueChecksumMismatch IssueKind = "checksum_mismatch"
	IssueMissingAmount    IssueKind = "missing_amount"
	IssueTypeMismatch     IssueKind = "type_mismatch"

	// IssueDuplicateOf marks a row whose corrected checksum already belongs
	// to another stored row. Its fix is never written; Expected holds the
	// other row's id.
	IssueDuplicateOf IssueKind = "duplicate_of"
)

// Issue is one finding on one transaction. Stored and Expected are the
// values rendered as text.
type Issue struct {
	TransactionID string    `json:"transaction_id"`
	Kind          IssueKind `json:"kind"`
	Stored        string    `json:"stored"`
	Expected      string    `json:"expected"`
}

// Report is the outcome of a check.
type Report struct {
	StatementID string           `json:"statement_id"`
	Checked     int              `json:"checked"`
	Issues      []Issue          `json:"issues"`
	Applied     bool             `json:"applied"`
	Fixed       int              `json:"fixed"`
	Held        int              `json:"held"`
	TxCount     int              `json:"tx_count,omitempty"`
	Grouping    *grouping.Report `json:"grouping,omitempty"`
}

// Grouper re-clusters a user's transactions after a repair.
type Grouper interface {
	Run(ctx context.Context, rc domain.RequestContext) (*grouping.Report, error)
}

// Checker detects checksum, amount and type drift on stored rows.
type Checker struct {
	repo    store.Repository
	grouper Grouper
}

// NewChecker builds a checker. grouper may be nil, in which case apply skips
// re-clustering.
func NewChecker(repo store.Repository, grouper Grouper) *Checker {
	return &Checker{repo: repo, grouper: grouper}
}

type plannedFix struct {
	txID string
	fix  store.TransactionFix
}

// Check inspects every transaction of the statement. With apply unset it
// only reports and writes nothing. With apply set, all corrections are
// written in one store transaction; the statement tx_count is then refreshed
// and grouping re-run. A row whose corrected checksum is taken by another
// row is reported as duplicate_of and held back, so the remaining fixes
// still apply.
func (c *Checker) Check(ctx context.Context, rc domain.RequestContext, statementID string, apply bool) (*Report, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("Check: %w", err)
	}
	log := logger.ForStatement(logger.FromContext(ctx), rc.UserID, statementID)

	if _, err := c.repo.GetStatement(ctx, rc.UserID, statementID); err != nil {
		return nil, fmt.Errorf("Check: %w", err)
	}
	txs, err := c.repo.ListStatementTransactions(ctx, rc.UserID, statementID)
	if err != nil {
		return nil, fmt.Errorf("Check: %w", err)
	}

	report := &Report{StatementID: statementID, Checked: len(txs), Issues: []Issue{}}
	var fixes []plannedFix
	claimed := make(map[string]string)
	for _, tx := range txs {
		issues, fix := Inspect(tx)
		if len(issues) == 0 {
			continue
		}
		report.Issues = append(report.Issues, issues...)

		if fix.Checksum != tx.Checksum {
			otherID, err := c.checksumOwner(ctx, rc.UserID, tx.ID, fix.Checksum, claimed)
			if err != nil {
				return nil, fmt.Errorf("Check: %w", err)
			}
			if otherID != "" {
				report.Issues = append(report.Issues, Issue{
					TransactionID: tx.ID,
					Kind:          IssueDuplicateOf,
					Stored:        tx.Checksum,
					Expected:      otherID,
				})
				report.Held++
				continue
			}
			claimed[fix.Checksum] = tx.ID
		}
		fixes = append(fixes, plannedFix{txID: tx.ID, fix: fix})
	}

	log.Info().
		Int("checked", report.Checked).
		Int("issues", len(report.Issues)).
		Int("held", report.Held).
		Bool("apply", apply).
		Msg("Consistency check finished")

	if !apply {
		return report, nil
	}

	err = c.repo.WithTx(ctx, func(q store.Queries) error {
		for _, f := range fixes {
			if err := q.ApplyTransactionFix(ctx, f.txID, f.fix); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Check: applying fixes: %w", err)
	}
	report.Applied = true
	report.Fixed = len(fixes)

	report.TxCount, err = c.repo.RefreshTxCount(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("Check: %w", err)
	}

	if c.grouper != nil {
		report.Grouping, err = c.grouper.Run(ctx, rc)
		if err != nil {
			return nil, fmt.Errorf("Check: regrouping: %w", err)
		}
	}

	log.Info().Int("fixed", report.Fixed).Int("tx_count", report.TxCount).Msg("Consistency fixes applied")
	return report, nil
}

// checksumOwner returns the id of a row other than txID that holds sum,
// either stored or already claimed by an earlier fix of this check. It
// returns "" when sum is free.
func (c *Checker) checksumOwner(ctx context.Context, userID, txID, sum string, claimed map[string]string) (string, error) {
	if id, ok := claimed[sum]; ok && id != txID {
		return id, nil
	}
	other, err := c.repo.FindTransactionByChecksum(ctx, userID, sum)
	if err != nil {
		return "", err
	}
	if other == nil || other.ID == txID {
		return "", nil
	}
	return other.ID, nil
}

// Inspect returns the issues found on tx and the fix that resolves all of
// them. The stored checksum is compared against the row's current values;
// the fix always carries the checksum of the corrected values. The fix is
// meaningful only when issues is non-empty.
func Inspect(tx *domain.TransactionRecord) ([]Issue, store.TransactionFix) {
	var issues []Issue
	fix := store.TransactionFix{AmountMinor: tx.AmountMinor, Type: tx.Type}

	if tx.AmountMinor == 0 {
		if want := max(positive(tx.DebitMinor), positive(tx.CreditMinor)); want > 0 {
			issues = append(issues, Issue{
				TransactionID: tx.ID,
				Kind:          IssueMissingAmount,
				Stored:        "0",
				Expected:      fmt.Sprintf("%d", want),
			})
			fix.AmountMinor = want
		}
	}

	if want := domain.ExpectedType(tx.DebitMinor, tx.CreditMinor); want != tx.Type && !noSideColumns(tx, want) {
		issues = append(issues, Issue{
			TransactionID: tx.ID,
			Kind:          IssueTypeMismatch,
			Stored:        string(tx.Type),
			Expected:      string(want),
		})
		fix.Type = want
	}

	account, reference := domain.Deref(tx.AccountID), domain.Deref(tx.Reference)
	if current := checksum.Row(account, tx.Date, tx.AmountMinor, reference, tx.Narration); current != tx.Checksum {
		issues = append(issues, Issue{
			TransactionID: tx.ID,
			Kind:          IssueChecksumMismatch,
			Stored:        tx.Checksum,
			Expected:      current,
		})
	}
	fix.Checksum = checksum.Row(account, tx.Date, fix.AmountMinor, reference, tx.Narration)
	return issues, fix
}

// noSideColumns reports rows stored without either side column. Their
// type came from an import hint and cannot be checked.
func noSideColumns(tx *domain.TransactionRecord, want domain.TxnType) bool {
	return want == domain.TxnTypeOther && tx.DebitMinor == nil && tx.CreditMinor == nil
}

func positive(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
