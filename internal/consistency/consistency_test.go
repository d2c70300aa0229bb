package consistency

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-ledger/internal/checksum"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/grouping"
	"github.com/dvloznov/statement-ledger/internal/infra/sqlite"
	"github.com/dvloznov/statement-ledger/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGrouper struct {
	RunFunc func(ctx context.Context, rc domain.RequestContext) (*grouping.Report, error)
	calls   int
}

func (m *mockGrouper) Run(ctx context.Context, rc domain.RequestContext) (*grouping.Report, error) {
	m.calls++
	if m.RunFunc != nil {
		return m.RunFunc(ctx, rc)
	}
	return &grouping.Report{}, nil
}

var day = civil.Date{Year: 2025, Month: time.April, Day: 3}

func TestInspect(t *testing.T) {
	good := &domain.TransactionRecord{
		ID: "t1", Date: day, Narration: "NEFT-ACME", Type: domain.TxnTypeDebit,
		AmountMinor: 500, DebitMinor: domain.Int64Ptr(500),
	}
	good.Checksum = checksum.Row("", day, 500, "", good.Narration)

	tests := []struct {
		name      string
		mutate    func(tx *domain.TransactionRecord)
		wantKinds []IssueKind
		wantFix   store.TransactionFix
	}{
		{
			name:      "clean row",
			mutate:    func(*domain.TransactionRecord) {},
			wantKinds: nil,
		},
		{
			name: "missing amount with a checksum matching its current values",
			mutate: func(tx *domain.TransactionRecord) {
				tx.AmountMinor = 0
				tx.Checksum = checksum.Row("", day, 0, "", tx.Narration)
			},
			wantKinds: []IssueKind{IssueMissingAmount},
			wantFix:   store.TransactionFix{AmountMinor: 500, Type: domain.TxnTypeDebit, Checksum: good.Checksum},
		},
		{
			name: "missing amount with a stale checksum",
			mutate: func(tx *domain.TransactionRecord) {
				tx.AmountMinor = 0
				tx.Checksum = "stale"
			},
			wantKinds: []IssueKind{IssueMissingAmount, IssueChecksumMismatch},
			wantFix:   store.TransactionFix{AmountMinor: 500, Type: domain.TxnTypeDebit, Checksum: good.Checksum},
		},
		{
			name:      "type disagrees with populated column",
			mutate:    func(tx *domain.TransactionRecord) { tx.Type = domain.TxnTypeCredit },
			wantKinds: []IssueKind{IssueTypeMismatch},
			wantFix:   store.TransactionFix{AmountMinor: 500, Type: domain.TxnTypeDebit, Checksum: good.Checksum},
		},
		{
			name:      "stale checksum",
			mutate:    func(tx *domain.TransactionRecord) { tx.Checksum = "stale" },
			wantKinds: []IssueKind{IssueChecksumMismatch},
			wantFix:   store.TransactionFix{AmountMinor: 500, Type: domain.TxnTypeDebit, Checksum: good.Checksum},
		},
		{
			name: "row without side columns keeps its hinted type",
			mutate: func(tx *domain.TransactionRecord) {
				tx.DebitMinor = nil
				tx.Type = domain.TxnTypeOther
			},
			wantKinds: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := *good
			tt.mutate(&tx)

			issues, fix := Inspect(&tx)
			var kinds []IssueKind
			for _, is := range issues {
				kinds = append(kinds, is.Kind)
				assert.Equal(t, "t1", is.TransactionID)
			}
			assert.Equal(t, tt.wantKinds, kinds)
			if len(tt.wantKinds) > 0 {
				assert.Equal(t, tt.wantFix, fix)
			}
		})
	}
}

type fixture struct {
	store *sqlite.Store
	st    *domain.Statement
	clean *domain.TransactionRecord
	zero  *domain.TransactionRecord
	typed *domain.TransactionRecord
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	st := &domain.Statement{
		ID: uuid.New().String(), UserID: "u1", Filename: "s.txt", StorageRef: "mem://s.txt", ContentSHA256: "sha",
	}
	require.NoError(t, s.InsertStatement(ctx, st))

	row := func(narration string, amount, debit int64, typ domain.TxnType) *domain.TransactionRecord {
		tx := &domain.TransactionRecord{
			StatementID: st.ID, UserID: "u1", Date: day, Narration: narration, RawLine: narration,
			Type: typ, AmountMinor: amount, DebitMinor: domain.Int64Ptr(debit),
			Checksum: checksum.Row("", day, amount, "", narration),
		}
		require.NoError(t, s.UpsertTransaction(ctx, tx))
		return tx
	}

	return &fixture{
		store: s,
		st:    st,
		clean: row("NEFT-ACME-1", 100, 100, domain.TxnTypeDebit),
		zero:  row("NEFT-ACME-2", 0, 250, domain.TxnTypeDebit),
		typed: row("NEFT-ACME-3", 300, 300, domain.TxnTypeCredit),
	}
}

func TestCheck_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	grouper := &mockGrouper{}
	checker := NewChecker(f.store, grouper)
	rc := domain.RequestContext{UserID: "u1"}

	before, err := f.store.ListStatementTransactions(ctx, "u1", f.st.ID)
	require.NoError(t, err)

	report, err := checker.Check(ctx, rc, f.st.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Len(t, report.Issues, 2)
	assert.False(t, report.Applied)
	assert.Zero(t, grouper.calls)

	after, err := f.store.ListStatementTransactions(ctx, "u1", f.st.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCheck_ApplyFixesAndRegroups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	grouper := &mockGrouper{}
	checker := NewChecker(f.store, grouper)
	rc := domain.RequestContext{UserID: "u1"}

	report, err := checker.Check(ctx, rc, f.st.ID, true)
	require.NoError(t, err)
	assert.True(t, report.Applied)
	assert.Equal(t, 2, report.Fixed)
	assert.Equal(t, 3, report.TxCount)
	assert.Equal(t, 1, grouper.calls)

	zero, err := f.store.GetTransaction(ctx, "u1", f.zero.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), zero.AmountMinor)
	assert.Equal(t, checksum.Row("", day, 250, "", "NEFT-ACME-2"), zero.Checksum)

	typed, err := f.store.GetTransaction(ctx, "u1", f.typed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxnTypeDebit, typed.Type)

	again, err := checker.Check(ctx, rc, f.st.ID, false)
	require.NoError(t, err)
	assert.Empty(t, again.Issues)
}

func TestCheck_HoldsFixThatWouldDuplicateAnotherRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rc := domain.RequestContext{UserID: "u1"}

	// A zero-amount copy of a real row: repairing it would give it the real
	// row's checksum.
	original := &domain.TransactionRecord{
		StatementID: f.st.ID, UserID: "u1", Date: day, Narration: "NEFT-ACME-2", RawLine: "NEFT-ACME-2",
		Type: domain.TxnTypeDebit, AmountMinor: 250, DebitMinor: domain.Int64Ptr(250),
		Checksum: checksum.Row("", day, 250, "", "NEFT-ACME-2"),
	}
	require.NoError(t, f.store.UpsertTransaction(ctx, original))

	checker := NewChecker(f.store, &mockGrouper{})

	dry, err := checker.Check(ctx, rc, f.st.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, dry.Held)
	assert.Contains(t, dry.Issues, Issue{
		TransactionID: f.zero.ID,
		Kind:          IssueDuplicateOf,
		Stored:        f.zero.Checksum,
		Expected:      original.ID,
	})

	for i := 0; i < 2; i++ {
		report, err := checker.Check(ctx, rc, f.st.ID, true)
		require.NoError(t, err)
		assert.True(t, report.Applied)
		assert.Equal(t, 1, report.Held)
	}

	zero, err := f.store.GetTransaction(ctx, "u1", f.zero.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), zero.AmountMinor)
	assert.Equal(t, f.zero.Checksum, zero.Checksum)

	typed, err := f.store.GetTransaction(ctx, "u1", f.typed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxnTypeDebit, typed.Type)
}

func TestCheck_GroupingFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")
	grouper := &mockGrouper{RunFunc: func(context.Context, domain.RequestContext) (*grouping.Report, error) {
		return nil, boom
	}}

	_, err := NewChecker(f.store, grouper).Check(context.Background(), domain.RequestContext{UserID: "u1"}, f.st.ID, true)
	assert.ErrorIs(t, err, boom)
}

func TestCheck_UnknownStatement(t *testing.T) {
	f := newFixture(t)
	_, err := NewChecker(f.store, nil).Check(context.Background(), domain.RequestContext{UserID: "u2"}, f.st.ID, false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
