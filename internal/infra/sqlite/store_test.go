package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-ledger/internal/checksum"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newStatement(t *testing.T, s *Store, userID, sha string) *domain.Statement {
	t.Helper()
	st := &domain.Statement{
		ID:            uuid.New().String(),
		UserID:        userID,
		Filename:      "march.txt",
		StorageRef:    "file:///tmp/march.txt",
		MimeType:      "text/plain",
		ContentSHA256: sha,
	}
	require.NoError(t, s.InsertStatement(context.Background(), st))
	return st
}

func newTransaction(st *domain.Statement, date civil.Date, narration string, debit int64) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		StatementID:  st.ID,
		UserID:       st.UserID,
		Date:         date,
		Narration:    narration,
		RawLine:      narration,
		Type:         domain.TxnTypeDebit,
		AmountMinor:  debit,
		DebitMinor:   domain.Int64Ptr(debit),
		BalanceMinor: 100000 - debit,
		Checksum:     checksum.Row("", date, debit, "", narration),
	}
}

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, Migrate(context.Background(), s.db))
}

func TestStatements_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	st := newStatement(t, s, "u1", "abc")
	assert.Equal(t, domain.ParseStatusUploaded, st.ParseStatus)

	found, err := s.FindStatementByChecksum(ctx, "u1", "abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, st.ID, found.ID)

	missing, err := s.FindStatementByChecksum(ctx, "u2", "abc")
	require.NoError(t, err)
	assert.Nil(t, missing, "dedup is scoped per user")

	_, err = s.GetStatement(ctx, "u2", st.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.MarkParsing(ctx, "u1", st.ID, false))
	err = s.MarkParsing(ctx, "u1", st.ID, false)
	assert.True(t, errors.Is(err, store.ErrParseInProgress))
	require.NoError(t, s.MarkParsing(ctx, "u1", st.ID, true), "force restarts a stuck parse")

	err = s.MarkParsing(ctx, "u1", "nope", false)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.MarkParsed(ctx, st.ID, 3))
	got, err := s.GetStatement(ctx, "u1", st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusParsed, got.ParseStatus)
	assert.Equal(t, 3, got.TxCount)
	assert.NotNil(t, got.ParsedAt)
	assert.Nil(t, got.ErrorMessage)

	require.NoError(t, s.MarkUnparsed(ctx, st.ID, domain.ParseStatusError, "boom"))
	got, err = s.GetStatement(ctx, "u1", st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusError, got.ParseStatus)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)

	require.NoError(t, s.RenameStatement(ctx, "u1", st.ID, "april.txt"))
	list, err := s.ListStatements(ctx, "u1", store.StatementFilter{Query: "APR"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "april.txt", list[0].Filename)

	list, err = s.ListStatements(ctx, "u1", store.StatementFilter{Query: "march"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStatements_DuplicateChecksumRejected(t *testing.T) {
	s := openTestStore(t)
	newStatement(t, s, "u1", "same")

	dup := &domain.Statement{ID: uuid.New().String(), UserID: "u1", Filename: "b", StorageRef: "b", ContentSHA256: "same"}
	assert.Error(t, s.InsertStatement(context.Background(), dup))
}

func TestUpsertTransaction_ConflictKeepsRow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := newStatement(t, s, "u1", "abc")
	d := civil.Date{Year: 2025, Month: time.March, Day: 1}

	first := newTransaction(st, d, "UPI-JOHN DOE-john@okaxis", 50000)
	require.NoError(t, s.UpsertTransaction(ctx, first))

	again := newTransaction(st, d, "  upi-john   doe-john@okaxis ", 50000)
	require.NoError(t, s.UpsertTransaction(ctx, again))
	assert.Equal(t, first.ID, again.ID, "conflicting upsert returns the stored row id")

	n, err := s.RefreshTxCount(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := s.ListStatementTransactions(ctx, "u1", st.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "UPI-JOHN DOE-john@okaxis", rows[0].Narration)
	assert.Equal(t, d, rows[0].Date)
	require.NotNil(t, rows[0].DebitMinor)
	assert.Equal(t, int64(50000), *rows[0].DebitMinor)
	assert.Nil(t, rows[0].CreditMinor)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := newStatement(t, s, "u1", "abc")
	d := civil.Date{Year: 2025, Month: time.March, Day: 2}

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(q store.Queries) error {
		if err := q.UpsertTransaction(ctx, newTransaction(st, d, "first", 100)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows, err := s.ListStatementTransactions(ctx, "u1", st.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCounterparties_AliasAndAggregates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := newStatement(t, s, "u1", "abc")

	t1 := newTransaction(st, civil.Date{Year: 2025, Month: time.March, Day: 1}, "UPI-JOHN DOE-1", 50000)
	t2 := newTransaction(st, civil.Date{Year: 2025, Month: time.March, Day: 9}, "UPI-JOHN DOE-2", 25000)
	require.NoError(t, s.UpsertTransaction(ctx, t1))
	require.NoError(t, s.UpsertTransaction(ctx, t2))

	unclustered, err := s.ListUnclustered(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, unclustered, 2)

	cp := &domain.Counterparty{UserID: "u1", CanonicalName: "John Doe"}
	require.NoError(t, s.InsertCounterparty(ctx, cp))

	byName, err := s.FindCounterpartyByName(ctx, "u1", "JOHN DOE")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, cp.ID, byName.ID)

	alias := domain.CounterpartyAlias{CounterpartyID: cp.ID, Alias: "john doe", AliasType: domain.AliasTypeUPI}
	require.NoError(t, s.EnsureAlias(ctx, alias))
	require.NoError(t, s.EnsureAlias(ctx, alias))
	aliases, err := s.ListAliases(ctx, cp.ID)
	require.NoError(t, err)
	assert.Len(t, aliases, 1)

	byAlias, err := s.FindCounterpartyByAlias(ctx, "u1", "john doe")
	require.NoError(t, err)
	require.NotNil(t, byAlias)
	assert.Equal(t, cp.ID, byAlias.ID)

	other, err := s.FindCounterpartyByAlias(ctx, "u2", "john doe")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, s.AssignCounterparty(ctx, cp.ID, []string{t1.ID, t2.ID}))
	require.NoError(t, s.RecomputeAggregates(ctx, cp.ID))
	require.NoError(t, s.RecomputeAggregates(ctx, cp.ID))

	got, err := s.GetCounterparty(ctx, "u1", cp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TxCount)
	assert.Equal(t, int64(75000), got.TotalDebitMinor)
	assert.Equal(t, int64(0), got.TotalCreditMinor)
	require.NotNil(t, got.FirstSeen)
	require.NotNil(t, got.LastSeen)
	assert.Equal(t, "2025-03-01", got.FirstSeen.String())
	assert.Equal(t, "2025-03-09", got.LastSeen.String())

	ids, err := s.StatementCounterpartyIDs(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{cp.ID}, ids)

	unclustered, err = s.ListUnclustered(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, unclustered)

	metrics, err := s.GetStatementMetrics(ctx, "u1", st.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.TxCount)
	assert.Equal(t, 1, metrics.CounterpartyCount)
}

func TestDeleteStatement_CascadesAndDetaches(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := newStatement(t, s, "u1", "abc")
	tx := newTransaction(st, civil.Date{Year: 2025, Month: time.March, Day: 1}, "ACME CORP", 1000)
	require.NoError(t, s.UpsertTransaction(ctx, tx))
	require.NoError(t, s.InsertParseLog(ctx, &domain.ParseLog{StatementID: &st.ID, UserID: "u1", Level: "info", Message: "parse started"}))

	cp := &domain.Counterparty{UserID: "u1", CanonicalName: "Acme Corp"}
	require.NoError(t, s.InsertCounterparty(ctx, cp))
	require.NoError(t, s.AssignCounterparty(ctx, cp.ID, []string{tx.ID}))
	require.NoError(t, s.RecomputeAggregates(ctx, cp.ID))

	require.NoError(t, s.DeleteStatement(ctx, "u1", st.ID))
	assert.True(t, errors.Is(s.DeleteStatement(ctx, "u1", st.ID), store.ErrNotFound))

	_, err := s.GetTransaction(ctx, "u1", tx.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	logs, err := s.ListParseLogs(ctx, st.ID, 20)
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, s.RecomputeAggregates(ctx, cp.ID))
	got, err := s.GetCounterparty(ctx, "u1", cp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TxCount)
	assert.Nil(t, got.FirstSeen)
}

func TestTransactions_FixManualAndSearch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := newStatement(t, s, "u1", "abc")
	tx := newTransaction(st, civil.Date{Year: 2025, Month: time.March, Day: 1}, "NEFT-Globex Ltd-ref", 700)
	require.NoError(t, s.UpsertTransaction(ctx, tx))

	require.NoError(t, s.ApplyTransactionFix(ctx, tx.ID, store.TransactionFix{
		AmountMinor: 900, Type: domain.TxnTypeCredit, Checksum: "fixed",
	}))
	got, err := s.GetTransaction(ctx, "u1", tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), got.AmountMinor)
	assert.Equal(t, domain.TxnTypeCredit, got.Type)
	assert.Equal(t, "fixed", got.Checksum)

	byChecksum, err := s.FindTransactionByChecksum(ctx, "u1", "fixed")
	require.NoError(t, err)
	require.NotNil(t, byChecksum)
	assert.Equal(t, tx.ID, byChecksum.ID)
	missing, err := s.FindTransactionByChecksum(ctx, "u2", "fixed")
	require.NoError(t, err)
	assert.Nil(t, missing)

	hits, err := s.ListTransactionsByNarration(ctx, "u1", "globex")
	require.NoError(t, err)
	require.Len(t, hits, 1)

	cp := &domain.Counterparty{UserID: "u1", CanonicalName: "Globex"}
	require.NoError(t, s.InsertCounterparty(ctx, cp))
	require.NoError(t, s.SetManualCounterparty(ctx, tx.ID, cp.ID))
	require.NoError(t, s.InsertHistory(ctx, domain.CounterpartyHistory{
		TransactionID: tx.ID, NewCounterpartyID: cp.ID, ChangedBy: "u1", Reason: "promote",
	}))

	got, err = s.GetTransaction(ctx, "u1", tx.ID)
	require.NoError(t, err)
	assert.True(t, got.ManualFlag)
	require.NotNil(t, got.CounterpartyID)
	assert.Equal(t, cp.ID, *got.CounterpartyID)
}

func TestParseLogs_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := newStatement(t, s, "u1", "abc")

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, s.InsertParseLog(ctx, &domain.ParseLog{StatementID: &st.ID, UserID: "u1", Level: "info", Message: msg}))
	}
	logs, err := s.ListParseLogs(ctx, st.ID, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "three", logs[0].Message)
	assert.Equal(t, "two", logs[1].Message)
}

func TestAccountsAndDashboard(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	acct := &domain.Account{UserID: "u1", BankName: "Example Bank", IFSC: domain.StringPtr("EXMP0001234")}
	require.NoError(t, s.InsertAccount(ctx, acct))
	assert.Equal(t, "INR", acct.Currency)

	accts, err := s.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, "EXMP0001234", domain.Deref(accts[0].IFSC))

	_, err = s.GetAccount(ctx, "u2", acct.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	empty, err := s.DashboardKPIs(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Zero(t, empty.StatementCount)
	assert.Nil(t, empty.LatestBalanceMinor)
	assert.Empty(t, empty.TopCounterparties)

	st := newStatement(t, s, "u1", "abc")
	require.NoError(t, s.UpsertTransaction(ctx, newTransaction(st, civil.Date{Year: 2025, Month: time.March, Day: 1}, "a", 100)))
	require.NoError(t, s.UpsertTransaction(ctx, newTransaction(st, civil.Date{Year: 2025, Month: time.March, Day: 5}, "b", 300)))
	require.NoError(t, s.MarkParsed(ctx, st.ID, 2))

	k, err := s.DashboardKPIs(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, k.StatementCount)
	assert.Equal(t, 2, k.TransactionCount)
	assert.Equal(t, int64(400), k.TotalDebitMinor)
	require.NotNil(t, k.LatestBalanceMinor)
	assert.Equal(t, int64(100000-300), *k.LatestBalanceMinor)
	assert.NotNil(t, k.LastParsedAt)
}
