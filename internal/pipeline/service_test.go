package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/statement-ledger/internal/artifacts"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/grouping"
	"github.com/dvloznov/statement-ledger/internal/infra/sqlite"
	"github.com/dvloznov/statement-ledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upiDebits = "01/09/25 UPI-JOHN DOE-DOEJOHN@BANK 500.00 - 1500.00\n" +
	"02/09/25 UPI-JOHN DOE-DOEJOHN@BANK 300.00 - 1200.00\n"

const bankCSV = "Date,Narration,Debit,Credit,Balance\n" +
	"02/09/25,ATM WDL,1000.00,,24000.00\n" +
	"03/09/25,NEFT-ACME SALARY,,25000.00,49000.00\n" +
	"04/09/25,POS GROCERY MART,200.00,,48800.00\n"

var rc = domain.RequestContext{UserID: "user-1"}

// mockArtifacts wraps a real store and lets a test fail reads.
type mockArtifacts struct {
	artifacts.Store
	GetFunc func(ctx context.Context, ref string) ([]byte, error)
}

func (m *mockArtifacts) Get(ctx context.Context, ref string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, ref)
	}
	return m.Store.Get(ctx, ref)
}

type mockExporter struct {
	ExportStatementFunc func(ctx context.Context, st *domain.Statement, txs []*domain.TransactionRecord, cps []*domain.Counterparty) (int, error)
	DeleteStatementFunc func(ctx context.Context, userID, statementID string) error
}

func (m *mockExporter) ExportStatement(ctx context.Context, st *domain.Statement, txs []*domain.TransactionRecord, cps []*domain.Counterparty) (int, error) {
	if m.ExportStatementFunc != nil {
		return m.ExportStatementFunc(ctx, st, txs, cps)
	}
	return len(txs), nil
}

func (m *mockExporter) DeleteStatement(ctx context.Context, userID, statementID string) error {
	if m.DeleteStatementFunc != nil {
		return m.DeleteStatementFunc(ctx, userID, statementID)
	}
	return nil
}

type fixture struct {
	svc   *Service
	repo  *sqlite.Store
	files *mockArtifacts
}

func newFixture(t *testing.T, configure func(d *Deps)) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := sqlite.Open(context.Background(), filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	local, err := artifacts.NewLocalStore(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	files := &mockArtifacts{Store: local}

	d := Deps{
		Repo:      repo,
		Artifacts: files,
		Grouper:   grouping.NewEngine(repo, grouping.Config{}),
	}
	if configure != nil {
		configure(&d)
	}
	return &fixture{svc: NewService(d), repo: repo, files: files}
}

func TestParse_UPIDebitsEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	up, err := f.svc.UploadText(ctx, rc, upiDebits, nil)
	require.NoError(t, err)
	assert.False(t, up.Duplicate)
	assert.Equal(t, domain.ParseStatusUploaded, up.ParseStatus)

	res, err := f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusParsed, res.Status)
	assert.Equal(t, 2, res.TxCount)
	require.NotNil(t, res.Grouping)
	assert.Equal(t, 1, res.Grouping.Created)

	cps, err := f.svc.ListCounterparties(ctx, rc)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, "John Doe", cps[0].CanonicalName)
	assert.Equal(t, 2, cps[0].TxCount)
	assert.Equal(t, int64(80000), cps[0].TotalDebitMinor)

	status, err := f.svc.Status(ctx, rc, up.StatementID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusParsed, status.Statement.ParseStatus)
	assert.Equal(t, 2, status.Statement.TxCount)
	require.NotEmpty(t, status.Logs)
	assert.Equal(t, "Parse finished", status.Logs[0].Message)
}

func TestParse_ReparseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	up, err := f.svc.UploadText(ctx, rc, upiDebits, nil)
	require.NoError(t, err)
	_, err = f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)
	before, err := f.svc.StatementTransactions(ctx, rc, up.StatementID)
	require.NoError(t, err)

	res, err := f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TxCount)
	assert.Equal(t, 0, res.Grouping.Scanned)

	after, err := f.svc.StatementTransactions(ctx, rc, up.StatementID)
	require.NoError(t, err)
	require.Len(t, after, 2)
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Checksum, after[i].Checksum)
		assert.Equal(t, before[i].CounterpartyID, after[i].CounterpartyID)
	}

	cps, err := f.svc.ListCounterparties(ctx, rc)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, 2, cps[0].TxCount)
}

func TestUpload_DuplicatePerUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	first, err := f.svc.UploadText(ctx, rc, upiDebits, nil)
	require.NoError(t, err)

	again, err := f.svc.UploadText(ctx, rc, upiDebits, nil)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.StatementID, again.StatementID)

	other, err := f.svc.UploadText(ctx, domain.RequestContext{UserID: "user-2"}, upiDebits, nil)
	require.NoError(t, err)
	assert.False(t, other.Duplicate)
	assert.NotEqual(t, first.StatementID, other.StatementID)
}

func TestUpload_Validation(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.MaxUploadBytes = 16 })

	tests := []struct {
		name    string
		rc      domain.RequestContext
		data    []byte
		wantErr error
	}{
		{"missing user", domain.RequestContext{}, []byte("x"), domain.ErrMissingUser},
		{"empty payload", rc, nil, ErrEmptyPayload},
		{"over the limit", rc, []byte(strings.Repeat("x", 17)), ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Upload(context.Background(), tt.rc, UploadRequest{Filename: "s.txt", Data: tt.data})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpload_UnknownAccount(t *testing.T) {
	f := newFixture(t, nil)
	missing := "no-such-account"
	_, err := f.svc.UploadText(context.Background(), rc, upiDebits, &missing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestParse_PDFWithoutTextNeedsText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	up, err := f.svc.Upload(ctx, rc, UploadRequest{
		Filename: "statement.pdf",
		MimeType: "application/pdf",
		Data:     []byte("%PDF-1.4 binary"),
	})
	require.NoError(t, err)

	res, err := f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusNeedsText, res.Status)

	st, err := f.repo.GetStatement(ctx, rc.UserID, up.StatementID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusNeedsText, st.ParseStatus)
}

func TestParse_InProgressAndForce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	up, err := f.svc.UploadText(ctx, rc, upiDebits, nil)
	require.NoError(t, err)
	require.NoError(t, f.repo.MarkParsing(ctx, rc.UserID, up.StatementID, false))

	_, err = f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	assert.ErrorIs(t, err, store.ErrParseInProgress)

	res, err := f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusParsed, res.Status)
}

func TestParse_FailureMarksErrorAndRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	up, err := f.svc.UploadText(ctx, rc, upiDebits, nil)
	require.NoError(t, err)

	boom := errors.New(strings.Repeat("storage offline ", 100))
	f.files.GetFunc = func(context.Context, string) ([]byte, error) { return nil, boom }

	_, err = f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	assert.ErrorIs(t, err, boom)

	st, err := f.repo.GetStatement(ctx, rc.UserID, up.StatementID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusError, st.ParseStatus)
	require.NotNil(t, st.ErrorMessage)
	assert.LessOrEqual(t, len(*st.ErrorMessage), MaxErrorMessageLen)

	f.files.GetFunc = nil
	res, err := f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TxCount)
}

func TestParse_CancelledCallerStillRecordsFailure(t *testing.T) {
	f := newFixture(t, nil)

	up, err := f.svc.UploadText(context.Background(), rc, upiDebits, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.files.GetFunc = func(getCtx context.Context, ref string) ([]byte, error) {
		data, err := f.files.Store.Get(getCtx, ref)
		cancel()
		return data, err
	}

	_, err = f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	assert.ErrorIs(t, err, context.Canceled)

	status, err := f.svc.Status(context.Background(), rc, up.StatementID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusError, status.Statement.ParseStatus)
	require.NotEmpty(t, status.Logs)
	assert.Equal(t, "Parse failed", status.Logs[0].Message)

	f.files.GetFunc = nil
	res, err := f.svc.Parse(context.Background(), rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusParsed, res.Status)
	assert.Equal(t, 2, res.TxCount)
}

func TestParse_ZeroRowsIsParsed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	up, err := f.svc.UploadText(ctx, rc, "Statement of account\nNothing to see here\n", nil)
	require.NoError(t, err)

	res, err := f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusParsed, res.Status)
	assert.Zero(t, res.TxCount)
}

func TestParse_ExportsAfterSuccess(t *testing.T) {
	ctx := context.Background()
	var exported []*domain.TransactionRecord
	exportErr := errors.New("warehouse down")
	calls := 0
	exp := &mockExporter{ExportStatementFunc: func(_ context.Context, st *domain.Statement, txs []*domain.TransactionRecord, cps []*domain.Counterparty) (int, error) {
		calls++
		if calls > 1 {
			return 0, exportErr
		}
		exported = txs
		assert.Equal(t, domain.ParseStatusParsed, st.ParseStatus)
		assert.Len(t, cps, 1)
		return len(txs), nil
	}}
	f := newFixture(t, func(d *Deps) { d.Exporter = exp })

	up, err := f.svc.UploadText(ctx, rc, upiDebits, nil)
	require.NoError(t, err)

	res, err := f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Exported)
	assert.Len(t, exported, 2)

	res, err = f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err, "export failures do not fail the parse")
	assert.Zero(t, res.Exported)
}

func TestImportTabular(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.svc.ImportTabular(ctx, rc, UploadRequest{Filename: "export.csv", Data: []byte(bankCSV)})
	require.NoError(t, err)
	assert.Equal(t, domain.ParseStatusParsed, res.ParseStatus)

	txs, err := f.svc.StatementTransactions(ctx, rc, res.StatementID)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, domain.TxnTypeCredit, txs[1].Type)

	_, err = f.svc.ImportTabular(ctx, rc, UploadRequest{Filename: "notes.txt", Data: []byte(bankCSV)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPromoteAndMergeAlias(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.svc.ImportTabular(ctx, rc, UploadRequest{Filename: "export.csv", Data: []byte(bankCSV)})
	require.NoError(t, err)
	txs, err := f.svc.StatementTransactions(ctx, rc, res.StatementID)
	require.NoError(t, err)
	atm, grocery := txs[0], txs[2]

	cash, err := f.svc.Promote(ctx, rc, atm.ID, "  Cash   Spend ")
	require.NoError(t, err)
	assert.Equal(t, "Cash Spend", cash.CanonicalName)
	assert.Equal(t, 1, cash.TxCount)
	assert.Equal(t, int64(100000), cash.TotalDebitMinor)

	promoted, err := f.repo.GetTransaction(ctx, rc.UserID, atm.ID)
	require.NoError(t, err)
	assert.True(t, promoted.ManualFlag)
	require.NotNil(t, promoted.CounterpartyID)
	assert.Equal(t, cash.ID, *promoted.CounterpartyID)

	detail, err := f.svc.GetCounterparty(ctx, rc, cash.ID)
	require.NoError(t, err)
	require.Len(t, detail.Aliases, 1)
	assert.Equal(t, "atm wdl", detail.Aliases[0].Alias)
	assert.Equal(t, domain.AliasTypeNarration, detail.Aliases[0].AliasType)

	merged, err := f.svc.MergeAlias(ctx, rc, cash.ID, "Grocery")
	require.NoError(t, err)
	assert.Equal(t, 1, merged.Reassigned)
	assert.Equal(t, "grocery", merged.Alias)
	assert.Equal(t, 2, merged.Counterparty.TxCount)
	assert.Equal(t, int64(120000), merged.Counterparty.TotalDebitMinor)

	moved, err := f.repo.GetTransaction(ctx, rc.UserID, grocery.ID)
	require.NoError(t, err)
	assert.Equal(t, cash.ID, *moved.CounterpartyID)

	again, err := f.svc.MergeAlias(ctx, rc, cash.ID, "grocery")
	require.NoError(t, err)
	assert.Zero(t, again.Reassigned)

	_, err = f.svc.Promote(ctx, rc, atm.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.MergeAlias(ctx, domain.RequestContext{UserID: "user-2"}, cash.ID, "grocery")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMergeAlias_MovesRowsFromOtherCounterparty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	up, err := f.svc.UploadText(ctx, rc, upiDebits, nil)
	require.NoError(t, err)
	_, err = f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)

	cps, err := f.svc.ListCounterparties(ctx, rc)
	require.NoError(t, err)
	john := cps[0]

	target := &domain.Counterparty{UserID: rc.UserID, CanonicalName: "Johnathan Doe"}
	require.NoError(t, f.repo.InsertCounterparty(ctx, target))

	merged, err := f.svc.MergeAlias(ctx, rc, target.ID, "john doe")
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Reassigned)
	assert.Equal(t, 2, merged.Counterparty.TxCount)

	old, err := f.repo.GetCounterparty(ctx, rc.UserID, john.ID)
	require.NoError(t, err)
	assert.Zero(t, old.TxCount)

	found, err := f.repo.FindCounterpartyByAlias(ctx, rc.UserID, "john doe")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, target.ID, found.ID)
}

func TestDeleteStatement_RecomputesCounterparties(t *testing.T) {
	ctx := context.Background()
	var deleted []string
	exp := &mockExporter{DeleteStatementFunc: func(_ context.Context, userID, statementID string) error {
		deleted = append(deleted, statementID)
		return nil
	}}
	f := newFixture(t, func(d *Deps) { d.Exporter = exp })

	up, err := f.svc.UploadText(ctx, rc, upiDebits, nil)
	require.NoError(t, err)
	_, err = f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteStatement(ctx, rc, up.StatementID))
	assert.Equal(t, []string{up.StatementID}, deleted)

	cps, err := f.svc.ListCounterparties(ctx, rc)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Zero(t, cps[0].TxCount)
	assert.Zero(t, cps[0].TotalDebitMinor)

	_, err = f.svc.Status(ctx, rc, up.StatementID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatementOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	up, err := f.svc.UploadText(ctx, rc, upiDebits, nil)
	require.NoError(t, err)
	_, err = f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)

	require.NoError(t, f.svc.RenameStatement(ctx, rc, up.StatementID, "september.txt"))
	assert.ErrorIs(t, f.svc.RenameStatement(ctx, rc, up.StatementID, " "), ErrInvalidInput)

	list, err := f.svc.ListStatements(ctx, rc, store.StatementFilter{Query: "SEPT"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "september.txt", list[0].Filename)

	m, err := f.svc.StatementMetrics(ctx, rc, up.StatementID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TxCount)
	assert.Equal(t, 1, m.CounterpartyCount)
	assert.NotNil(t, m.ParsedAt)

	text, err := f.svc.StatementText(ctx, rc, up.StatementID)
	require.NoError(t, err)
	assert.Equal(t, upiDebits, text)

	report, err := f.svc.Refresh(ctx, rc, up.StatementID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Empty(t, report.Issues)
}

func TestAccountsAndKPIs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.AddAccount(ctx, rc, domain.Account{BankName: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	masked := " XXXX1234 "
	acct, err := f.svc.AddAccount(ctx, rc, domain.Account{BankName: "HDFC Bank", AccountNumberMasked: &masked})
	require.NoError(t, err)
	assert.Equal(t, "INR", acct.Currency)
	assert.Equal(t, "XXXX1234", *acct.AccountNumberMasked)

	accounts, err := f.svc.ListAccounts(ctx, rc)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	up, err := f.svc.UploadText(ctx, rc, upiDebits, &acct.ID)
	require.NoError(t, err)
	_, err = f.svc.Parse(ctx, rc, up.StatementID, ParseOptions{})
	require.NoError(t, err)

	txs, err := f.svc.StatementTransactions(ctx, rc, up.StatementID)
	require.NoError(t, err)
	require.NotNil(t, txs[0].AccountID)
	assert.Equal(t, acct.ID, *txs[0].AccountID)

	kpis, err := f.svc.DashboardKPIs(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, 1, kpis.StatementCount)
	assert.Equal(t, 2, kpis.TransactionCount)
	assert.Equal(t, 1, kpis.CounterpartyCount)
	require.NotNil(t, kpis.LatestBalanceMinor)
	assert.Equal(t, int64(120000), *kpis.LatestBalanceMinor)
	require.Len(t, kpis.TopCounterparties, 1)
}
