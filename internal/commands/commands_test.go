package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upiDebits = "01/09/25 UPI-JOHN DOE-DOEJOHN@BANK 500.00 - 1500.00\n" +
	"02/09/25 UPI-JOHN DOE-DOEJOHN@BANK 300.00 - 1200.00\n"

type harness struct {
	dir    string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, env := range []string{"LEDGER_DB_PATH", "LEDGER_LOG_LEVEL", "GCS_BUCKET", "GEMINI_API_KEY", "BIGQUERY_PROJECT"} {
		t.Setenv(env, "")
	}
	dir := t.TempDir()
	cfg := "database:\n  path: " + filepath.Join(dir, "ledger.db") + "\n" +
		"upload:\n  local_dir: " + filepath.Join(dir, "files") + "\n" +
		"log:\n  level: error\n"
	path := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &harness{dir: dir, config: path}
}

// run executes ledgerctl with args and returns stdout.
func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestPasteThenInspect(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, upiDebits, "paste")
	require.NoError(t, err)
	res := decode[pipeline.ParseResult](t, out)
	assert.Equal(t, domain.ParseStatusParsed, res.Status)
	assert.Equal(t, 2, res.TxCount)

	out, err = h.run(t, "", "counterparties")
	require.NoError(t, err)
	cps := decode[[]domain.Counterparty](t, out)
	require.Len(t, cps, 1)
	assert.Equal(t, "John Doe", cps[0].CanonicalName)

	out, err = h.run(t, "", "statements")
	require.NoError(t, err)
	require.Len(t, decode[[]domain.Statement](t, out), 1)

	out, err = h.run(t, "", "reparse", res.StatementID)
	require.NoError(t, err)
	assert.Equal(t, 2, decode[pipeline.ParseResult](t, out).TxCount)

	out, err = h.run(t, "", "refresh", res.StatementID)
	require.NoError(t, err)
	assert.Contains(t, out, `"checked": 2`)

	_, err = h.run(t, "", "--user", "someone-else", "status", res.StatementID)
	assert.Error(t, err)
}

func TestIngestCSV(t *testing.T) {
	h := newHarness(t)
	file := filepath.Join(h.dir, "export.csv")
	require.NoError(t, os.WriteFile(file, []byte("Date,Narration,Debit,Credit,Balance\n"+
		"02/09/25,ATM WDL,1000.00,,24000.00\n"), 0o600))

	out, err := h.run(t, "", "ingest", file)
	require.NoError(t, err)
	up := decode[pipeline.UploadResult](t, out)
	assert.Equal(t, domain.ParseStatusParsed, up.ParseStatus)

	out, err = h.run(t, "", "ingest", file)
	require.NoError(t, err)
	assert.True(t, decode[pipeline.UploadResult](t, out).Duplicate)

	out, err = h.run(t, "", "transactions", up.StatementID)
	require.NoError(t, err)
	txs := decode[[]domain.TransactionRecord](t, out)
	require.Len(t, txs, 1)

	out, err = h.run(t, "", "promote", txs[0].ID, "Cash")
	require.NoError(t, err)
	assert.Equal(t, "Cash", decode[domain.Counterparty](t, out).CanonicalName)
}

func TestAccounts(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "accounts", "add")
	assert.Error(t, err, "--bank is required")

	out, err := h.run(t, "", "accounts", "add", "--bank", "HDFC", "--currency", "inr", "--ifsc", "HDFC0001")
	require.NoError(t, err)
	account := decode[domain.Account](t, out)
	assert.Equal(t, "INR", account.Currency)
	require.NotNil(t, account.IFSC)
	assert.Nil(t, account.Branch)

	out, err = h.run(t, "", "accounts")
	require.NoError(t, err)
	assert.Len(t, decode[[]domain.Account](t, out), 1)

	out, err = h.run(t, "", "kpis")
	require.NoError(t, err)
	assert.Equal(t, 0, decode[domain.DashboardKPIs](t, out).StatementCount)
}

func TestSyncNotion_RequiresCredentials(t *testing.T) {
	t.Setenv("NOTION_TOKEN", "")
	t.Setenv("NOTION_DATABASE_ID", "")
	h := newHarness(t)

	_, err := h.run(t, "", "sync-notion", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Notion token")
}

func TestMigrate(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")

	_, err = h.run(t, "", "migrate", "--bigquery")
	assert.Error(t, err)
}
