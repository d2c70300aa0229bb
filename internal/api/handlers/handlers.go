// Package handlers exposes the statement ledger over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dvloznov/statement-ledger/internal/api/middleware"
	"github.com/dvloznov/statement-ledger/internal/consistency"
	"github.com/dvloznov/statement-ledger/internal/csvimport"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/grouping"
	"github.com/dvloznov/statement-ledger/internal/jobs"
	"github.com/dvloznov/statement-ledger/internal/pipeline"
	"github.com/dvloznov/statement-ledger/internal/store"
	"github.com/rs/zerolog"
)

// Ledger is the service surface the handlers call.
type Ledger interface {
	Upload(ctx context.Context, rc domain.RequestContext, req pipeline.UploadRequest) (*pipeline.UploadResult, error)
	UploadText(ctx context.Context, rc domain.RequestContext, text string, accountID *string) (*pipeline.UploadResult, error)
	ImportTabular(ctx context.Context, rc domain.RequestContext, req pipeline.UploadRequest) (*pipeline.UploadResult, error)
	Parse(ctx context.Context, rc domain.RequestContext, statementID string, opts pipeline.ParseOptions) (*pipeline.ParseResult, error)
	Status(ctx context.Context, rc domain.RequestContext, statementID string) (*pipeline.StatusReport, error)

	ListStatements(ctx context.Context, rc domain.RequestContext, filter store.StatementFilter) ([]*domain.Statement, error)
	RenameStatement(ctx context.Context, rc domain.RequestContext, statementID, filename string) error
	DeleteStatement(ctx context.Context, rc domain.RequestContext, statementID string) error
	StatementMetrics(ctx context.Context, rc domain.RequestContext, statementID string) (*domain.StatementMetrics, error)
	StatementTransactions(ctx context.Context, rc domain.RequestContext, statementID string) ([]*domain.TransactionRecord, error)
	StatementText(ctx context.Context, rc domain.RequestContext, statementID string) (string, error)
	Refresh(ctx context.Context, rc domain.RequestContext, statementID string, apply bool) (*consistency.Report, error)

	ListCounterparties(ctx context.Context, rc domain.RequestContext) ([]*domain.Counterparty, error)
	GetCounterparty(ctx context.Context, rc domain.RequestContext, counterpartyID string) (*pipeline.CounterpartyDetail, error)
	RunGrouping(ctx context.Context, rc domain.RequestContext) (*grouping.Report, error)
	Promote(ctx context.Context, rc domain.RequestContext, transactionID, canonicalName string) (*domain.Counterparty, error)
	MergeAlias(ctx context.Context, rc domain.RequestContext, counterpartyID, alias string) (*pipeline.MergeResult, error)

	AddAccount(ctx context.Context, rc domain.RequestContext, a domain.Account) (*domain.Account, error)
	ListAccounts(ctx context.Context, rc domain.RequestContext) ([]*domain.Account, error)
	DashboardKPIs(ctx context.Context, rc domain.RequestContext) (*domain.DashboardKPIs, error)
}

// writeServiceError maps service errors to a status and a fixed message.
// Unrecognised errors are logged and reported as a generic 500 with
// fallback as the message.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error, fallback string) {
	status, message := http.StatusInternalServerError, fallback
	switch {
	case errors.Is(err, store.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrMissingUser):
		status, message = http.StatusUnauthorized, "Missing user"
	case errors.Is(err, store.ErrParseInProgress):
		status, message = http.StatusConflict, "Parse already in progress"
	case errors.Is(err, jobs.ErrDuplicateJob):
		status, message = http.StatusConflict, "Statement already has an active parse job"
	case errors.Is(err, pipeline.ErrEmptyPayload):
		status, message = http.StatusBadRequest, "Empty payload"
	case errors.Is(err, pipeline.ErrPayloadTooLarge):
		status, message = http.StatusRequestEntityTooLarge, "Payload too large"
	case errors.Is(err, csvimport.ErrMissingRequiredColumns):
		status, message = http.StatusBadRequest, "File is missing required columns"
	case errors.Is(err, pipeline.ErrInvalidInput):
		status, message = http.StatusBadRequest, "Invalid input"
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg(fallback)
	} else {
		log.Warn().Err(err).Int("status", status).Msg(fallback)
	}
	middleware.WriteError(w, status, message)
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
