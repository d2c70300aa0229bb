// Package api assembles the HTTP surface of the ledger.
package api

import (
	"net/http"

	"github.com/dvloznov/statement-ledger/internal/api/handlers"
	"github.com/dvloznov/statement-ledger/internal/api/middleware"
	"github.com/dvloznov/statement-ledger/internal/jobs"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Ledger         handlers.Ledger
	Publisher      jobs.Publisher
	JobStore       jobs.JobStore
	MaxUploadBytes int64
	Log            zerolog.Logger
}

// NewRouter returns the full handler chain: routes wrapped in request ids,
// logging, CORS, auth and panic recovery.
func NewRouter(d Deps) http.Handler {
	statements := handlers.NewStatementsHandler(d.Ledger, d.Publisher, d.MaxUploadBytes, d.Log)
	counterparties := handlers.NewCounterpartiesHandler(d.Ledger, d.Log)
	accounts := handlers.NewAccountsHandler(d.Ledger, d.Log)
	jobsHandler := handlers.NewJobsHandler(d.JobStore, d.Log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/statements", statements.ListStatements)
	mux.HandleFunc("POST /api/statements", statements.UploadStatement)
	mux.HandleFunc("POST /api/statements/text", statements.PasteText)
	mux.HandleFunc("POST /api/statements/import", statements.ImportStatement)
	mux.HandleFunc("GET /api/statements/{id}", withID(statements.GetStatement))
	mux.HandleFunc("PATCH /api/statements/{id}", withID(statements.RenameStatement))
	mux.HandleFunc("DELETE /api/statements/{id}", withID(statements.DeleteStatement))
	mux.HandleFunc("POST /api/statements/{id}/parse", withID(statements.ParseStatement))
	mux.HandleFunc("POST /api/statements/{id}/refresh", withID(statements.RefreshStatement))
	mux.HandleFunc("GET /api/statements/{id}/metrics", withID(statements.GetMetrics))
	mux.HandleFunc("GET /api/statements/{id}/transactions", withID(statements.GetTransactions))
	mux.HandleFunc("GET /api/statements/{id}/text", withID(statements.GetText))

	mux.HandleFunc("GET /api/counterparties", counterparties.ListCounterparties)
	mux.HandleFunc("POST /api/counterparties/group", counterparties.RunGrouping)
	mux.HandleFunc("POST /api/counterparties/promote", counterparties.Promote)
	mux.HandleFunc("GET /api/counterparties/{id}", withID(counterparties.GetCounterparty))
	mux.HandleFunc("POST /api/counterparties/{id}/aliases", withID(counterparties.MergeAlias))

	mux.HandleFunc("GET /api/accounts", accounts.ListAccounts)
	mux.HandleFunc("POST /api/accounts", accounts.CreateAccount)
	mux.HandleFunc("GET /api/dashboard", accounts.Dashboard)

	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", withID(jobsHandler.GetJob))

	var handler http.Handler = mux
	handler = middleware.Auth(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Logger(d.Log)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(d.Log)(handler)
	return handler
}

func withID(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h(w, r, r.PathValue("id"))
	}
}
