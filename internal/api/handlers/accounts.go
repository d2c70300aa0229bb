package handlers

import (
	"net/http"

	"github.com/dvloznov/statement-ledger/internal/api/middleware"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/rs/zerolog"
)

// AccountsHandler handles account and dashboard endpoints.
type AccountsHandler struct {
	ledger Ledger
	log    zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(ledger Ledger, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{ledger: ledger, log: log}
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccounts(r.Context(), middleware.RequestContext(r))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list accounts")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// CreateAccount handles POST /api/accounts
func (h *AccountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BankName            string  `json:"bank_name"`
		AccountNumberMasked *string `json:"account_number_masked"`
		IFSC                *string `json:"ifsc"`
		Branch              *string `json:"branch"`
		Currency            string  `json:"currency"`
	}
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.ledger.AddAccount(r.Context(), middleware.RequestContext(r), domain.Account{
		BankName:            body.BankName,
		AccountNumberMasked: body.AccountNumberMasked,
		IFSC:                body.IFSC,
		Branch:              body.Branch,
		Currency:            body.Currency,
	})
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create account")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, account)
}

// Dashboard handles GET /api/dashboard
func (h *AccountsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.ledger.DashboardKPIs(r.Context(), middleware.RequestContext(r))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load dashboard")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, kpis)
}
