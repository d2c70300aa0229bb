package handlers

import (
	"net/http"

	"github.com/dvloznov/statement-ledger/internal/api/middleware"
	"github.com/rs/zerolog"
)

// CounterpartiesHandler handles counterparty endpoints.
type CounterpartiesHandler struct {
	ledger Ledger
	log    zerolog.Logger
}

// NewCounterpartiesHandler creates a new counterparties handler.
func NewCounterpartiesHandler(ledger Ledger, log zerolog.Logger) *CounterpartiesHandler {
	return &CounterpartiesHandler{ledger: ledger, log: log}
}

// ListCounterparties handles GET /api/counterparties
func (h *CounterpartiesHandler) ListCounterparties(w http.ResponseWriter, r *http.Request) {
	cps, err := h.ledger.ListCounterparties(r.Context(), middleware.RequestContext(r))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list counterparties")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"counterparties": cps,
		"count":          len(cps),
	})
}

// GetCounterparty handles GET /api/counterparties/{id}
func (h *CounterpartiesHandler) GetCounterparty(w http.ResponseWriter, r *http.Request, counterpartyID string) {
	detail, err := h.ledger.GetCounterparty(r.Context(), middleware.RequestContext(r), counterpartyID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load counterparty")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, detail)
}

// RunGrouping handles POST /api/counterparties/group
func (h *CounterpartiesHandler) RunGrouping(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.RunGrouping(r.Context(), middleware.RequestContext(r))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to group transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// Promote handles POST /api/counterparties/promote
func (h *CounterpartiesHandler) Promote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TransactionID string `json:"transaction_id"`
		CanonicalName string `json:"canonical_name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.TransactionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}

	cp, err := h.ledger.Promote(r.Context(), middleware.RequestContext(r), body.TransactionID, body.CanonicalName)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to promote transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, cp)
}

// MergeAlias handles POST /api/counterparties/{id}/aliases
func (h *CounterpartiesHandler) MergeAlias(w http.ResponseWriter, r *http.Request, counterpartyID string) {
	var body struct {
		Alias string `json:"alias"`
	}
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.ledger.MergeAlias(r.Context(), middleware.RequestContext(r), counterpartyID, body.Alias)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to merge alias")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
