/**
 * @description
 * HTTP handlers for the credit ledger and the webhook integration: balance
 * reads and corrections, credit transfers, the unlimited toggle, transaction
 * history, integration settings and the lifecycle delivery audit log.
 */
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/painelpro/reseller-service/internal/domain"
)

// HandleGetOwnBalance returns the caller's own balance.
// GET /api/v1/balance
func (h *Handlers) HandleGetOwnBalance(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	balance, err := h.service.GetBalance(r.Context(), callerID, callerID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// HandleGetBalance returns the target account's balance.
// GET /api/v1/accounts/{accountID}/balance
func (h *Handlers) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	targetID, err := pathAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	balance, err := h.service.GetBalance(r.Context(), callerID, targetID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// HandleCorrectBalance overwrites the target's balance with an
// expected-prior compare-and-swap. Operator only.
// PUT /api/v1/accounts/{accountID}/balance
func (h *Handlers) HandleCorrectBalance(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	targetID, err := pathAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var req domain.CorrectBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err))
		return
	}

	balance, err := h.service.CorrectBalance(r.Context(), callerID, targetID, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// HandleTransferCredit moves credit between the caller and a target account.
// POST /api/v1/credits/transfer
func (h *Handlers) HandleTransferCredit(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if !h.allowRate(w, r, "transfer_credit", callerID, h.transferLimit) {
		return
	}

	var req domain.TransferCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err))
		return
	}

	result, err := h.service.TransferCredit(r.Context(), callerID, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleSetUnlimited toggles an account's unlimited-credit flag. Operator
// only.
// POST /api/v1/credits/unlimited
func (h *Handlers) HandleSetUnlimited(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req domain.SetUnlimitedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err))
		return
	}

	balance, err := h.service.SetUnlimited(r.Context(), callerID, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// HandleListTransactions returns an account's transaction history, newest
// first.
// GET /api/v1/accounts/{accountID}/transactions
func (h *Handlers) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	targetID, err := pathAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	opts := domain.TransactionListOptions{
		Limit:  parseQueryInt(r, "limit", 0),
		Offset: parseQueryInt(r, "offset", 0),
	}
	transactions, err := h.service.ListTransactions(r.Context(), callerID, targetID, opts)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

// HandleGetIntegration returns the webhook integration settings. Operator
// only. The secret never appears in the response.
// GET /api/v1/integration
func (h *Handlers) HandleGetIntegration(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	settings, err := h.service.GetIntegrationSettings(r.Context(), callerID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// HandleUpdateIntegration stores new webhook integration settings. Operator
// only.
// PUT /api/v1/integration
func (h *Handlers) HandleUpdateIntegration(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req domain.IntegrationSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err))
		return
	}

	settings, err := h.service.UpdateIntegrationSettings(r.Context(), callerID, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// HandleListLifecycleEvents pages through the webhook delivery audit log.
// Operator only.
// GET /api/v1/lifecycle-events
func (h *Handlers) HandleListLifecycleEvents(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	opts := domain.LifecycleEventListOptions{
		EventType: r.URL.Query().Get("event_type"),
		Limit:     parseQueryInt(r, "limit", 0),
		Offset:    parseQueryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		accountID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account_id")
			return
		}
		opts.AccountID = &accountID
	}

	events, err := h.service.ListLifecycleEvents(r.Context(), callerID, opts)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
