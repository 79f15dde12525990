/**
 * @description
 * This file contains the HTTP handlers for account provisioning and
 * management: create, list, get, update, delete, renew and creator
 * reassignment. Handlers decode and validate the request, enforce the
 * per-caller rate limit on mutating routes, call the service layer and map
 * its sentinel errors onto HTTP status codes.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/go-playground/validator/v10: Request payload validation.
 */
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/painelpro/reseller-service/internal/app"
	"github.com/painelpro/reseller-service/internal/domain"
	"github.com/painelpro/reseller-service/internal/store"
)

// Handlers bundles the service layer with the request-scoped helpers every
// endpoint needs.
type Handlers struct {
	service       *app.Service
	limiter       *app.RedisRateLimiter
	logger        *slog.Logger
	validate      *validator.Validate
	createLimit   int
	transferLimit int
}

// NewHandlers creates the handler set. The limiter may be nil, in which case
// no rate limiting is applied.
func NewHandlers(service *app.Service, limiter *app.RedisRateLimiter, logger *slog.Logger, createLimit, transferLimit int) *Handlers {
	return &Handlers{
		service:       service,
		limiter:       limiter,
		logger:        logger,
		validate:      validator.New(),
		createLimit:   createLimit,
		transferLimit: transferLimit,
	}
}

// HandleCreateAccount provisions a new account under the caller.
// POST /api/v1/accounts
func (h *Handlers) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if !h.allowRate(w, r, "create_account", callerID, h.createLimit) {
		return
	}

	var req domain.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err))
		return
	}

	account, err := h.service.CreateAccount(r.Context(), callerID, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// HandleListAccounts lists accounts visible to the caller with optional
// role, status and search filters.
// GET /api/v1/accounts
func (h *Handlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	opts := domain.AccountListOptions{
		Role:   r.URL.Query().Get("role"),
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Limit:  parseQueryInt(r, "limit", 0),
		Offset: parseQueryInt(r, "offset", 0),
	}
	if creator := r.URL.Query().Get("creator_id"); creator != "" {
		creatorID, err := strconv.ParseInt(creator, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid creator_id")
			return
		}
		opts.CreatorID = &creatorID
	}

	accounts, err := h.service.ListAccounts(r.Context(), callerID, opts)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// HandleGetAccount returns one account with display decoration.
// GET /api/v1/accounts/{accountID}
func (h *Handlers) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
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

	view, err := h.service.GetAccount(r.Context(), callerID, targetID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleUpdateAccount applies a partial update to an account.
// PATCH /api/v1/accounts/{accountID}
func (h *Handlers) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
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

	var req domain.UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err))
		return
	}

	account, err := h.service.UpdateAccount(r.Context(), callerID, targetID, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleDeleteAccount removes an account.
// DELETE /api/v1/accounts/{accountID}
func (h *Handlers) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteAccount(r.Context(), callerID, targetID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRenewAccount extends an account's credit expiry by the standard
// validity window, charging the caller.
// POST /api/v1/accounts/{accountID}/renew
func (h *Handlers) HandleRenewAccount(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if !h.allowRate(w, r, "renew_account", callerID, h.createLimit) {
		return
	}
	targetID, err := pathAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	account, err := h.service.RenewAccount(r.Context(), callerID, targetID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleReassignCreator moves an account under a different creator.
// POST /api/v1/accounts/{accountID}/reassign
func (h *Handlers) HandleReassignCreator(w http.ResponseWriter, r *http.Request) {
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

	var req domain.ReassignCreatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err))
		return
	}

	if err := h.service.ReassignCreator(r.Context(), callerID, targetID, req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reassigned"})
}

// handleServiceError maps service and store sentinel errors onto HTTP
// status codes. Anything unrecognized is a 500 with a generic body.
func (h *Handlers) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrBalanceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrInsufficientCredit):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, store.ErrUsernameTaken),
		errors.Is(err, store.ErrBalanceConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrInvalidStatus),
		errors.Is(err, app.ErrInvalidTransferAmount),
		errors.Is(err, app.ErrSelfTransfer),
		errors.Is(err, app.ErrClientCreditTarget),
		errors.Is(err, app.ErrOperatorHasNoBalance),
		errors.Is(err, app.ErrOperatorLifecycle),
		errors.Is(err, app.ErrSelfDeletion),
		errors.Is(err, app.ErrIneligibleCreator),
		errors.Is(err, app.ErrInvalidWebhookEndpoint):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("unhandled service error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// allowRate consumes one rate-limit token for the caller. Limiter failures
// allow the request through with a warning: availability over strictness.
func (h *Handlers) allowRate(w http.ResponseWriter, r *http.Request, scope string, callerID int64, limit int) bool {
	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), scope, strconv.FormatInt(callerID, 10), time.Minute)
	if err != nil {
		h.logger.Warn("rate limit check failed; allowing request", "scope", scope, "error", err)
		return true
	}
	if limit > 0 && count > int64(limit) {
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func pathAccountID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id")
	}
	return id, nil
}

func parseQueryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return fmt.Sprintf("invalid field %s: failed on '%s' validation", first.Field(), first.Tag())
	}
	return "invalid request payload"
}

// writeJSON writes the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
