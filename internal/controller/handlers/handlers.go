// Package handlers contains HTTP handlers for the provisioning API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"tenantplane/internal/quota"
	"tenantplane/internal/store"
	"tenantplane/pkg/api"
)

// Provisioner is the engine surface the handlers depend on.
type Provisioner interface {
	Submit(kind store.WorkflowKind, params store.Params) *store.Job
	Job(id string) *store.Job
	ListAccounts(ctx context.Context) ([]api.Account, error)
	SetAccountEnabled(ctx context.Context, username string, enabled bool) error
	SetAccountPassword(ctx context.Context, username, password string) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	engine   Provisioner
	ledger   *quota.Ledger
	validate *validator.Validate
	ready    func(ctx context.Context) error
	log      *slog.Logger
}

// New creates a Handlers instance. ready may be nil (readiness always ok).
func New(engine Provisioner, ledger *quota.Ledger, ready func(ctx context.Context) error, log *slog.Logger) *Handlers {
	return &Handlers{
		engine:   engine,
		ledger:   ledger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		ready:    ready,
		log:      log,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// decode parses and validates the request body. Validation failures are
// rejected before any side effect.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondJson(w, http.StatusBadRequest, api.ErrorResponse{
			Error:   "Validation failed",
			Code:    "400",
			Details: err.Error(),
		})
		return false
	}
	return true
}
