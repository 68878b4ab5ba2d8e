package handlers

import (
	"net/http"

	"tenantplane/pkg/api"
)

// ListAccounts handles GET /accounts.
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.engine.ListAccounts(r.Context())
	if err != nil {
		h.log.Error("list accounts failed", "error", err)
		h.httpError(w, "Failed to list accounts", http.StatusBadGateway)
		return
	}
	if accounts == nil {
		accounts = []api.Account{}
	}
	h.respondJson(w, http.StatusOK, api.ListAccountsResponse{Accounts: accounts})
}

// EnableAccount handles POST /accounts/enable.
func (h *Handlers) EnableAccount(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// DisableAccount handles POST /accounts/disable.
func (h *Handlers) DisableAccount(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handlers) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	var req api.AccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.SetAccountEnabled(r.Context(), req.Username, enabled); err != nil {
		h.log.Error("account toggle failed", "username", req.Username, "enabled", enabled, "error", err)
		h.httpError(w, err.Error(), http.StatusBadGateway)
		return
	}
	status := "disabled"
	if enabled {
		status = "enabled"
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": status, "user": req.Username})
}

// SetPassword handles POST /accounts/set-password.
func (h *Handlers) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req api.SetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.SetAccountPassword(r.Context(), req.Username, req.Password); err != nil {
		h.log.Error("set password failed", "username", req.Username, "error", err)
		h.httpError(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "password_updated", "user": req.Username})
}
