package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tenantplane/pkg/api"
)

func TestListAccountsHandler(t *testing.T) {
	eng := newFakeEngine()
	eng.accounts = []api.Account{
		{User: "admin", Capabilities: []string{"login", "admin"}, Enabled: true},
		{User: "alice", Enabled: true},
	}
	h, _ := newTestHandlers(t, eng)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	rec := httptest.NewRecorder()
	h.ListAccounts(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp api.ListAccountsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Accounts) != 2 || resp.Accounts[1].User != "alice" {
		t.Errorf("unexpected accounts: %+v", resp.Accounts)
	}
}

func TestListAccountsCLIFailure(t *testing.T) {
	eng := newFakeEngine()
	eng.err = errors.New("accounts list failed (exit 1): connection refused")
	h, _ := newTestHandlers(t, eng)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	rec := httptest.NewRecorder()
	h.ListAccounts(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestEnableDisableAccount(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeEngine())

	req := httptest.NewRequest(http.MethodPost, "/accounts/disable", strings.NewReader(`{"username":"alice"}`))
	rec := httptest.NewRecorder()
	h.DisableAccount(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"disabled"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSetPasswordValidation(t *testing.T) {
	eng := newFakeEngine()
	h, _ := newTestHandlers(t, eng)

	req := httptest.NewRequest(http.MethodPost, "/accounts/set-password",
		strings.NewReader(`{"username":"alice","password":"short"}`))
	rec := httptest.NewRecorder()
	h.SetPassword(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a short password", rec.Code)
	}
}
