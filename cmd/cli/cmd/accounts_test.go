package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"tenantplane/pkg/api"
)

func TestAccountsListCommand(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		resp := api.ListAccountsResponse{Accounts: []api.Account{
			{User: "admin", Capabilities: []string{"login"}, Enabled: true},
			{User: "alice", Enabled: false},
		}}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("api_key", "test-key")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"accounts", "list"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "admin") || !strings.Contains(output, "alice") {
		t.Errorf("expected both accounts in output, got: %s", output)
	}
	if !strings.Contains(output, "login") {
		t.Errorf("expected capabilities in output, got: %s", output)
	}
}

func TestAccountsDisableCommand(t *testing.T) {
	resetViper()

	var gotPath string
	var gotBody api.AccountRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"disabled","user":"alice"}`))
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("api_key", "test-key")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"accounts", "disable", "alice"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/accounts/disable" {
		t.Errorf("path = %q, want /accounts/disable", gotPath)
	}
	if gotBody.Username != "alice" {
		t.Errorf("username = %q, want alice", gotBody.Username)
	}
	if !strings.Contains(stdout.String(), "disabled") {
		t.Errorf("expected confirmation in output, got: %s", stdout.String())
	}
}

func TestLimitsSetCommand(t *testing.T) {
	resetViper()

	var gotBody api.SetLimitsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}
		if r.URL.Path != "/tenants/ns-alice/limits" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)

		resp := api.QuotaResponse{
			Namespace: "ns-alice",
			Limits:    gotBody.QuotaLimits,
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("api_key", "test-key")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"limits", "set", "ns-alice", "--max-clusters", "5", "--engines", "postgresql", "--memory-limit-mb", "4096"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotBody.MaxClusters != 5 {
		t.Errorf("max clusters = %d, want 5", gotBody.MaxClusters)
	}
	if gotBody.MemoryLimitBytes != 4096*1024*1024 {
		t.Errorf("memory limit = %d, want 4Gi in bytes", gotBody.MemoryLimitBytes)
	}
	if !strings.Contains(stdout.String(), "ns-alice") {
		t.Errorf("expected namespace in output, got: %s", stdout.String())
	}
}
