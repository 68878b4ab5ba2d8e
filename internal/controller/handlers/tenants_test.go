package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tenantplane/internal/quota"
	"tenantplane/pkg/api"
)

func putLimits(t *testing.T, h *Handlers, namespace, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/tenants/"+namespace+"/limits", strings.NewReader(body))
	req.SetPathValue("namespace", namespace)
	rec := httptest.NewRecorder()
	h.SetLimits(rec, req)
	return rec
}

func TestSetLimitsAndGetQuota(t *testing.T) {
	h, ms := newTestHandlers(t, newFakeEngine())

	rec := putLimits(t, h, "ns-a", `{"max_clusters":3,"allowed_engines":["postgresql"],"cpu_limit_cores":8}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if ms.limits["ns-a"].MaxClusters != 3 {
		t.Errorf("limits not stored: %+v", ms.limits["ns-a"])
	}

	req := httptest.NewRequest(http.MethodGet, "/tenants/ns-a/quota", nil)
	req.SetPathValue("namespace", "ns-a")
	getRec := httptest.NewRecorder()
	h.GetQuota(getRec, req)

	var resp api.QuotaResponse
	if err := json.Unmarshal(getRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Namespace != "ns-a" || resp.Limits.MaxClusters != 3 {
		t.Errorf("unexpected quota response: %+v", resp)
	}
}

func TestGetQuotaUnknownNamespace(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeEngine())

	req := httptest.NewRequest(http.MethodGet, "/tenants/ghost/quota", nil)
	req.SetPathValue("namespace", "ghost")
	rec := httptest.NewRecorder()
	h.GetQuota(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func registerCluster(t *testing.T, h *Handlers, namespace, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/tenants/"+namespace+"/clusters", strings.NewReader(body))
	req.SetPathValue("namespace", namespace)
	rec := httptest.NewRecorder()
	h.RegisterCluster(rec, req)
	return rec
}

func TestRegisterClusterEnforcesQuota(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeEngine())
	putLimits(t, h, "ns-a", `{"max_clusters":1}`)

	body := `{"engine":"postgresql","cpu_cores":1,"memory_bytes":1073741824}`
	if rec := registerCluster(t, h, "ns-a", body); rec.Code != http.StatusOK {
		t.Fatalf("first cluster: status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	rec := registerCluster(t, h, "ns-a", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("second cluster: status = %d, want 403", rec.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !strings.Contains(resp.Error, "max clusters") {
		t.Errorf("denial reason = %q, want max clusters mention", resp.Error)
	}
}

func TestRegisterClusterUnknownNamespaceDenied(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeEngine())

	rec := registerCluster(t, h, "ghost", `{"engine":"postgresql","cpu_cores":1,"memory_bytes":1}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no limits configured") {
		t.Errorf("body = %s, want not-configured reason", rec.Body.String())
	}
}

func TestReleaseClusterUnderflow(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeEngine())
	putLimits(t, h, "ns-a", `{"max_clusters":2}`)

	req := httptest.NewRequest(http.MethodDelete, "/tenants/ns-a/clusters",
		strings.NewReader(`{"cpu_cores":1,"memory_bytes":1}`))
	req.SetPathValue("namespace", "ns-a")
	rec := httptest.NewRecorder()
	h.ReleaseCluster(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 on underflow", rec.Code)
	}
}

func TestDBUserQuota(t *testing.T) {
	h, ms := newTestHandlers(t, newFakeEngine())
	putLimits(t, h, "ns-a", `{"max_db_users":1}`)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/tenants/ns-a/db-users", nil)
		req.SetPathValue("namespace", "ns-a")
		rec := httptest.NewRecorder()
		h.RegisterDBUser(rec, req)
		return rec
	}

	if rec := post(); rec.Code != http.StatusOK {
		t.Fatalf("first db user: status = %d, want 200", rec.Code)
	}
	if rec := post(); rec.Code != http.StatusForbidden {
		t.Fatalf("second db user: status = %d, want 403", rec.Code)
	}
	if ms.usage["ns-a"].DBUsersCount != 1 {
		t.Errorf("db user count = %d, want 1", ms.usage["ns-a"].DBUsersCount)
	}
}

func TestListTenants(t *testing.T) {
	h, ms := newTestHandlers(t, newFakeEngine())
	ms.limits["ns-a"] = quota.Limits{Namespace: "ns-a", MaxClusters: 2}
	ms.usage["ns-a"] = quota.Usage{ClustersCount: 1}

	req := httptest.NewRequest(http.MethodGet, "/tenants", nil)
	rec := httptest.NewRecorder()
	h.ListTenants(rec, req)

	var resp []api.TenantResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp) != 1 || resp[0].Namespace != "ns-a" || resp[0].Usage.ClustersCount != 1 {
		t.Errorf("unexpected tenants: %+v", resp)
	}
}
