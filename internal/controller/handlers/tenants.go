package handlers

import (
	"errors"
	"net/http"

	"tenantplane/internal/observability"
	"tenantplane/internal/quota"
	"tenantplane/pkg/api"
)

// SetLimits handles PUT /tenants/{namespace}/limits.
func (h *Handlers) SetLimits(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	var req api.SetLimitsRequest
	if !h.decode(w, r, &req) {
		return
	}

	limits := quota.Limits{
		Namespace:        namespace,
		MaxClusters:      req.MaxClusters,
		AllowedEngines:   req.AllowedEngines,
		CPULimitCores:    req.CPULimitCores,
		MemoryLimitBytes: req.MemoryLimitBytes,
		MaxDBUsers:       req.MaxDBUsers,
	}
	if err := h.ledger.UpsertLimits(r.Context(), limits); err != nil {
		h.log.Error("upsert limits failed", "namespace", namespace, "error", err)
		h.httpError(w, "Failed to store limits", http.StatusInternalServerError)
		return
	}
	h.respondQuota(w, r, namespace)
}

// GetQuota handles GET /tenants/{namespace}/quota.
func (h *Handlers) GetQuota(w http.ResponseWriter, r *http.Request) {
	h.respondQuota(w, r, r.PathValue("namespace"))
}

// ListTenants handles GET /tenants.
func (h *Handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.ledger.ListTenants(r.Context())
	if err != nil {
		h.log.Error("list tenants failed", "error", err)
		h.httpError(w, "Failed to list tenants", http.StatusInternalServerError)
		return
	}
	out := make([]api.TenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, api.TenantResponse{
			Namespace: t.Limits.Namespace,
			Limits:    limitsToAPI(t.Limits),
			Usage:     usageToAPI(t.Usage),
		})
	}
	h.respondJson(w, http.StatusOK, out)
}

// RegisterCluster handles POST /tenants/{namespace}/clusters. The quota
// check runs first; a denial carries the reason and causes no usage change.
func (h *Handlers) RegisterCluster(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	var req api.RegisterClusterRequest
	if !h.decode(w, r, &req) {
		return
	}

	allowed, reason, err := h.ledger.CheckClusterCreate(r.Context(), namespace, req.Engine, req.CPUCores, req.MemoryBytes)
	if err != nil {
		h.log.Error("quota check failed", "namespace", namespace, "error", err)
		h.httpError(w, "Quota check failed", http.StatusInternalServerError)
		return
	}
	if !allowed {
		observability.RecordQuotaDenial(r.Context(), namespace, reason)
		h.httpError(w, reason, http.StatusForbidden)
		return
	}
	if err := h.ledger.ApplyClusterDelta(r.Context(), namespace, quota.OpCreate, req.CPUCores, req.MemoryBytes); err != nil {
		h.log.Error("apply cluster delta failed", "namespace", namespace, "error", err)
		h.httpError(w, "Failed to record cluster", http.StatusInternalServerError)
		return
	}
	h.respondQuota(w, r, namespace)
}

// ReleaseCluster handles DELETE /tenants/{namespace}/clusters.
func (h *Handlers) ReleaseCluster(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	var req api.ReleaseClusterRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.ledger.ApplyClusterDelta(r.Context(), namespace, quota.OpDelete, req.CPUCores, req.MemoryBytes)
	if errors.Is(err, quota.ErrUnderflow) {
		h.httpError(w, "Usage counter underflow", http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error("apply cluster delta failed", "namespace", namespace, "error", err)
		h.httpError(w, "Failed to release cluster", http.StatusInternalServerError)
		return
	}
	h.respondQuota(w, r, namespace)
}

// RegisterDBUser handles POST /tenants/{namespace}/db-users.
func (h *Handlers) RegisterDBUser(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")

	allowed, reason, err := h.ledger.CheckDBUserCreate(r.Context(), namespace)
	if err != nil {
		h.log.Error("quota check failed", "namespace", namespace, "error", err)
		h.httpError(w, "Quota check failed", http.StatusInternalServerError)
		return
	}
	if !allowed {
		observability.RecordQuotaDenial(r.Context(), namespace, reason)
		h.httpError(w, reason, http.StatusForbidden)
		return
	}
	if err := h.ledger.ApplyDBUserDelta(r.Context(), namespace, quota.OpCreate); err != nil {
		h.log.Error("apply db user delta failed", "namespace", namespace, "error", err)
		h.httpError(w, "Failed to record database user", http.StatusInternalServerError)
		return
	}
	h.respondQuota(w, r, namespace)
}

// ReleaseDBUser handles DELETE /tenants/{namespace}/db-users.
func (h *Handlers) ReleaseDBUser(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")

	err := h.ledger.ApplyDBUserDelta(r.Context(), namespace, quota.OpDelete)
	if errors.Is(err, quota.ErrUnderflow) {
		h.httpError(w, "Usage counter underflow", http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error("apply db user delta failed", "namespace", namespace, "error", err)
		h.httpError(w, "Failed to release database user", http.StatusInternalServerError)
		return
	}
	h.respondQuota(w, r, namespace)
}

func (h *Handlers) respondQuota(w http.ResponseWriter, r *http.Request, namespace string) {
	tenant, err := h.ledger.Tenant(r.Context(), namespace)
	if err != nil {
		h.log.Error("load tenant failed", "namespace", namespace, "error", err)
		h.httpError(w, "Failed to load tenant", http.StatusInternalServerError)
		return
	}
	if tenant == nil {
		h.httpError(w, "No limits configured for namespace", http.StatusNotFound)
		return
	}
	h.respondJson(w, http.StatusOK, api.QuotaResponse{
		Namespace: namespace,
		Limits:    limitsToAPI(tenant.Limits),
		Usage:     usageToAPI(tenant.Usage),
	})
}

func limitsToAPI(l quota.Limits) api.QuotaLimits {
	return api.QuotaLimits{
		MaxClusters:      l.MaxClusters,
		MaxDBUsers:       l.MaxDBUsers,
		AllowedEngines:   l.AllowedEngines,
		CPULimitCores:    l.CPULimitCores,
		MemoryLimitBytes: l.MemoryLimitBytes,
	}
}

func usageToAPI(u quota.Usage) api.QuotaUsage {
	return api.QuotaUsage{
		ClustersCount: u.ClustersCount,
		CPUUsed:       u.CPUUsed,
		MemoryUsed:    u.MemoryUsed,
		DBUsersCount:  u.DBUsersCount,
	}
}
