package handlers

import (
	"fmt"
	"net/http"

	"tenantplane/internal/store"
	"tenantplane/pkg/api"
)

// BootstrapUser handles POST /bootstrap/users. It creates a queued bootstrap
// job and returns 202 before any step executes.
func (h *Handlers) BootstrapUser(w http.ResponseWriter, r *http.Request) {
	var req api.BootstrapRequest
	if !h.decode(w, r, &req) {
		return
	}

	job := h.engine.Submit(store.WorkflowBootstrap, store.Params{
		Username:  req.Username,
		Namespace: req.Namespace,
		Operators: store.Operators{
			MongoDB:    req.Operators.MongoDB,
			PostgreSQL: req.Operators.PostgreSQL,
			MySQL:      req.Operators.MySQL,
		},
		TakeOwnership: req.TakeOwnership,
		Resources: store.Resources{
			CPUCores: req.Resources.CPUCores,
			RAMMb:    req.Resources.RAMMb,
			DiskGb:   req.Resources.DiskGb,
		},
		Quota:    quotaLimitsFromAPI(req.Quota),
		Password: req.Password,
	})

	h.respondJson(w, http.StatusAccepted, api.SubmitResponse{
		JobID:     job.ID,
		StatusURL: fmt.Sprintf("/jobs/%s", job.ID),
	})
}

// TeardownUser handles POST /teardown/users.
func (h *Handlers) TeardownUser(w http.ResponseWriter, r *http.Request) {
	var req api.TeardownRequest
	if !h.decode(w, r, &req) {
		return
	}

	job := h.engine.Submit(store.WorkflowTeardown, store.Params{
		Username:  req.Username,
		Namespace: req.Namespace,
	})

	h.respondJson(w, http.StatusAccepted, api.SubmitResponse{
		JobID:     job.ID,
		StatusURL: fmt.Sprintf("/jobs/%s", job.ID),
	})
}

// JobStatus handles GET /jobs/{id}.
func (h *Handlers) JobStatus(w http.ResponseWriter, r *http.Request) {
	job := h.engine.Job(r.PathValue("id"))
	if job == nil {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, api.JobStatusResponse{
		JobID:      job.ID,
		Status:     string(job.Status),
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		Summary:    job.Summary,
		ResultURL:  fmt.Sprintf("/jobs/%s/result", job.ID),
	})
}

// JobResult handles GET /jobs/{id}/result. Returns 409 while the job is
// still queued or running.
func (h *Handlers) JobResult(w http.ResponseWriter, r *http.Request) {
	job := h.engine.Job(r.PathValue("id"))
	if job == nil {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	if !job.Status.Terminal() {
		h.httpError(w, "Job not finished", http.StatusConflict)
		return
	}

	steps := make([]api.StepView, 0, len(job.Steps))
	for _, s := range job.Steps {
		steps = append(steps, api.StepView{
			Name:       s.Name,
			Command:    s.Command,
			ExitCode:   s.ExitCode,
			Stdout:     s.Stdout,
			Stderr:     s.Stderr,
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
			Meta:       s.Meta,
		})
	}

	h.respondJson(w, http.StatusOK, api.JobResultResponse{
		JobID:    job.ID,
		Status:   string(job.Status),
		Summary:  job.Summary,
		Inputs:   job.Params.View(),
		Steps:    steps,
		Password: job.GeneratedPassword,
	})
}

func quotaLimitsFromAPI(q *api.QuotaLimits) *store.QuotaLimits {
	if q == nil {
		return nil
	}
	return &store.QuotaLimits{
		MaxClusters:      q.MaxClusters,
		MaxDBUsers:       q.MaxDBUsers,
		AllowedEngines:   q.AllowedEngines,
		CPULimitCores:    q.CPULimitCores,
		MemoryLimitBytes: q.MemoryLimitBytes,
	}
}
