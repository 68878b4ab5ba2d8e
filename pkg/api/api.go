// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the server.
package api

import "time"

// Operators selects which database-engine operators to enable in a namespace.
type Operators struct {
	MongoDB    bool `json:"mongodb"`
	PostgreSQL bool `json:"postgresql"`
	MySQL      bool `json:"mysql"`
}

// Resources is the per-namespace resource sizing applied as a ResourceQuota.
type Resources struct {
	CPUCores int `json:"cpu_cores,omitempty" validate:"omitempty,min=1,max=256"`
	RAMMb    int `json:"ram_mb,omitempty" validate:"omitempty,min=256,max=1048576"`
	DiskGb   int `json:"disk_gb,omitempty" validate:"omitempty,min=1,max=65536"`
}

// QuotaLimits are the tenant limits registered with the quota ledger.
// Zero or unset means unlimited for that dimension.
type QuotaLimits struct {
	MaxClusters      int      `json:"max_clusters,omitempty" validate:"omitempty,min=0"`
	MaxDBUsers       int      `json:"max_db_users,omitempty" validate:"omitempty,min=0"`
	AllowedEngines   []string `json:"allowed_engines,omitempty" validate:"omitempty,dive,oneof=postgresql mysql mongodb"`
	CPULimitCores    float64  `json:"cpu_limit_cores,omitempty" validate:"omitempty,min=0"`
	MemoryLimitBytes int64    `json:"memory_limit_bytes,omitempty" validate:"omitempty,min=0"`
}

// BootstrapRequest is the request body for POST /bootstrap/users.
type BootstrapRequest struct {
	Username      string       `json:"username" validate:"required,hostname_rfc1123,max=63"`
	Namespace     string       `json:"namespace,omitempty" validate:"omitempty,hostname_rfc1123,max=63"`
	Operators     Operators    `json:"operators"`
	TakeOwnership bool         `json:"take_ownership,omitempty"`
	Resources     Resources    `json:"resources"`
	Quota         *QuotaLimits `json:"quota,omitempty"`
	Password      string       `json:"password,omitempty" validate:"omitempty,min=8"`
}

// TeardownRequest is the request body for POST /teardown/users.
type TeardownRequest struct {
	Username  string `json:"username" validate:"required,hostname_rfc1123,max=63"`
	Namespace string `json:"namespace,omitempty" validate:"omitempty,hostname_rfc1123,max=63"`
}

// SubmitResponse is returned by job submission endpoints with 202 Accepted.
type SubmitResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

// JobStatusResponse is the response body for GET /jobs/{id}.
type JobStatusResponse struct {
	JobID      string     `json:"job_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	ResultURL  string     `json:"result_url"`
}

// StepView is a single workflow step in a job result.
type StepView struct {
	Name       string     `json:"name"`
	Command    string     `json:"command,omitempty"`
	ExitCode   int        `json:"exit_code"`
	Stdout     string     `json:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Meta       any        `json:"meta,omitempty"`
}

// JobResultResponse is the response body for GET /jobs/{id}/result.
type JobResultResponse struct {
	JobID    string     `json:"job_id"`
	Status   string     `json:"status"`
	Summary  string     `json:"summary,omitempty"`
	Inputs   any        `json:"inputs"`
	Steps    []StepView `json:"steps"`
	Password string     `json:"password,omitempty"`
}

// SetLimitsRequest is the request body for PUT /tenants/{namespace}/limits.
type SetLimitsRequest struct {
	QuotaLimits
}

// QuotaUsage is the current usage counters for a tenant namespace.
type QuotaUsage struct {
	ClustersCount int     `json:"clusters_count"`
	CPUUsed       float64 `json:"cpu_used"`
	MemoryUsed    int64   `json:"memory_used"`
	DBUsersCount  int     `json:"db_users_count"`
}

// QuotaResponse is the response body for GET /tenants/{namespace}/quota.
type QuotaResponse struct {
	Namespace string      `json:"namespace"`
	Limits    QuotaLimits `json:"limits"`
	Usage     QuotaUsage  `json:"usage"`
}

// TenantResponse is one entry in GET /tenants.
type TenantResponse struct {
	Namespace string      `json:"namespace"`
	Limits    QuotaLimits `json:"limits"`
	Usage     QuotaUsage  `json:"usage"`
}

// RegisterClusterRequest is the request body for POST /tenants/{namespace}/clusters.
type RegisterClusterRequest struct {
	Engine      string  `json:"engine" validate:"required,oneof=postgresql mysql mongodb"`
	CPUCores    float64 `json:"cpu_cores" validate:"required,gt=0"`
	MemoryBytes int64   `json:"memory_bytes" validate:"required,gt=0"`
}

// ReleaseClusterRequest is the request body for DELETE /tenants/{namespace}/clusters.
type ReleaseClusterRequest struct {
	CPUCores    float64 `json:"cpu_cores" validate:"required,gt=0"`
	MemoryBytes int64   `json:"memory_bytes" validate:"required,gt=0"`
}

// Account represents a provisioned CLI account in GET /accounts responses.
type Account struct {
	User         string   `json:"user"`
	Capabilities []string `json:"capabilities,omitempty"`
	Enabled      bool     `json:"enabled"`
}

// ListAccountsResponse is the response body for GET /accounts.
type ListAccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// AccountRequest names an account for enable/disable operations.
type AccountRequest struct {
	Username string `json:"username" validate:"required,hostname_rfc1123,max=63"`
}

// SetPasswordRequest is the request body for POST /accounts/set-password.
type SetPasswordRequest struct {
	Username string `json:"username" validate:"required,hostname_rfc1123,max=63"`
	Password string `json:"password" validate:"required,min=8"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
