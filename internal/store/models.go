// Package store contains the job records and the in-memory job store.
package store

import "time"

// JobStatus represents the lifecycle state of a provisioning job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// WorkflowKind selects the fixed step sequence a job executes.
type WorkflowKind string

const (
	WorkflowBootstrap WorkflowKind = "bootstrap"
	WorkflowTeardown  WorkflowKind = "teardown"
)

// Operators selects database-engine operators for a namespace.
type Operators struct {
	MongoDB    bool `json:"mongodb"`
	PostgreSQL bool `json:"postgresql"`
	MySQL      bool `json:"mysql"`
}

// Resources is the namespace resource sizing.
type Resources struct {
	CPUCores int `json:"cpu_cores"`
	RAMMb    int `json:"ram_mb"`
	DiskGb   int `json:"disk_gb"`
}

// QuotaLimits are optional tenant limits registered with the quota ledger
// during bootstrap.
type QuotaLimits struct {
	MaxClusters      int      `json:"max_clusters"`
	MaxDBUsers       int      `json:"max_db_users"`
	AllowedEngines   []string `json:"allowed_engines"`
	CPULimitCores    float64  `json:"cpu_limit_cores"`
	MemoryLimitBytes int64    `json:"memory_limit_bytes"`
}

// Params are the validated inputs a workflow runs with. Password is held for
// live execution only and is masked in every serialized view.
type Params struct {
	Username      string       `json:"username"`
	Namespace     string       `json:"namespace"`
	Operators     Operators    `json:"operators"`
	TakeOwnership bool         `json:"take_ownership"`
	Resources     Resources    `json:"resources"`
	Quota         *QuotaLimits `json:"quota,omitempty"`
	Password      string       `json:"-"`
}

// InputsView is the serialized form of Params for job results: identical but
// with the password masked when one was supplied.
type InputsView struct {
	Username      string       `json:"username"`
	Namespace     string       `json:"namespace"`
	Operators     Operators    `json:"operators"`
	TakeOwnership bool         `json:"take_ownership"`
	Resources     Resources    `json:"resources"`
	Quota         *QuotaLimits `json:"quota,omitempty"`
	Password      string       `json:"password,omitempty"`
}

// View returns the maskable serialization of p.
func (p Params) View() InputsView {
	v := InputsView{
		Username:      p.Username,
		Namespace:     p.Namespace,
		Operators:     p.Operators,
		TakeOwnership: p.TakeOwnership,
		Resources:     p.Resources,
		Quota:         p.Quota,
	}
	if p.Password != "" {
		v.Password = "***"
	}
	return v
}

// StepMeta is the tagged, step-specific metadata attached to a step record.
// Each step kind carries only the fields relevant to it.
type StepMeta interface{ stepMeta() }

// AccountMeta is attached to create/delete account steps.
type AccountMeta struct {
	Existed bool `json:"account_existed"`
}

// NamespaceMeta is attached to namespace add/remove steps.
type NamespaceMeta struct {
	Existed            bool `json:"namespace_existed"`
	UsedLegacyOperator bool `json:"used_legacy_operator_flag,omitempty"`
	TransientConflicts int  `json:"transient_conflicts,omitempty"`
}

// QuotaMeta is attached to the resource-quota apply step.
type QuotaMeta struct {
	ManifestPreview string `json:"manifest_preview,omitempty"`
}

// RBACMeta is attached to policy mutation steps.
type RBACMeta struct {
	Applied    bool `json:"rbac_applied"`
	BestEffort bool `json:"best_effort,omitempty"`
}

func (AccountMeta) stepMeta()   {}
func (NamespaceMeta) stepMeta() {}
func (QuotaMeta) stepMeta()     {}
func (RBACMeta) stepMeta()      {}

// Step is an append-only record of one executed workflow stage. Command is
// always the masked form; secrets never reach a Step.
type Step struct {
	Name       string     `json:"name"`
	Command    string     `json:"command,omitempty"`
	ExitCode   int        `json:"exit_code"`
	Stdout     string     `json:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Meta       StepMeta   `json:"meta,omitempty"`
}

// Job is a single workflow run. It is owned by the JobStore; only the
// workflow executing it mutates it, and it is immutable once terminal.
type Job struct {
	ID         string       `json:"job_id"`
	Kind       WorkflowKind `json:"kind"`
	Status     JobStatus    `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Params     Params       `json:"-"`
	Steps      []Step       `json:"steps"`
	Summary    string       `json:"summary,omitempty"`

	// GeneratedPassword is surfaced only in the job result, never logged.
	GeneratedPassword string `json:"-"`
}
