// Package engine runs provisioning workflows as asynchronous jobs. Each job
// executes a fixed step sequence against the external CLI and kubectl,
// classifies every step outcome, and accumulates an append-only step record
// in the job store for polling.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tenantplane/internal/config"
	"tenantplane/internal/observability"
	"tenantplane/internal/policy"
	"tenantplane/internal/quota"
	"tenantplane/internal/runner"
	"tenantplane/internal/store"
)

// Auditor records administrative actions. Satisfied by the sqldb store.
type Auditor interface {
	WriteAudit(ctx context.Context, actor, action, target string, details map[string]any) error
}

// Engine owns workflow execution. The job store remains the single source of
// truth for progress; the goroutine handle is not retained.
type Engine struct {
	cfg    *config.Config
	run    runner.Runner
	jobs   *store.JobStore
	policy policy.Store // nil when no policy backend is configured
	ledger *quota.Ledger
	audit  Auditor // optional
	log    *slog.Logger
	tracer trace.Tracer
}

// New wires an engine. policy may be nil (RBAC apply becomes best-effort
// advisory) and audit may be nil.
func New(cfg *config.Config, r runner.Runner, jobs *store.JobStore, pol policy.Store, ledger *quota.Ledger, audit Auditor, log *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		run:    r,
		jobs:   jobs,
		policy: pol,
		ledger: ledger,
		audit:  audit,
		log:    log,
		tracer: otel.Tracer("tenantplane/engine"),
	}
}

// Submit creates a queued job and schedules it without blocking. The job's
// started_at stays nil until the workflow goroutine picks it up.
func (e *Engine) Submit(kind store.WorkflowKind, params store.Params) *store.Job {
	if params.Namespace == "" {
		params.Namespace = params.Username
	}
	job := e.jobs.Create(kind, params)
	e.log.Info("job submitted",
		"job_id", job.ID,
		"kind", string(kind),
		"username", params.Username,
		"namespace", params.Namespace,
	)
	go e.execute(job.ID)
	return job
}

// Job returns a copy of the job record, or nil if unknown.
func (e *Engine) Job(id string) *store.Job {
	return e.jobs.Get(id)
}

func (e *Engine) execute(id string) {
	ctx, span := e.tracer.Start(context.Background(), "job.execute",
		trace.WithAttributes(attribute.String("job.id", id)))
	defer span.End()

	job := e.jobs.Get(id)
	if job == nil {
		return
	}
	log := e.log.With("job_id", job.ID, "kind", string(job.Kind))

	defer func() {
		// Internal errors must never crash the process or leave a job
		// stuck in running.
		if r := recover(); r != nil {
			now := time.Now().UTC()
			job.Steps = append(job.Steps, store.Step{
				Name:       "internal_error",
				ExitCode:   runner.ExitInternal,
				Stderr:     fmt.Sprintf("%v", r),
				FinishedAt: &now,
			})
			job.Status = store.JobStatusFailed
			job.Summary = fmt.Sprintf("unexpected internal error: %v", r)
			e.finalize(ctx, job, log)
			log.Error("job panicked", "panic", fmt.Sprintf("%v", r))
		}
	}()

	now := time.Now().UTC()
	job.Status = store.JobStatusRunning
	job.StartedAt = &now
	e.jobs.Put(job)

	switch job.Kind {
	case store.WorkflowBootstrap:
		e.runBootstrap(ctx, job, log)
	case store.WorkflowTeardown:
		e.runTeardown(ctx, job, log)
	default:
		job.Status = store.JobStatusFailed
		job.Summary = fmt.Sprintf("unknown workflow kind %q", job.Kind)
	}
	e.finalize(ctx, job, log)
}

// finalize always runs, on every success and failure path. It closes the
// record, registers tenant limits for successful bootstraps, and persists
// the final state.
func (e *Engine) finalize(ctx context.Context, job *store.Job, log *slog.Logger) {
	if job.FinishedAt == nil {
		now := time.Now().UTC()
		job.FinishedAt = &now
	}
	if !job.Status.Terminal() {
		job.Status = store.JobStatusFailed
	}

	if job.Kind == store.WorkflowBootstrap && job.Status == store.JobStatusSucceeded && job.Params.Quota != nil {
		q := job.Params.Quota
		err := e.ledger.UpsertLimits(ctx, quota.Limits{
			Namespace:        job.Params.Namespace,
			MaxClusters:      q.MaxClusters,
			AllowedEngines:   q.AllowedEngines,
			CPULimitCores:    q.CPULimitCores,
			MemoryLimitBytes: q.MemoryLimitBytes,
			MaxDBUsers:       q.MaxDBUsers,
		})
		if err != nil {
			// The namespace is provisioned; losing the limit record is
			// recoverable via PUT /tenants/{ns}/limits.
			log.Error("registering tenant limits failed", "error", err)
		}
	}

	if job.Summary == "" {
		job.Summary = summarize(job)
	}
	e.jobs.Put(job)
	e.writeAudit(ctx, "job_finished", job.Params.Namespace, map[string]any{
		"job_id": job.ID,
		"kind":   string(job.Kind),
		"status": string(job.Status),
	})
	log.Info("job finished", "status", string(job.Status), "summary", job.Summary)
}

// summarize builds the success summary, naming which idempotent outcomes
// occurred.
func summarize(job *store.Job) string {
	if job.Status != store.JobStatusSucceeded {
		return "job failed"
	}
	if job.Kind == store.WorkflowTeardown {
		return fmt.Sprintf("user %s and namespace %s removed; policy cleaned", job.Params.Username, job.Params.Namespace)
	}
	userWord, nsWord := "created", "created"
	for _, s := range job.Steps {
		switch m := s.Meta.(type) {
		case store.AccountMeta:
			if m.Existed {
				userWord = "existed"
			}
		case store.NamespaceMeta:
			if m.Existed {
				nsWord = "existed"
			}
		}
	}
	return fmt.Sprintf("user %s %s; namespace %s %s; quota applied; role bound",
		job.Params.Username, userWord, job.Params.Namespace, nsWord)
}

// recordStep appends the step and persists the job so pollers see progress
// after every stage.
func (e *Engine) recordStep(job *store.Job, step store.Step, log *slog.Logger) {
	job.Steps = append(job.Steps, step)
	e.jobs.Put(job)
	observability.RecordCommandRun(context.Background(), step.Name, step.ExitCode)
	log.Info("step finished",
		"step", step.Name,
		"exit_code", step.ExitCode,
		"command", step.Command,
	)
}

// fail marks the job failed with a summary. Timeouts get a distinct message
// so operators know to raise the step timeout rather than chase the command.
func (e *Engine) fail(job *store.Job, res runner.Result, summary string) {
	job.Status = store.JobStatusFailed
	if res.TimedOut() {
		summary += " (timed out)"
	}
	job.Summary = summary
	if !res.FinishedAt.IsZero() {
		t := res.FinishedAt
		job.FinishedAt = &t
	}
}

// stepFromResult builds the step record with the command masked; secrets
// never reach a Step.
func stepFromResult(name string, argv []string, res runner.Result) store.Step {
	step := store.Step{
		Name:     name,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
	if len(argv) > 0 {
		step.Command = runner.FormatCommand(runner.MaskArgs(argv))
	}
	if !res.StartedAt.IsZero() {
		t := res.StartedAt
		step.StartedAt = &t
	}
	if !res.FinishedAt.IsZero() {
		t := res.FinishedAt
		step.FinishedAt = &t
	}
	return step
}

// everestArgs builds the CLI argv with the shared global flags.
func (e *Engine) everestArgs(parts ...string) []string {
	argv := []string{e.cfg.CLIPath}
	if e.cfg.Kubeconfig != "" {
		argv = append(argv, "-k", e.cfg.Kubeconfig)
	}
	return append(argv, parts...)
}

// retryOnConflict runs fn, repeating it after a fixed backoff while the
// result classifies as a transient conflict, up to the configured cap. The
// backoff is constant rather than exponential: conflicts come from external
// locks with a known, short hold time.
func (e *Engine) retryOnConflict(fn func() (runner.Result, []string)) (runner.Result, []string, int) {
	conflicts := 0
	for {
		res, used := fn()
		if classify(res, nil) != outcomeTransient || conflicts >= e.cfg.ConflictRetries {
			return res, used, conflicts
		}
		conflicts++
		time.Sleep(e.cfg.ConflictBackoff)
	}
}

func (e *Engine) writeAudit(ctx context.Context, action, target string, details map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.WriteAudit(ctx, "engine", action, target, details); err != nil {
		e.log.Warn("audit write failed", "action", action, "error", err)
	}
}
