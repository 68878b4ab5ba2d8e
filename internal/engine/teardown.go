package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tenantplane/internal/policy"
	"tenantplane/internal/runner"
	"tenantplane/internal/store"
)

// runTeardown executes the teardown step sequence: remove_namespace,
// delete_account, remove_rbac_policy. Removing a target that is already gone
// counts as success; the meta records whether it was present.
func (e *Engine) runTeardown(ctx context.Context, job *store.Job, log *slog.Logger) {
	p := job.Params

	// remove_namespace
	spec := runner.Spec{Timeout: e.cfg.StepTimeout("add_namespace"), TTY: e.cfg.ForcePTY}
	removeVariants := [][]string{
		e.everestArgs("namespaces", "remove", p.Namespace),
		e.everestArgs("namespaces", "delete", p.Namespace),
	}
	res, used, conflicts := e.retryOnConflict(func() (runner.Result, []string) {
		return runner.TryVariants(ctx, e.run, removeVariants, spec)
	})
	step := stepFromResult("remove_namespace", used, res)
	nsMeta := store.NamespaceMeta{Existed: true, TransientConflicts: conflicts}
	if classify(res, notFoundPatterns) == outcomeIdempotent {
		step.ExitCode = 0
		nsMeta.Existed = false
	}
	step.Meta = nsMeta
	e.recordStep(job, step, log)
	if step.ExitCode != 0 {
		e.fail(job, res, fmt.Sprintf("failed to remove namespace %s", p.Namespace))
		return
	}

	// delete_account
	spec = runner.Spec{Timeout: e.cfg.StepTimeout("create_account"), TTY: e.cfg.ForcePTY}
	deleteArgv := e.everestArgs("accounts", "delete", "-u", p.Username)
	res, _, _ = e.retryOnConflict(func() (runner.Result, []string) {
		return e.run.Run(ctx, runner.Spec{
			Argv:    deleteArgv,
			Timeout: spec.Timeout,
			TTY:     spec.TTY,
		}), deleteArgv
	})
	step = stepFromResult("delete_account", deleteArgv, res)
	accountMeta := store.AccountMeta{Existed: true}
	if classify(res, notFoundPatterns) == outcomeIdempotent {
		step.ExitCode = 0
		accountMeta.Existed = false
	}
	step.Meta = accountMeta
	e.recordStep(job, step, log)
	if step.ExitCode != 0 {
		e.fail(job, res, fmt.Sprintf("failed to delete account %s", p.Username))
		return
	}

	// remove_rbac_policy. Removing rules for a principal that has none is a
	// no-op inside the policy store.
	step = e.removeTenantPolicy(ctx, p)
	e.recordStep(job, step, log)
	if step.ExitCode != 0 {
		e.fail(job, runner.Result{}, fmt.Sprintf("RBAC removal failed for %s", p.Namespace))
		return
	}

	job.Status = store.JobStatusSucceeded
}

func (e *Engine) removeTenantPolicy(ctx context.Context, p store.Params) store.Step {
	start := time.Now().UTC()
	step := store.Step{Name: "remove_rbac_policy", StartedAt: &start}

	if e.policy == nil {
		step.Stdout = "no policy backend configured"
		step.Meta = store.RBACMeta{Applied: false, BestEffort: true}
	} else {
		match := policy.TenantMatcher(p.Username, p.Namespace)
		var err error
		for attempt := 0; ; attempt++ {
			err = e.policy.RemoveAndValidate(ctx, match)
			if !errors.Is(err, policy.ErrLockTimeout) || attempt >= e.cfg.ConflictRetries {
				break
			}
			time.Sleep(e.cfg.ConflictBackoff)
		}
		if err != nil {
			step.ExitCode = 1
			step.Stderr = err.Error()
			step.Meta = store.RBACMeta{Applied: false}
		} else {
			step.Meta = store.RBACMeta{Applied: true}
		}
	}

	finished := time.Now().UTC()
	step.FinishedAt = &finished
	return step
}
