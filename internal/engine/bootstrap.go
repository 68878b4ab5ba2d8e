package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tenantplane/internal/policy"
	"tenantplane/internal/runner"
	"tenantplane/internal/store"
)

const generatedPasswordLength = 20

// runBootstrap executes the bootstrap step sequence: create_account,
// add_namespace, apply_resource_quota, apply_rbac_policy. A hard failure
// stops the sequence; remaining steps are skipped, not attempted.
func (e *Engine) runBootstrap(ctx context.Context, job *store.Job, log *slog.Logger) {
	p := job.Params

	password := p.Password
	if password == "" {
		password = e.cfg.DefaultAccountPassword
	}
	if password == "" {
		password = GeneratePassword(generatedPasswordLength)
		job.GeneratedPassword = password
	}

	// create_account. Long flags first, short flags for older CLI versions.
	spec := runner.Spec{Timeout: e.cfg.StepTimeout("create_account"), TTY: e.cfg.ForcePTY}
	createVariants := [][]string{
		e.everestArgs("accounts", "create", "--username", p.Username, "--password", password),
		e.everestArgs("accounts", "create", "-u", p.Username, "-p", password),
	}
	res, used, _ := e.retryOnConflict(func() (runner.Result, []string) {
		return runner.TryVariants(ctx, e.run, createVariants, spec)
	})
	step := stepFromResult("create_account", used, res)
	accountMeta := store.AccountMeta{}
	if classify(res, alreadyExistsPatterns) == outcomeIdempotent {
		step.ExitCode = 0
		accountMeta.Existed = true
	}
	step.Meta = accountMeta
	e.recordStep(job, step, log)
	if step.ExitCode != 0 {
		e.fail(job, res, fmt.Sprintf("failed to create account for %s", p.Username))
		return
	}

	// add_namespace. The operator flag surface changes across CLI versions;
	// the modern --operator.mysql form is tried before the legacy
	// --operator.xtradb-cluster form.
	spec = runner.Spec{Timeout: e.cfg.StepTimeout("add_namespace"), TTY: e.cfg.ForcePTY}
	nsVariants := e.namespaceAddVariants(p)
	res, used, conflicts := e.retryOnConflict(func() (runner.Result, []string) {
		return runner.TryVariants(ctx, e.run, nsVariants, spec)
	})
	step = stepFromResult("add_namespace", used, res)
	nsMeta := store.NamespaceMeta{
		UsedLegacyOperator: usesLegacyOperator(used),
		TransientConflicts: conflicts,
	}
	if classify(res, alreadyExistsPatterns) == outcomeIdempotent {
		step.ExitCode = 0
		nsMeta.Existed = true
	}
	step.Meta = nsMeta
	e.recordStep(job, step, log)
	if step.ExitCode != 0 {
		e.fail(job, res, fmt.Sprintf("failed to add namespace %s", p.Namespace))
		return
	}

	// apply_resource_quota. kubectl apply is idempotent on its own; only
	// transient API-server conflicts are retried.
	manifest := BuildQuotaManifest(p.Namespace, p.Resources)
	kubectlArgv := []string{e.cfg.KubectlPath, "apply", "-n", p.Namespace, "-f", "-"}
	quotaSpec := runner.Spec{
		Argv:    kubectlArgv,
		Stdin:   manifest,
		Timeout: e.cfg.StepTimeout("apply_resource_quota"),
	}
	res, _, _ = e.retryOnConflict(func() (runner.Result, []string) {
		return e.run.Run(ctx, quotaSpec), kubectlArgv
	})
	step = stepFromResult("apply_resource_quota", kubectlArgv, res)
	step.Meta = store.QuotaMeta{ManifestPreview: manifest}
	e.recordStep(job, step, log)
	if step.ExitCode != 0 {
		e.fail(job, res, fmt.Sprintf("failed to apply quota and limits to %s", p.Namespace))
		return
	}

	// apply_rbac_policy. Advisory when no backend is configured: recorded,
	// never fatal. With a backend, a failed apply fails the job.
	step = e.applyTenantPolicy(ctx, p)
	e.recordStep(job, step, log)
	if step.ExitCode != 0 {
		e.fail(job, runner.Result{}, fmt.Sprintf("RBAC apply failed for %s", p.Namespace))
		return
	}

	job.Status = store.JobStatusSucceeded
}

func (e *Engine) applyTenantPolicy(ctx context.Context, p store.Params) store.Step {
	start := time.Now().UTC()
	step := store.Step{Name: "apply_rbac_policy", StartedAt: &start}

	if e.policy == nil {
		step.Stdout = "no policy backend configured"
		step.Meta = store.RBACMeta{Applied: false, BestEffort: true}
	} else {
		rules := policy.TenantRules(p.Username, p.Namespace)
		var err error
		for attempt := 0; ; attempt++ {
			err = e.policy.AppendAndValidate(ctx, rules)
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

func (e *Engine) namespaceAddVariants(p store.Params) [][]string {
	var ownership []string
	if p.TakeOwnership {
		ownership = []string{"--take-ownership"}
	}
	build := func(mysqlFlag string) []string {
		parts := []string{"namespaces", "add", p.Namespace,
			fmt.Sprintf("--operator.mongodb=%t", p.Operators.MongoDB),
			fmt.Sprintf("--operator.postgresql=%t", p.Operators.PostgreSQL),
			fmt.Sprintf("--operator.%s=%t", mysqlFlag, p.Operators.MySQL),
		}
		parts = append(parts, ownership...)
		return e.everestArgs(parts...)
	}
	return [][]string{
		build("mysql"),
		build("xtradb-cluster"),
	}
}

func usesLegacyOperator(argv []string) bool {
	for _, a := range argv {
		if strings.HasPrefix(a, "--operator.xtradb-cluster") {
			return true
		}
	}
	return false
}
