// Package main is the entry point for the tenantplane API server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"tenantplane/internal/config"
	"tenantplane/internal/controller"
	"tenantplane/internal/controller/handlers"
	"tenantplane/internal/engine"
	"tenantplane/internal/logger"
	"tenantplane/internal/observability"
	"tenantplane/internal/policy"
	"tenantplane/internal/quota"
	"tenantplane/internal/runner"
	"tenantplane/internal/store"
	"tenantplane/internal/store/sqldb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.APIKey == "" {
		log.Fatal("API_KEY must be set")
	}

	logg := logger.New(os.Getenv("LOG_LEVEL"))

	if _, err := exec.LookPath(cfg.CLIPath); err != nil {
		// Jobs would fail on their first step anyway; surface it at startup.
		logg.Warn("provisioning CLI not found on PATH", "path", cfg.CLIPath)
	}

	ctx := context.Background()

	// Quota ledger persistence: SQLite by default, Postgres when configured.
	db, err := sqldb.Open(ctx, cfg.DatabaseURL, cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	ledger := quota.NewLedger(db)

	// Tracing is optional; enabled only when a collector address is set.
	if cfg.OTELEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, "tenantplane", cfg.OTELEndpoint)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logg.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logg.Warn("metrics shutdown failed", "error", err)
		}
	}()

	jobs := store.NewJobStore(cfg.JobRetention)
	if err := observability.RegisterJobGauges(jobs); err != nil {
		logg.Warn("registering job gauges failed", "error", err)
	}

	execRunner := runner.New(cfg.ExecConcurrency)

	var policyStore policy.Store
	switch cfg.PolicyBackend {
	case "file":
		opts := []policy.FileOption{}
		if cfg.PolicyValidate {
			opts = append(opts, policy.WithValidator(cliValidator(cfg, execRunner)))
		}
		policyStore = policy.NewFileStore(cfg.PolicyPath, logg, opts...)
	case "configmap":
		var validate policy.ValidateFunc
		if cfg.PolicyValidate {
			validate = cliValidator(cfg, execRunner)
		}
		policyStore = policy.NewConfigMapStore(execRunner, cfg.KubectlPath,
			cfg.PolicyConfigMapName, cfg.PolicyConfigMapNamespace, cfg.DefaultTimeout, validate)
	default:
		logg.Warn("no policy backend configured; RBAC steps are advisory")
	}

	eng := engine.New(cfg, execRunner, jobs, policyStore, ledger, db, logg)

	stopJanitor := make(chan struct{})
	go jobs.Janitor(stopJanitor, time.Hour)
	defer close(stopJanitor)

	h := handlers.New(eng, ledger, readiness(cfg, db, execRunner), logg)
	srv := controller.New(cfg, h, metricsHandler, logg)

	go func() {
		logg.Info("tenantplane server starting", "port", cfg.HTTPPort, "policy_backend", cfg.PolicyBackend)
		if err := srv.Run(ctx); err != nil {
			logg.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	logg.Info("server exited")
}

// readiness reports ready only when both dependencies answer: the ledger
// database and the provisioning CLI itself.
func readiness(cfg *config.Config, db *sqldb.Store, r runner.Runner) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.DB().PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		res := r.Run(ctx, runner.Spec{Argv: []string{cfg.CLIPath, "version"}, Timeout: cfg.DefaultTimeout})
		if res.ExitCode != 0 {
			return fmt.Errorf("cli version probe: exit %d: %s", res.ExitCode, res.Stderr)
		}
		return nil
	}
}

// cliValidator validates a policy document with the provisioning CLI's own
// validator subcommand.
func cliValidator(cfg *config.Config, r runner.Runner) policy.ValidateFunc {
	return func(ctx context.Context, path string) error {
		argv := []string{cfg.CLIPath}
		if cfg.Kubeconfig != "" {
			argv = append(argv, "-k", cfg.Kubeconfig)
		}
		argv = append(argv, "settings", "rbac", "validate", "--policy-file", path)
		res := r.Run(ctx, runner.Spec{Argv: argv, Timeout: cfg.DefaultTimeout})
		if res.ExitCode != 0 {
			return &policyValidationError{output: res.Stderr + res.Stdout}
		}
		return nil
	}
}

type policyValidationError struct {
	output string
}

func (e *policyValidationError) Error() string {
	return "policy validation failed: " + e.output
}
