// Package config handles environment variable loading for ports, paths, timeouts, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
// It is constructed once in main and passed to every component constructor.
type Config struct {
	// HTTP server port
	HTTPPort int

	// API key required on every request (X-Api-Key header)
	APIKey string

	// Path to the provisioning CLI binary
	CLIPath string

	// Path to kubectl
	KubectlPath string

	// Optional kubeconfig passed to the provisioning CLI with -k
	Kubeconfig string

	// Policy store backend: "file", "configmap" or "" (RBAC apply disabled)
	PolicyBackend string

	// Path of the RBAC policy file (file backend)
	PolicyPath string

	// Run the external policy validator after each mutation
	PolicyValidate bool

	// ConfigMap holding the live policy (configmap backend)
	PolicyConfigMapName      string
	PolicyConfigMapNamespace string

	// SQLite path for the quota ledger; ignored when DatabaseURL is set
	DBPath string

	// Optional Postgres connection string for the quota ledger
	DatabaseURL string

	// Subprocess timeouts
	DefaultTimeout        time.Duration
	TimeoutCreateAccount  time.Duration
	TimeoutNamespaceAdd   time.Duration
	TimeoutApplyResources time.Duration

	// Maximum concurrent subprocesses
	ExecConcurrency int

	// Emulate a terminal for CLI subcommands that refuse to run without one
	ForcePTY bool

	// Transient-conflict retry policy (fixed backoff, not exponential)
	ConflictRetries int
	ConflictBackoff time.Duration

	// Per-key request rate limiting; 0 disables
	RateLimitPerMin int
	RateLimitBurst  int

	// How long finished jobs are kept for polling before eviction
	JobRetention time.Duration

	// Fallback account password when the request carries none;
	// if empty too, a password is generated per job
	DefaultAccountPassword string

	// OTLP collector address; tracing disabled when empty
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:                 8080,
		APIKey:                   os.Getenv("API_KEY"),
		CLIPath:                  envOr("EVERESTCTL_PATH", "everestctl"),
		KubectlPath:              envOr("KUBECTL_PATH", "kubectl"),
		Kubeconfig:               os.Getenv("KUBECONFIG"),
		PolicyBackend:            envOr("RBAC_POLICY_BACKEND", "file"),
		PolicyPath:               envOr("RBAC_POLICY_PATH", "/data/policy.csv"),
		PolicyValidate:           envBool("RBAC_VALIDATE_ON_CHANGE", true),
		PolicyConfigMapName:      envOr("RBAC_CONFIGMAP_NAME", "everest-rbac"),
		PolicyConfigMapNamespace: envOr("RBAC_CONFIGMAP_NAMESPACE", "everest-system"),
		DBPath:                   envOr("DB_PATH", "/data/tenantplane.db"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		DefaultTimeout:           60 * time.Second,
		ExecConcurrency:          16,
		ForcePTY:                 envBool("CLI_FORCE_PTY", true),
		ConflictRetries:          3,
		ConflictBackoff:          2 * time.Second,
		RateLimitPerMin:          120,
		RateLimitBurst:           150,
		JobRetention:             24 * time.Hour,
		DefaultAccountPassword:   os.Getenv("DEFAULT_ACCOUNT_PASSWORD"),
		OTELEndpoint:             os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.HTTPPort = p
	}

	var err error
	if cfg.DefaultTimeout, err = envSeconds("SUBPROCESS_TIMEOUT", cfg.DefaultTimeout); err != nil {
		return nil, err
	}
	// Per-step timeouts fall back to the shared default when unset.
	if cfg.TimeoutCreateAccount, err = envSeconds("TIMEOUT_CREATE_ACCOUNT", cfg.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.TimeoutNamespaceAdd, err = envSeconds("TIMEOUT_NAMESPACE_ADD", cfg.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.TimeoutApplyResources, err = envSeconds("TIMEOUT_APPLY_RESOURCES", cfg.DefaultTimeout); err != nil {
		return nil, err
	}

	if v := os.Getenv("EXEC_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid EXEC_CONCURRENCY: %q", v)
		}
		cfg.ExecConcurrency = n
	}

	if v := os.Getenv("CONFLICT_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid CONFLICT_RETRIES: %q", v)
		}
		cfg.ConflictRetries = n
	}
	if v := os.Getenv("CONFLICT_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CONFLICT_BACKOFF: %w", err)
		}
		cfg.ConflictBackoff = d
	}

	if v := os.Getenv("RATE_LIMIT_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MIN: %q", v)
		}
		cfg.RateLimitPerMin = n
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %q", v)
		}
		cfg.RateLimitBurst = n
	}

	if v := os.Getenv("JOB_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid JOB_RETENTION: %w", err)
		}
		cfg.JobRetention = d
	}

	switch cfg.PolicyBackend {
	case "file", "configmap", "":
	default:
		return nil, fmt.Errorf("invalid RBAC_POLICY_BACKEND: %q", cfg.PolicyBackend)
	}

	return cfg, nil
}

// StepTimeout returns the configured timeout for a named workflow step,
// falling back to the shared default.
func (c *Config) StepTimeout(step string) time.Duration {
	switch step {
	case "create_account":
		return c.TimeoutCreateAccount
	case "add_namespace":
		return c.TimeoutNamespaceAdd
	case "apply_resource_quota":
		return c.TimeoutApplyResources
	default:
		return c.DefaultTimeout
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes":
		return true
	case "0", "false", "FALSE", "False", "no":
		return false
	default:
		return def
	}
}

func envSeconds(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * time.Second, nil
}
