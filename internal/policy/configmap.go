package policy

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"tenantplane/internal/runner"
)

// configMapTemplate is deliberately built by string templating: the schema is
// fixed and fully controlled here, so a YAML library buys nothing.
const configMapTemplate = `apiVersion: v1
kind: ConfigMap
metadata:
  name: %s
  namespace: %s
data:
  enabled: "true"
  policy.csv: |
%s`

// ConfigMapStore keeps the live policy in a single well-known ConfigMap,
// mutated through kubectl. Validation runs against a temp file before the
// apply, so a rejected document is never pushed to the cluster. All writers
// go through this store, so mu is the serialization point for the whole
// read-modify-write; without it two concurrent jobs would interleave their
// get/apply pairs and the last apply would drop the other's rules.
type ConfigMapStore struct {
	mu        sync.Mutex
	runner    runner.Runner
	kubectl   string
	name      string
	namespace string
	timeout   time.Duration
	validate  ValidateFunc
}

// NewConfigMapStore creates a kubectl-backed policy store.
func NewConfigMapStore(r runner.Runner, kubectl, name, namespace string, timeout time.Duration, validate ValidateFunc) *ConfigMapStore {
	return &ConfigMapStore{
		runner:    r,
		kubectl:   kubectl,
		name:      name,
		namespace: namespace,
		timeout:   timeout,
		validate:  validate,
	}
}

// Read fetches and parses the live policy. A missing ConfigMap reads as an
// empty document.
func (s *ConfigMapStore) Read(ctx context.Context) ([]Rule, error) {
	res := s.runner.Run(ctx, runner.Spec{
		Argv: []string{
			s.kubectl, "get", "configmap", s.name,
			"-n", s.namespace,
			"-o", `go-template={{index .data "policy.csv"}}`,
		},
		Timeout: s.timeout,
	})
	if res.ExitCode != 0 {
		lower := strings.ToLower(res.Stderr)
		if strings.Contains(lower, "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("kubectl get configmap: exit %d: %s", res.ExitCode, res.Stderr)
	}
	return Parse(res.Stdout)
}

// AppendAndValidate appends missing rules and applies the merged document.
func (s *ConfigMapStore) AppendAndValidate(ctx context.Context, rules []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Read(ctx)
	if err != nil {
		return err
	}
	next := current
	changed := false
	for _, r := range rules {
		if !containsRule(next, r) {
			next = append(next, r)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.apply(ctx, next)
}

// RemoveAndValidate drops matched rules and applies the filtered document.
func (s *ConfigMapStore) RemoveAndValidate(ctx context.Context, match func(Rule) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Read(ctx)
	if err != nil {
		return err
	}
	next := make([]Rule, 0, len(current))
	for _, r := range current {
		if !match(r) {
			next = append(next, r)
		}
	}
	if len(next) == len(current) {
		return nil
	}
	return s.apply(ctx, next)
}

// WriteAll fully regenerates the ConfigMap, ensuring the admin baseline.
func (s *ConfigMapStore) WriteAll(ctx context.Context, rules []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.apply(ctx, EnsureAdminBaseline(rules))
}

func (s *ConfigMapStore) apply(ctx context.Context, rules []Rule) error {
	doc := Serialize(rules)

	if s.validate != nil {
		tmp, err := os.CreateTemp("", "policy.*.csv")
		if err != nil {
			return fmt.Errorf("temp policy for validation: %w", err)
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath)
		if _, err := tmp.WriteString(doc); err != nil {
			tmp.Close()
			return fmt.Errorf("write temp policy: %w", err)
		}
		tmp.Close()
		if verr := s.validate(ctx, tmpPath); verr != nil {
			return fmt.Errorf("%w: %s", ErrValidation, verr)
		}
	}

	manifest := fmt.Sprintf(configMapTemplate, s.name, s.namespace, indent(doc, 4))
	res := s.runner.Run(ctx, runner.Spec{
		Argv:    []string{s.kubectl, "apply", "-f", "-"},
		Stdin:   manifest,
		Timeout: s.timeout,
	})
	if res.ExitCode != 0 {
		return fmt.Errorf("kubectl apply configmap: exit %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
