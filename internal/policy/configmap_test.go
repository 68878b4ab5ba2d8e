package policy

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tenantplane/internal/runner"
)

// captureRunner records every invocation and replies from a script keyed by
// the first few argv tokens.
type captureRunner struct {
	replies map[string]runner.Result
	specs   []runner.Spec
}

func (c *captureRunner) Run(_ context.Context, spec runner.Spec) runner.Result {
	c.specs = append(c.specs, spec)
	for prefix, res := range c.replies {
		if strings.HasPrefix(strings.Join(spec.Argv, " "), prefix) {
			return res
		}
	}
	return runner.Result{ExitCode: 0}
}

func TestConfigMapReadMissingIsEmpty(t *testing.T) {
	r := &captureRunner{replies: map[string]runner.Result{
		"kubectl get": {ExitCode: 1, Stderr: `Error from server (NotFound): configmaps "everest-rbac" not found`},
	}}
	s := NewConfigMapStore(r, "kubectl", "everest-rbac", "everest-system", 0, nil)

	rules, err := s.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 0 {
		t.Errorf("expected empty document, got %d rules", len(rules))
	}
}

func TestConfigMapAppendAppliesManifest(t *testing.T) {
	existing := Serialize(TenantRules("alice", "ns-alice"))
	r := &captureRunner{replies: map[string]runner.Result{
		"kubectl get":   {ExitCode: 0, Stdout: existing},
		"kubectl apply": {ExitCode: 0, Stdout: "configmap/everest-rbac configured"},
	}}
	s := NewConfigMapStore(r, "kubectl", "everest-rbac", "everest-system", 0, nil)

	if err := s.AppendAndValidate(context.Background(), TenantRules("bob", "ns-bob")); err != nil {
		t.Fatal(err)
	}

	var applied *runner.Spec
	for i := range r.specs {
		if r.specs[i].Argv[1] == "apply" {
			applied = &r.specs[i]
		}
	}
	if applied == nil {
		t.Fatal("kubectl apply never invoked")
	}
	if !strings.Contains(applied.Stdin, "name: everest-rbac") {
		t.Errorf("manifest metadata missing:\n%s", applied.Stdin)
	}
	if !strings.Contains(applied.Stdin, "    g, bob, role:bob") {
		t.Errorf("merged policy missing bob binding:\n%s", applied.Stdin)
	}
	if !strings.Contains(applied.Stdin, "    g, alice, role:alice") {
		t.Errorf("existing alice binding lost:\n%s", applied.Stdin)
	}
}

func TestConfigMapAppendNoChangeSkipsApply(t *testing.T) {
	existing := Serialize(TenantRules("alice", "ns-alice"))
	r := &captureRunner{replies: map[string]runner.Result{
		"kubectl get": {ExitCode: 0, Stdout: existing},
	}}
	s := NewConfigMapStore(r, "kubectl", "everest-rbac", "everest-system", 0, nil)

	if err := s.AppendAndValidate(context.Background(), TenantRules("alice", "ns-alice")); err != nil {
		t.Fatal(err)
	}
	for _, spec := range r.specs {
		if spec.Argv[1] == "apply" {
			t.Error("apply invoked for a no-op append")
		}
	}
}

// statefulKubectl emulates the cluster side of the read-modify-write: gets
// return the stored document, applies replace it. The pause after each get
// widens the window in which an unserialized writer would read a stale
// document and clobber the other's apply.
type statefulKubectl struct {
	mu     sync.Mutex
	stored string
}

func (k *statefulKubectl) Run(_ context.Context, spec runner.Spec) runner.Result {
	switch spec.Argv[1] {
	case "get":
		k.mu.Lock()
		doc := k.stored
		k.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return runner.Result{ExitCode: 0, Stdout: doc}
	case "apply":
		start := strings.Index(spec.Stdin, "policy.csv: |")
		doc := spec.Stdin[start+len("policy.csv: |"):]
		var lines []string
		for _, line := range strings.Split(doc, "\n") {
			lines = append(lines, strings.TrimPrefix(line, "    "))
		}
		k.mu.Lock()
		k.stored = strings.TrimLeft(strings.Join(lines, "\n"), "\n")
		k.mu.Unlock()
		return runner.Result{ExitCode: 0, Stdout: "configmap/everest-rbac configured"}
	}
	return runner.Result{ExitCode: 0}
}

func TestConfigMapConcurrentAppendsKeepBothTenants(t *testing.T) {
	k := &statefulKubectl{}
	s := NewConfigMapStore(k, "kubectl", "everest-rbac", "everest-system", 0, nil)

	var wg sync.WaitGroup
	for _, tenant := range []struct{ user, ns string }{
		{"alice", "ns-alice"},
		{"bob", "ns-bob"},
	} {
		wg.Add(1)
		go func(user, ns string) {
			defer wg.Done()
			if err := s.AppendAndValidate(context.Background(), TenantRules(user, ns)); err != nil {
				t.Errorf("append for %s: %v", user, err)
			}
		}(tenant.user, tenant.ns)
	}
	wg.Wait()

	final, err := s.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !containsRule(final, Rule{Kind: KindBinding, Principal: "alice", Role: TenantRole("alice")}) {
		t.Errorf("final document lost alice's binding:\n%s", Serialize(final))
	}
	if !containsRule(final, Rule{Kind: KindBinding, Principal: "bob", Role: TenantRole("bob")}) {
		t.Errorf("final document lost bob's binding:\n%s", Serialize(final))
	}
}

func TestConfigMapValidationBlocksApply(t *testing.T) {
	r := &captureRunner{replies: map[string]runner.Result{
		"kubectl get": {ExitCode: 0, Stdout: ""},
	}}
	validate := func(ctx context.Context, path string) error {
		return context.DeadlineExceeded
	}
	s := NewConfigMapStore(r, "kubectl", "everest-rbac", "everest-system", 0, validate)

	err := s.AppendAndValidate(context.Background(), TenantRules("alice", "ns-alice"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, spec := range r.specs {
		if spec.Argv[1] == "apply" {
			t.Error("rejected document was applied anyway")
		}
	}
}
