package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"tenantplane/internal/quota"
	"tenantplane/internal/store"
	"tenantplane/pkg/api"
)

// fakeEngine records submissions and serves canned jobs and accounts.
type fakeEngine struct {
	jobs      map[string]*store.Job
	submitted []store.Params
	kinds     []store.WorkflowKind
	accounts  []api.Account
	err       error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{jobs: make(map[string]*store.Job)}
}

func (f *fakeEngine) Submit(kind store.WorkflowKind, params store.Params) *store.Job {
	f.submitted = append(f.submitted, params)
	f.kinds = append(f.kinds, kind)
	job := &store.Job{
		ID:     fmt.Sprintf("job-%d", len(f.submitted)),
		Kind:   kind,
		Status: store.JobStatusQueued,
		Params: params,
	}
	f.jobs[job.ID] = job
	return job
}

func (f *fakeEngine) Job(id string) *store.Job { return f.jobs[id] }

func (f *fakeEngine) ListAccounts(_ context.Context) ([]api.Account, error) {
	return f.accounts, f.err
}

func (f *fakeEngine) SetAccountEnabled(_ context.Context, _ string, _ bool) error { return f.err }

func (f *fakeEngine) SetAccountPassword(_ context.Context, _, _ string) error { return f.err }

// memLedgerStore is an in-memory quota.Store.
type memLedgerStore struct {
	limits map[string]quota.Limits
	usage  map[string]quota.Usage
}

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{
		limits: make(map[string]quota.Limits),
		usage:  make(map[string]quota.Usage),
	}
}

func (m *memLedgerStore) GetLimits(_ context.Context, ns string) (*quota.Limits, error) {
	if l, ok := m.limits[ns]; ok {
		return &l, nil
	}
	return nil, nil
}

func (m *memLedgerStore) UpsertLimits(_ context.Context, l quota.Limits) error {
	m.limits[l.Namespace] = l
	return nil
}

func (m *memLedgerStore) GetUsage(_ context.Context, ns string) (quota.Usage, error) {
	return m.usage[ns], nil
}

func (m *memLedgerStore) InitUsage(_ context.Context, ns string) error {
	if _, ok := m.usage[ns]; !ok {
		m.usage[ns] = quota.Usage{}
	}
	return nil
}

func (m *memLedgerStore) ApplyClusterDelta(_ context.Context, ns string, op quota.Op, cpu float64, mem int64) error {
	u := m.usage[ns]
	d := 1
	if op == quota.OpDelete {
		d = -1
	}
	next := quota.Usage{
		ClustersCount: u.ClustersCount + d,
		CPUUsed:       u.CPUUsed + cpu*float64(d),
		MemoryUsed:    u.MemoryUsed + mem*int64(d),
		DBUsersCount:  u.DBUsersCount,
	}
	if next.ClustersCount < 0 || next.CPUUsed < 0 || next.MemoryUsed < 0 {
		return quota.ErrUnderflow
	}
	m.usage[ns] = next
	return nil
}

func (m *memLedgerStore) ApplyDBUserDelta(_ context.Context, ns string, op quota.Op) error {
	u := m.usage[ns]
	d := 1
	if op == quota.OpDelete {
		d = -1
	}
	if u.DBUsersCount+d < 0 {
		return quota.ErrUnderflow
	}
	u.DBUsersCount += d
	m.usage[ns] = u
	return nil
}

func (m *memLedgerStore) ListTenants(_ context.Context) ([]quota.Tenant, error) {
	var out []quota.Tenant
	for ns, l := range m.limits {
		out = append(out, quota.Tenant{Limits: l, Usage: m.usage[ns]})
	}
	return out, nil
}

func newTestHandlers(t *testing.T, eng *fakeEngine) (*Handlers, *memLedgerStore) {
	t.Helper()
	ms := newMemLedgerStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(eng, quota.NewLedger(ms), nil, log), ms
}
