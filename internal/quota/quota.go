// Package quota enforces per-tenant resource limits against usage counters.
// The enforcement rules live here; persistence of the counters is behind the
// Store interface (see internal/store/sqldb).
package quota

import (
	"context"
	"errors"
	"fmt"
)

// cpuTolerance absorbs binary rounding when summing fractional cores, so a
// request that exactly fills the ceiling is not spuriously rejected.
const cpuTolerance = 1e-9

// ErrUnderflow means a delta would drive a usage counter negative. That is a
// programming-contract violation on the caller's side; counters are left
// unchanged.
var ErrUnderflow = errors.New("quota: usage counter underflow")

// Op is the direction of a usage delta.
type Op string

const (
	OpCreate Op = "create"
	OpDelete Op = "delete"
)

// Limits are the configured ceilings for a tenant namespace. A zero value in
// any dimension means unlimited; an empty AllowedEngines permits any engine.
type Limits struct {
	Namespace        string
	MaxClusters      int
	AllowedEngines   []string
	CPULimitCores    float64
	MemoryLimitBytes int64
	MaxDBUsers       int
}

// Usage are the current consumption counters for a tenant namespace.
type Usage struct {
	ClustersCount int
	CPUUsed       float64
	MemoryUsed    int64
	DBUsersCount  int
}

// Tenant pairs limits with usage for listings.
type Tenant struct {
	Limits Limits
	Usage  Usage
}

// Store is the ledger's persistence boundary. Implementations must serialize
// concurrent deltas per namespace so updates are never lost.
type Store interface {
	GetLimits(ctx context.Context, namespace string) (*Limits, error)
	UpsertLimits(ctx context.Context, limits Limits) error
	GetUsage(ctx context.Context, namespace string) (Usage, error)
	InitUsage(ctx context.Context, namespace string) error
	ApplyClusterDelta(ctx context.Context, namespace string, op Op, cpuCores float64, memoryBytes int64) error
	ApplyDBUserDelta(ctx context.Context, namespace string, op Op) error
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// Ledger is the quota enforcement surface used by the engine and handlers.
type Ledger struct {
	store Store
}

// NewLedger wraps a persistence store in the enforcement policy.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// CheckClusterCreate decides whether a hypothetical cluster creation fits
// within the namespace limits. The first failing check wins. Checking and
// applying are separate steps; the store serializes the actual deltas.
func (l *Ledger) CheckClusterCreate(ctx context.Context, namespace, engine string, cpuCores float64, memoryBytes int64) (bool, string, error) {
	limits, err := l.store.GetLimits(ctx, namespace)
	if err != nil {
		return false, "", err
	}
	if limits == nil {
		return false, "no limits configured for namespace", nil
	}
	usage, err := l.store.GetUsage(ctx, namespace)
	if err != nil {
		return false, "", err
	}

	if len(limits.AllowedEngines) > 0 && !contains(limits.AllowedEngines, engine) {
		return false, fmt.Sprintf("engine '%s' not allowed", engine), nil
	}
	if limits.MaxClusters > 0 && usage.ClustersCount+1 > limits.MaxClusters {
		return false, "max clusters exceeded", nil
	}
	if limits.CPULimitCores > 0 && usage.CPUUsed+cpuCores > limits.CPULimitCores+cpuTolerance {
		return false, "cpu limit exceeded", nil
	}
	if limits.MemoryLimitBytes > 0 && usage.MemoryUsed+memoryBytes > limits.MemoryLimitBytes {
		return false, "memory limit exceeded", nil
	}
	return true, "ok", nil
}

// CheckDBUserCreate decides whether another database user fits.
func (l *Ledger) CheckDBUserCreate(ctx context.Context, namespace string) (bool, string, error) {
	limits, err := l.store.GetLimits(ctx, namespace)
	if err != nil {
		return false, "", err
	}
	if limits == nil {
		return false, "no limits configured for namespace", nil
	}
	usage, err := l.store.GetUsage(ctx, namespace)
	if err != nil {
		return false, "", err
	}
	if limits.MaxDBUsers > 0 && usage.DBUsersCount+1 > limits.MaxDBUsers {
		return false, "max db users exceeded", nil
	}
	return true, "ok", nil
}

// ApplyClusterDelta records a cluster create/delete against the counters.
func (l *Ledger) ApplyClusterDelta(ctx context.Context, namespace string, op Op, cpuCores float64, memoryBytes int64) error {
	return l.store.ApplyClusterDelta(ctx, namespace, op, cpuCores, memoryBytes)
}

// ApplyDBUserDelta records a database-user create/delete.
func (l *Ledger) ApplyDBUserDelta(ctx context.Context, namespace string, op Op) error {
	return l.store.ApplyDBUserDelta(ctx, namespace, op)
}

// UpsertLimits registers or replaces the limits for a namespace and makes
// sure its usage row exists.
func (l *Ledger) UpsertLimits(ctx context.Context, limits Limits) error {
	if err := l.store.UpsertLimits(ctx, limits); err != nil {
		return err
	}
	return l.store.InitUsage(ctx, limits.Namespace)
}

// Tenant returns limits and usage for one namespace; nil when unconfigured.
func (l *Ledger) Tenant(ctx context.Context, namespace string) (*Tenant, error) {
	limits, err := l.store.GetLimits(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if limits == nil {
		return nil, nil
	}
	usage, err := l.store.GetUsage(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return &Tenant{Limits: *limits, Usage: usage}, nil
}

// ListTenants returns every configured namespace with its usage.
func (l *Ledger) ListTenants(ctx context.Context) ([]Tenant, error) {
	return l.store.ListTenants(ctx)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
