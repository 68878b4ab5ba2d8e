package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tenantplane/internal/quota"
)

// GetLimits returns the configured limits for a namespace, or nil when the
// namespace has no limit record.
func (s *Store) GetLimits(ctx context.Context, namespace string) (*quota.Limits, error) {
	query := s.rebind(`
		SELECT namespace, max_clusters, allowed_engines, cpu_limit_cores, memory_limit_bytes, max_db_users
		FROM limits WHERE namespace = ?
	`)

	var (
		l          quota.Limits
		enginesRaw string
	)
	err := s.db.QueryRowContext(ctx, query, namespace).Scan(
		&l.Namespace,
		&l.MaxClusters,
		&enginesRaw,
		&l.CPULimitCores,
		&l.MemoryLimitBytes,
		&l.MaxDBUsers,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get limits: %w", err)
	}
	if err := json.Unmarshal([]byte(enginesRaw), &l.AllowedEngines); err != nil {
		return nil, fmt.Errorf("decode allowed engines for %s: %w", namespace, err)
	}
	return &l, nil
}

// UpsertLimits inserts or replaces the limit record for a namespace.
func (s *Store) UpsertLimits(ctx context.Context, l quota.Limits) error {
	engines := l.AllowedEngines
	if engines == nil {
		engines = []string{}
	}
	enginesRaw, err := json.Marshal(engines)
	if err != nil {
		return fmt.Errorf("encode allowed engines: %w", err)
	}

	query := s.rebind(`
		INSERT INTO limits (namespace, max_clusters, allowed_engines, cpu_limit_cores, memory_limit_bytes, max_db_users, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace) DO UPDATE SET
			max_clusters = excluded.max_clusters,
			allowed_engines = excluded.allowed_engines,
			cpu_limit_cores = excluded.cpu_limit_cores,
			memory_limit_bytes = excluded.memory_limit_bytes,
			max_db_users = excluded.max_db_users,
			updated_at = excluded.updated_at
	`)
	_, err = s.db.ExecContext(ctx, query,
		l.Namespace,
		l.MaxClusters,
		string(enginesRaw),
		l.CPULimitCores,
		l.MemoryLimitBytes,
		l.MaxDBUsers,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert limits: %w", err)
	}
	return nil
}

// ListTenants returns every configured namespace joined with its usage.
func (s *Store) ListTenants(ctx context.Context) ([]quota.Tenant, error) {
	query := `
		SELECT l.namespace, l.max_clusters, l.allowed_engines, l.cpu_limit_cores, l.memory_limit_bytes, l.max_db_users,
		       COALESCE(u.clusters_count, 0), COALESCE(u.cpu_used, 0), COALESCE(u.memory_used, 0), COALESCE(u.db_users_count, 0)
		FROM limits l
		LEFT JOIN usage_counters u ON l.namespace = u.namespace
		ORDER BY l.namespace
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []quota.Tenant
	for rows.Next() {
		var (
			t          quota.Tenant
			enginesRaw string
		)
		if err := rows.Scan(
			&t.Limits.Namespace,
			&t.Limits.MaxClusters,
			&enginesRaw,
			&t.Limits.CPULimitCores,
			&t.Limits.MemoryLimitBytes,
			&t.Limits.MaxDBUsers,
			&t.Usage.ClustersCount,
			&t.Usage.CPUUsed,
			&t.Usage.MemoryUsed,
			&t.Usage.DBUsersCount,
		); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		if err := json.Unmarshal([]byte(enginesRaw), &t.Limits.AllowedEngines); err != nil {
			return nil, fmt.Errorf("decode allowed engines for %s: %w", t.Limits.Namespace, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
