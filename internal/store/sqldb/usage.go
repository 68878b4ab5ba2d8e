package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tenantplane/internal/quota"
)

// GetUsage returns the usage counters for a namespace; a missing row reads
// as all-zero.
func (s *Store) GetUsage(ctx context.Context, namespace string) (quota.Usage, error) {
	query := s.rebind(`
		SELECT clusters_count, cpu_used, memory_used, db_users_count
		FROM usage_counters WHERE namespace = ?
	`)

	var u quota.Usage
	err := s.db.QueryRowContext(ctx, query, namespace).Scan(
		&u.ClustersCount,
		&u.CPUUsed,
		&u.MemoryUsed,
		&u.DBUsersCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.Usage{}, nil
	}
	if err != nil {
		return quota.Usage{}, fmt.Errorf("get usage: %w", err)
	}
	return u, nil
}

// InitUsage creates the zeroed usage row for a namespace if missing.
func (s *Store) InitUsage(ctx context.Context, namespace string) error {
	query := s.rebind(`
		INSERT INTO usage_counters (namespace, clusters_count, cpu_used, memory_used, db_users_count, updated_at)
		VALUES (?, 0, 0, 0, 0, ?)
		ON CONFLICT (namespace) DO NOTHING
	`)
	if _, err := s.db.ExecContext(ctx, query, namespace, time.Now().Unix()); err != nil {
		return fmt.Errorf("init usage: %w", err)
	}
	return nil
}

// ApplyClusterDelta adjusts the cluster counters inside a transaction. The
// transaction serializes concurrent deltas per namespace; a delta that would
// drive any counter negative fails with quota.ErrUnderflow and changes
// nothing.
func (s *Store) ApplyClusterDelta(ctx context.Context, namespace string, op quota.Op, cpuCores float64, memoryBytes int64) error {
	delta := 1
	if op == quota.OpDelete {
		delta = -1
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		clusters, cpuUsed, memUsed, _, err := s.usageForUpdate(ctx, tx, namespace)
		if err != nil {
			return err
		}

		clusters += delta
		cpuUsed += cpuCores * float64(delta)
		memUsed += memoryBytes * int64(delta)
		if clusters < 0 || cpuUsed < -1e-9 || memUsed < 0 {
			return quota.ErrUnderflow
		}

		query := s.rebind(`
			UPDATE usage_counters
			SET clusters_count = ?, cpu_used = ?, memory_used = ?, updated_at = ?
			WHERE namespace = ?
		`)
		_, err = tx.ExecContext(ctx, query, clusters, cpuUsed, memUsed, time.Now().Unix(), namespace)
		return err
	})
}

// ApplyDBUserDelta adjusts the database-user counter transactionally.
func (s *Store) ApplyDBUserDelta(ctx context.Context, namespace string, op quota.Op) error {
	delta := 1
	if op == quota.OpDelete {
		delta = -1
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, _, _, users, err := s.usageForUpdate(ctx, tx, namespace)
		if err != nil {
			return err
		}

		users += delta
		if users < 0 {
			return quota.ErrUnderflow
		}

		query := s.rebind(`
			UPDATE usage_counters SET db_users_count = ?, updated_at = ? WHERE namespace = ?
		`)
		_, err = tx.ExecContext(ctx, query, users, time.Now().Unix(), namespace)
		return err
	})
}

// usageForUpdate reads the counters inside tx, inserting the zero row first
// when the namespace has none.
func (s *Store) usageForUpdate(ctx context.Context, tx *sql.Tx, namespace string) (clusters int, cpuUsed float64, memUsed int64, users int, err error) {
	query := s.rebind(`
		SELECT clusters_count, cpu_used, memory_used, db_users_count
		FROM usage_counters WHERE namespace = ?
	`)
	if s.driver == driverPostgres {
		query += " FOR UPDATE"
	}

	err = tx.QueryRowContext(ctx, query, namespace).Scan(&clusters, &cpuUsed, &memUsed, &users)
	if errors.Is(err, sql.ErrNoRows) {
		insert := s.rebind(`
			INSERT INTO usage_counters (namespace, clusters_count, cpu_used, memory_used, db_users_count, updated_at)
			VALUES (?, 0, 0, 0, 0, ?)
		`)
		if _, err = tx.ExecContext(ctx, insert, namespace, time.Now().Unix()); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("seed usage row: %w", err)
		}
		return 0, 0, 0, 0, nil
	}
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("read usage: %w", err)
	}
	return clusters, cpuUsed, memUsed, users, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
