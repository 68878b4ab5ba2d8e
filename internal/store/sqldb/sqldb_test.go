package sqldb

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"tenantplane/internal/quota"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, driverSQLite), mock
}

func TestGetLimits(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"namespace", "max_clusters", "allowed_engines", "cpu_limit_cores", "memory_limit_bytes", "max_db_users",
	}).AddRow("tenant-a", 5, `["postgresql","pxc"]`, 8.0, int64(16<<30), 10)
	mock.ExpectQuery("SELECT namespace, max_clusters, allowed_engines").
		WithArgs("tenant-a").
		WillReturnRows(rows)

	l, err := s.GetLimits(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("GetLimits: %v", err)
	}
	if l == nil {
		t.Fatal("expected limits, got nil")
	}
	if l.MaxClusters != 5 || len(l.AllowedEngines) != 2 || l.AllowedEngines[1] != "pxc" {
		t.Errorf("unexpected limits: %+v", l)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetLimitsMissingNamespace(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT namespace, max_clusters, allowed_engines").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"namespace"}))

	l, err := s.GetLimits(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetLimits: %v", err)
	}
	if l != nil {
		t.Errorf("expected nil limits for unconfigured namespace, got %+v", l)
	}
}

func TestUpsertLimitsEncodesEngines(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO limits").
		WithArgs("tenant-a", 3, `["postgresql"]`, 4.0, int64(8<<30), 5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.UpsertLimits(context.Background(), quota.Limits{
		Namespace:        "tenant-a",
		MaxClusters:      3,
		AllowedEngines:   []string{"postgresql"},
		CPULimitCores:    4.0,
		MemoryLimitBytes: 8 << 30,
		MaxDBUsers:       5,
	})
	if err != nil {
		t.Fatalf("UpsertLimits: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpsertLimitsNilEnginesStoredAsEmptyList(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO limits").
		WithArgs("tenant-b", 0, `[]`, 0.0, int64(0), 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.UpsertLimits(context.Background(), quota.Limits{Namespace: "tenant-b"}); err != nil {
		t.Fatalf("UpsertLimits: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyClusterDeltaCreate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT clusters_count, cpu_used, memory_used, db_users_count").
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"clusters_count", "cpu_used", "memory_used", "db_users_count"}).
			AddRow(2, 3.5, int64(4<<30), 1))
	mock.ExpectExec("UPDATE usage_counters").
		WithArgs(3, 4.5, int64(6<<30), sqlmock.AnyArg(), "tenant-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ApplyClusterDelta(context.Background(), "tenant-a", quota.OpCreate, 1.0, 2<<30)
	if err != nil {
		t.Fatalf("ApplyClusterDelta: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyClusterDeltaUnderflowRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT clusters_count, cpu_used, memory_used, db_users_count").
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"clusters_count", "cpu_used", "memory_used", "db_users_count"}).
			AddRow(0, 0.0, int64(0), 0))
	mock.ExpectRollback()

	err := s.ApplyClusterDelta(context.Background(), "tenant-a", quota.OpDelete, 1.0, 1<<30)
	if !errors.Is(err, quota.ErrUnderflow) {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
	// No UPDATE expectation was set: an update here would fail the mock.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyClusterDeltaSeedsMissingRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT clusters_count, cpu_used, memory_used, db_users_count").
		WithArgs("fresh").
		WillReturnRows(sqlmock.NewRows([]string{"clusters_count"}))
	mock.ExpectExec("INSERT INTO usage_counters").
		WithArgs("fresh", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE usage_counters").
		WithArgs(1, 2.0, int64(1<<30), sqlmock.AnyArg(), "fresh").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.ApplyClusterDelta(context.Background(), "fresh", quota.OpCreate, 2.0, 1<<30); err != nil {
		t.Fatalf("ApplyClusterDelta: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyDBUserDeltaUnderflow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT clusters_count, cpu_used, memory_used, db_users_count").
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"clusters_count", "cpu_used", "memory_used", "db_users_count"}).
			AddRow(1, 1.0, int64(1<<30), 0))
	mock.ExpectRollback()

	err := s.ApplyDBUserDelta(context.Background(), "tenant-a", quota.OpDelete)
	if !errors.Is(err, quota.ErrUnderflow) {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
}

func TestListTenantsJoinsUsage(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"namespace", "max_clusters", "allowed_engines", "cpu_limit_cores", "memory_limit_bytes", "max_db_users",
		"clusters_count", "cpu_used", "memory_used", "db_users_count",
	}).
		AddRow("tenant-a", 5, `["postgresql"]`, 8.0, int64(16<<30), 10, 2, 3.0, int64(4<<30), 1).
		AddRow("tenant-b", 0, `[]`, 0.0, int64(0), 0, 0, 0.0, int64(0), 0)
	mock.ExpectQuery("FROM limits l").WillReturnRows(rows)

	tenants, err := s.ListTenants(context.Background())
	if err != nil {
		t.Fatalf("ListTenants: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants, got %d", len(tenants))
	}
	if tenants[0].Usage.ClustersCount != 2 {
		t.Errorf("tenant-a clusters = %d, want 2", tenants[0].Usage.ClustersCount)
	}
	if tenants[1].Limits.AllowedEngines == nil || len(tenants[1].Limits.AllowedEngines) != 0 {
		t.Errorf("tenant-b engines = %v, want empty list", tenants[1].Limits.AllowedEngines)
	}
}

func TestWriteAudit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), "api", "bootstrap_submitted", "tenant-a", `{"job_id":"j1"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.WriteAudit(context.Background(), "api", "bootstrap_submitted", "tenant-a", map[string]any{"job_id": "j1"})
	if err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	pg := &Store{driver: driverPostgres}
	got := pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?")
	want := "SELECT a FROM t WHERE x = $1 AND y = $2"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	lite := &Store{driver: driverSQLite}
	if got := lite.rebind("WHERE x = ?"); got != "WHERE x = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}
