// Package sqldb implements the quota ledger's persistence on database/sql.
// SQLite is the default backend; Postgres is used when a connection string
// is configured.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// Store provides SQL-backed implementations of the quota ledger store.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to Postgres when databaseURL is set, otherwise to the SQLite
// file at dbPath (creating its directory), and runs migrations.
func Open(ctx context.Context, databaseURL, dbPath string) (*Store, error) {
	var (
		db     *sql.DB
		driver string
		err    error
	)
	if databaseURL != "" {
		driver = driverPostgres
		db, err = sql.Open("postgres", databaseURL)
	} else {
		driver = driverSQLite
		if mkerr := os.MkdirAll(filepath.Dir(dbPath), 0o755); mkerr != nil {
			return nil, fmt.Errorf("db dir: %w", mkerr)
		}
		db, err = sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == driverSQLite {
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY
		// churn under concurrent deltas.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection (tests).
func NewWithDB(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// DB exposes the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// rebind converts ?-style placeholders to the $n form lib/pq expects.
func (s *Store) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
