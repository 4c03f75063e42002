// Package sqlite implements the storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/text/cases"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// fold canonicalizes a string for case-insensitive uniqueness (emails,
// category names): trim surrounding whitespace, then Unicode case folding.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Store is the SQLite-backed implementation of storage.Store.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// Open creates (or opens) a SQLite help-desk database at path and applies
// the schema. ":memory:" opens a private in-memory database pinned to a
// single connection so all queries see the same data.
func Open(ctx context.Context, path string) (*Store, error) {
	var connStr string
	isInMemory := path == ":memory:" || strings.Contains(path, "mode=memory")
	switch {
	case path == ":memory:":
		// WAL does not apply to in-memory databases.
		connStr = "file::memory:?_pragma=foreign_keys(ON)&_pragma=busy_timeout(10000)"
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(10000)"
		}
	default:
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
		connStr = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(10000)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory {
		// In-memory databases are isolated per connection; without this,
		// pool connections cannot see each other's writes.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports one writer plus concurrent readers; cap the pool so
		// write-lock contention does not pile up goroutines.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	absPath := path
	if !isInMemory {
		if absPath, err = filepath.Abs(path); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
	}

	return &Store{db: db, dbPath: absPath}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	s.closed.Store(true)
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Path returns the absolute path to the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// timeLayout is RFC3339 with fixed-width nanoseconds so stored UTC strings
// sort lexicographically in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// fmtTime serializes a timestamp for storage. All timestamps are UTC.
func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by external tooling may carry plain RFC3339.
		if t, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := ns.String
	return &v
}

func ptrArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
