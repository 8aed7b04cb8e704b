// Package history records finished runs in a SQLite database so earlier
// results can be listed and compared.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is used when no database is configured.
const DefaultPath = ".hitrun/history.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	assembly    TEXT NOT NULL,
	path        TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	not_run     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
CREATE TABLE IF NOT EXISTS tests (
	run_id      TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	collection  TEXT NOT NULL,
	class       TEXT NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	cause       TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Run is one recorded assembly run.
type Run struct {
	ID        string
	Assembly  string
	Path      string
	StartedAt time.Time
	Duration  time.Duration
	Total     int
	Failed    int
	Skipped   int
	NotRun    int
}

func (r Run) Passed() int {
	return r.Total - r.Failed - r.Skipped - r.NotRun
}

// TestRecord is one test of a recorded run.
type TestRecord struct {
	Collection string
	Class      string
	Name       string
	Status     string
	Cause      string
	Message    string
	Duration   time.Duration
}

// Store is a history database.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens or creates the database named by connectionString and applies
// the schema. Accepted forms are sqlite://path, sqlite:path and a bare path.
func Open(connectionString string) (*Store, error) {
	dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, queryTimeout: 30 * time.Second}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun stores run and its tests in one transaction. Saving a run ID that
// already exists replaces it.
func (s *Store) SaveRun(ctx context.Context, run Run, tests []TestRecord) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM tests WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("replace run %s: %w", run.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, assembly, path, started_at, duration_ms, total, failed, skipped, not_run)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Assembly, run.Path, run.StartedAt.UnixMilli(), run.Duration.Milliseconds(),
		run.Total, run.Failed, run.Skipped, run.NotRun)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tests (run_id, seq, collection, class, name, status, cause, message, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, t := range tests {
		_, err = stmt.ExecContext(ctx, run.ID, i, t.Collection, t.Class, t.Name, t.Status, t.Cause, t.Message, t.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert test %q: %w", t.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns the n most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assembly, path, started_at, duration_ms, total, failed, skipped, not_run
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var r Run
		var started, durationMs int64
		if err := rows.Scan(&r.ID, &r.Assembly, &r.Path, &started, &durationMs, &r.Total, &r.Failed, &r.Skipped, &r.NotRun); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Tests returns the tests of a run in the order they finished.
func (s *Store) Tests(ctx context.Context, runID string) ([]TestRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, class, name, status, cause, message, duration_ms
		 FROM tests WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	tests := make([]TestRecord, 0)
	for rows.Next() {
		var t TestRecord
		var durationMs int64
		if err := rows.Scan(&t.Collection, &t.Class, &t.Name, &t.Status, &t.Cause, &t.Message, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		t.Duration = time.Duration(durationMs) * time.Millisecond
		tests = append(tests, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tests, nil
}

// Flaky returns the names of tests that both passed and failed within the
// last n runs of assembly, sorted by name.
func (s *Store) Flaky(ctx context.Context, assembly string, n int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.class || '.' || t.name AS test
		 FROM tests t
		 WHERE t.run_id IN (SELECT id FROM runs WHERE assembly = ? ORDER BY started_at DESC LIMIT ?)
		   AND t.status IN ('passed', 'failed')
		 GROUP BY test
		 HAVING COUNT(DISTINCT t.status) = 2
		 ORDER BY test`, assembly, n)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// parseConnectionString turns the accepted connection forms into a
// go-sqlite3 DSN.
func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)
	if connStr == "" {
		return "", errors.New("empty database path")
	}

	var path string
	switch {
	case strings.HasPrefix(connStr, "sqlite://"):
		path = strings.TrimPrefix(connStr, "sqlite://")
	case strings.HasPrefix(connStr, "sqlite:"):
		path = strings.TrimPrefix(connStr, "sqlite:")
	default:
		if u, err := url.Parse(connStr); err == nil && len(u.Scheme) > 1 {
			return "", fmt.Errorf("unsupported database scheme: %s", u.Scheme)
		}
		path = connStr
	}
	if path == "" {
		return "", errors.New("empty database path")
	}
	if strings.Contains(path, "?") {
		return path, nil
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on", nil
}
