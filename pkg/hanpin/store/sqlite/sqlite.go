// Package sqlite implements the run-history store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/hanpin/pkg/hanpin/internalerr"
	"github.com/cognicore/hanpin/pkg/hanpin/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode enabled and initializes
// the schema.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	input TEXT NOT NULL,
	output TEXT NOT NULL,
	report TEXT NOT NULL,
	unresolved INTEGER NOT NULL DEFAULT 0,
	applied_overrides INTEGER NOT NULL DEFAULT 0,
	conflicts INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteStore) SaveRun(ctx context.Context, rec store.RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: run id required", internalerr.ErrInvalidInput)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO runs (id, created_at, input, output, report, unresolved, applied_overrides, conflicts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		createdAt.Format(time.RFC3339Nano),
		rec.Input,
		rec.Output,
		string(rec.ReportJSON),
		boolToInt(rec.Unresolved),
		rec.AppliedOverrides,
		rec.Conflicts,
	)
	return err
}

func (s *sqliteStore) GetRun(ctx context.Context, id string) (store.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, created_at, input, output, report, unresolved, applied_overrides, conflicts
FROM runs WHERE id = ?`, id)

	var rec store.RunRecord
	var createdAt, reportJSON string
	var unresolved int
	err := row.Scan(&rec.ID, &createdAt, &rec.Input, &rec.Output, &reportJSON,
		&unresolved, &rec.AppliedOverrides, &rec.Conflicts)
	if errors.Is(err, sql.ErrNoRows) {
		return store.RunRecord{}, fmt.Errorf("run %s: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return store.RunRecord{}, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.ReportJSON = []byte(reportJSON)
	rec.Unresolved = unresolved != 0
	return rec, nil
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]store.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, created_at, input, output, unresolved, applied_overrides, conflicts
FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.RunSummary
	for rows.Next() {
		var sum store.RunSummary
		var createdAt string
		var unresolved int
		if err := rows.Scan(&sum.ID, &createdAt, &sum.Input, &sum.Output,
			&unresolved, &sum.AppliedOverrides, &sum.Conflicts); err != nil {
			return nil, err
		}
		sum.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		sum.Unresolved = unresolved != 0
		out = append(out, sum)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
