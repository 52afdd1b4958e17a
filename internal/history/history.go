package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded filtering run
type Run struct {
	ID          int64
	StartedAt   time.Time
	Duration    time.Duration
	InputPath   string
	InputDigest string
	OutputPath  string
	Profile     string
	Policy      string
	Read        int
	Kept        int
	Dropped     int
	Malformed   int
	SizeBefore  int64
	SizeAfter   int64
}

// Matches reports whether r was produced from the same input under the same
// policy
func (r *Run) Matches(digest, policy string) bool {
	return r != nil && r.InputDigest == digest && r.Policy == policy
}

// DB stores the run history in SQLite
type DB struct {
	sql *sql.DB
}

// Open opens or creates the history database at path
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id            INTEGER PRIMARY KEY,
  started_at    TEXT NOT NULL,
  duration_ms   INTEGER NOT NULL,
  input_path    TEXT NOT NULL,
  input_digest  TEXT NOT NULL,
  output_path   TEXT NOT NULL,
  profile       TEXT,
  policy        TEXT NOT NULL,
  records_read  INTEGER NOT NULL,
  records_kept  INTEGER NOT NULL,
  dropped       INTEGER NOT NULL,
  malformed     INTEGER NOT NULL,
  size_before   INTEGER NOT NULL,
  size_after    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_output ON runs(output_path, id);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Record stores a run and returns its id
func (d *DB) Record(ctx context.Context, r *Run) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT INTO runs(started_at, duration_ms, input_path, input_digest, output_path, profile, policy, records_read, records_kept, dropped, malformed, size_before, size_after) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.Duration.Milliseconds(),
		r.InputPath, r.InputDigest, r.OutputPath, nullIfEmpty(r.Profile), r.Policy,
		r.Read, r.Kept, r.Dropped, r.Malformed, r.SizeBefore, r.SizeAfter)
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

const selectRuns = `SELECT id, started_at, duration_ms, input_path, input_digest, output_path, profile, policy, records_read, records_kept, dropped, malformed, size_before, size_after FROM runs`

// Latest returns the most recent run that wrote to outputPath, or nil
func (d *DB) Latest(ctx context.Context, outputPath string) (*Run, error) {
	row := d.sql.QueryRowContext(ctx, selectRuns+" WHERE output_path = ? ORDER BY id DESC LIMIT 1", outputPath)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// List returns up to limit runs, newest first
func (d *DB) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.sql.QueryContext(ctx, selectRuns+" ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r          Run
		startedAt  string
		durationMS int64
		profile    sql.NullString
	)
	if err := s.Scan(&r.ID, &startedAt, &durationMS, &r.InputPath, &r.InputDigest, &r.OutputPath, &profile, &r.Policy,
		&r.Read, &r.Kept, &r.Dropped, &r.Malformed, &r.SizeBefore, &r.SizeAfter); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		r.StartedAt = t
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	r.Profile = profile.String
	return &r, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
