// Package sqlite provides a single-file persistence implementation for runs
// recorded by the CLI when no Postgres instance is available.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/JakeFAU/arewethereyet/internal/store"
)

// ProgressStore implements store.ProgressRepository on SQLite. Timestamps are
// stored as unix nanoseconds.
type ProgressStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*ProgressStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &ProgressStore{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL,
		completed REAL NOT NULL DEFAULT 0,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		completed REAL NOT NULL,
		at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_points_run
		ON points(run_id, id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Close releases the database handle.
func (s *ProgressStore) Close() error {
	return s.db.Close()
}

// UpsertRunStart inserts a running run; an existing row is left untouched.
func (s *ProgressStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, root string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (id, root, started_at, status) VALUES (?, ?, ?, ?)`,
		runID.String(), root, startedAt.UnixNano(), string(store.RunRunning))
	if err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// RecordProgress updates the latest ratio and appends a point atomically.
func (s *ProgressStore) RecordProgress(
	ctx context.Context,
	runID uuid.UUID,
	name string,
	completed float64,
	at time.Time,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE runs SET completed = ? WHERE id = ?`, completed, runID.String())
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO points (run_id, name, completed, at) VALUES (?, ?, ?, ?)`,
		runID.String(), name, completed, at.UnixNano()); err != nil {
		return fmt.Errorf("failed to insert point: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit progress: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error message.
func (s *ProgressStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	completed float64,
	status store.RunStatus,
	errMsg *string,
) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, completed = ?, status = ?, error_message = ? WHERE id = ?`,
		finishedAt.UnixNano(), completed, string(status), errMsg, runID.String())
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

const runColumns = `id, root, started_at, finished_at, status, completed, error_message`

// GetRun retrieves a single run by its ID.
func (s *ProgressStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID.String())
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering. A
// non-positive limit returns every remaining row.
func (s *ProgressStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	var filter any
	if status != nil {
		filter = string(*status)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs
		WHERE (? IS NULL OR status = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?`,
		filter, filter, sqlLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunPoints retrieves the completion history of one run, oldest first.
func (s *ProgressStore) ListRunPoints(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.Point, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, completed, at FROM points WHERE run_id = ? ORDER BY id LIMIT ? OFFSET ?`,
		runID.String(), sqlLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list run points: %w", err)
	}
	defer rows.Close()

	points := []store.Point{}
	for rows.Next() {
		p := store.Point{RunID: runID}
		var at int64
		if err := rows.Scan(&p.Name, &p.Completed, &at); err != nil {
			return nil, fmt.Errorf("failed to scan point row: %w", err)
		}
		p.At = time.Unix(0, at).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate points: %w", err)
	}
	return points, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (store.Run, error) {
	var (
		run        store.Run
		id, status string
		startedAt  int64
		finishedAt sql.NullInt64
		errMsg     sql.NullString
	)
	if err := row.Scan(&id, &run.Root, &startedAt, &finishedAt, &status, &run.Completed, &errMsg); err != nil {
		return store.Run{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return store.Run{}, fmt.Errorf("parse run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Status = store.RunStatus(status)
	run.StartedAt = time.Unix(0, startedAt).UTC()
	if finishedAt.Valid {
		ts := time.Unix(0, finishedAt.Int64).UTC()
		run.FinishedAt = &ts
	}
	if errMsg.Valid {
		run.ErrorMessage = &errMsg.String
	}
	return run, nil
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
