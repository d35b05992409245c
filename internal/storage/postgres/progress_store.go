// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/arewethereyet/internal/store"
)

// Schema creates the tables used by ProgressStore.
const Schema = `
CREATE TABLE IF NOT EXISTS awty_runs (
	id            UUID PRIMARY KEY,
	root          TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	completed     DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE TABLE IF NOT EXISTS awty_points (
	id        BIGSERIAL PRIMARY KEY,
	run_id    UUID NOT NULL REFERENCES awty_runs (id) ON DELETE CASCADE,
	name      TEXT NOT NULL,
	completed DOUBLE PRECISION NOT NULL,
	at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS awty_points_run_idx ON awty_points (run_id, id);
`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool used by the store; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ProgressStore implements store.ProgressRepository using Postgres.
type ProgressStore struct {
	pool pool
}

// NewProgressStore connects a pool using cfg.
func NewProgressStore(ctx context.Context, cfg Config) (*ProgressStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProgressStore{pool: p}, nil
}

// NewProgressStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProgressStoreWithPool(p pool) (*ProgressStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &ProgressStore{pool: p}, nil
}

// Migrate applies Schema.
func (s *ProgressStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate progress schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *ProgressStore) Close() {
	s.pool.Close()
}

// UpsertRunStart inserts a running run; an existing row is left untouched.
func (s *ProgressStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, root string, startedAt time.Time) error {
	const query = `
		INSERT INTO awty_runs (id, root, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, root, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// RecordProgress updates the latest ratio and appends a point in one statement.
func (s *ProgressStore) RecordProgress(
	ctx context.Context,
	runID uuid.UUID,
	name string,
	completed float64,
	at time.Time,
) error {
	const query = `
		WITH run AS (
			UPDATE awty_runs SET completed = $1 WHERE id = $2 RETURNING id
		)
		INSERT INTO awty_points (run_id, name, completed, at)
		SELECT id, $3, $1, $4 FROM run;
	`
	tag, err := s.pool.Exec(ctx, query, completed, runID, name, at)
	if err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
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
	const query = `
		UPDATE awty_runs
		SET finished_at = $1, completed = $2, status = $3, error_message = $4
		WHERE id = $5;
	`
	tag, err := s.pool.Exec(ctx, query, finishedAt, completed, string(status), errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const runColumns = `id, root, started_at, finished_at, status, completed, error_message`

// GetRun retrieves a single run by its ID.
func (s *ProgressStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM awty_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *ProgressStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM awty_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
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
	const query = `
		SELECT run_id, name, completed, at
		FROM awty_points
		WHERE run_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run points: %w", err)
	}
	defer rows.Close()

	points := []store.Point{}
	for rows.Next() {
		var p store.Point
		if err := rows.Scan(&p.RunID, &p.Name, &p.Completed, &p.At); err != nil {
			return nil, fmt.Errorf("failed to scan point row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate points: %w", err)
	}
	return points, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Root,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Completed,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.Run{}, err
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
