package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("progress record not found")

// RunStatus mirrors the runs.status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// ParseRunStatus accepts the persisted values plus a few common aliases.
func ParseRunStatus(input string) (RunStatus, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "running":
		return RunRunning, nil
	case "success", "done":
		return RunSuccess, nil
	case "error", "failed", "failure":
		return RunError, nil
	default:
		return "", fmt.Errorf("invalid run status %q", input)
	}
}

// Run models one observed tracker tree.
type Run struct {
	// ID is the run identifier shared with progress events.
	ID uuid.UUID
	// Root is the name of the root tracker.
	Root string
	// StartedAt captures when the run was first seen.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// Completed is the most recent root completion ratio.
	Completed float64
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// Point is one recorded completion observation of a run.
type Point struct {
	RunID uuid.UUID
	// Name is the tracker the change was attributed to.
	Name      string
	Completed float64
	At        time.Time
}

// ProgressRepository persists run lifecycle and completion history.
type ProgressRepository interface {
	// UpsertRunStart inserts (or idempotently keeps) a running run.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, root string, startedAt time.Time) error
	// RecordProgress appends a completion point and updates the run's latest ratio.
	RecordProgress(ctx context.Context, runID uuid.UUID, name string, completed float64, at time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(
		ctx context.Context,
		runID uuid.UUID,
		finishedAt time.Time,
		completed float64,
		status RunStatus,
		errMsg *string,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status, newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunPoints returns the completion history of one run, oldest first.
	ListRunPoints(ctx context.Context, runID uuid.UUID, limit, offset int) ([]Point, error)
}
