package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/arewethereyet/internal/progress"
	"github.com/JakeFAU/arewethereyet/internal/storage/memory"
	"github.com/JakeFAU/arewethereyet/internal/store"
)

// TestStoreSinkPersistsEvents ensures change events collapse to the last one per run.
func TestStoreSinkPersistsEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewProgressStore()
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, Root: "backup", TS: now},
		{RunID: runID, Stage: progress.StageChange, Root: "backup", Name: "photos", Completed: 0.25, TS: now.Add(time.Second)},
		{RunID: runID, Stage: progress.StageChange, Root: "backup", Name: "music", Completed: 0.5, TS: now.Add(2 * time.Second)},
	}))

	points, err := repo.ListRunPoints(ctx, runUUID, 10, 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "music", points[0].Name)
	require.Equal(t, 0.5, points[0].Completed)

	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{RunID: runID, Stage: progress.StageChange, Root: "backup", Name: "photos", Completed: 1, TS: now.Add(3 * time.Second)},
		{RunID: runID, Stage: progress.StageRunDone, Root: "backup", Completed: 1, TS: now.Add(4 * time.Second)},
	}))

	run, err := repo.GetRun(ctx, runUUID)
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, run.Status)
	require.Equal(t, 1.0, run.Completed)
	require.Nil(t, run.ErrorMessage)

	points, err = repo.ListRunPoints(ctx, runUUID, 10, 0)
	require.NoError(t, err)
	require.Len(t, points, 2)
}

// TestStoreSinkRecordsFailure stores the error note on RUN_ERROR.
func TestStoreSinkRecordsFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewProgressStore()
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, Root: "backup", TS: now},
		{RunID: runID, Stage: progress.StageRunError, Root: "backup", Completed: 0.4, Note: "disk full", TS: now},
	}))

	run, err := repo.GetRun(ctx, runUUID)
	require.NoError(t, err)
	require.Equal(t, store.RunError, run.Status)
	require.Equal(t, "disk full", *run.ErrorMessage)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(failingRepo{}, nil)
	runID := progress.UUIDToBytes(uuid.New())
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: time.Now()},
	})
	require.ErrorContains(t, err, "upsert run start")

	err = sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageChange, TS: time.Now()},
	})
	require.ErrorContains(t, err, "record progress")

	var nilSink *StoreSink
	require.NoError(t, nilSink.Consume(context.Background(), nil))
}

var errRepo = errors.New("repository unavailable")

type failingRepo struct{}

func (failingRepo) UpsertRunStart(context.Context, uuid.UUID, string, time.Time) error {
	return errRepo
}

func (failingRepo) RecordProgress(context.Context, uuid.UUID, string, float64, time.Time) error {
	return errRepo
}

func (failingRepo) CompleteRun(context.Context, uuid.UUID, time.Time, float64, store.RunStatus, *string) error {
	return errRepo
}

func (failingRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, errRepo
}

func (failingRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, errRepo
}

func (failingRepo) ListRunPoints(context.Context, uuid.UUID, int, int) ([]store.Point, error) {
	return nil, errRepo
}
