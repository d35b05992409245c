package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/arewethereyet/internal/store"
)

func openTestStore(t *testing.T) *ProgressStore {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestProgressStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	runID := uuid.New()
	start := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.UpsertRunStart(ctx, runID, "backup", start))
	require.NoError(t, s.UpsertRunStart(ctx, runID, "again", start))
	require.NoError(t, s.RecordProgress(ctx, runID, "photos", 0.25, start.Add(time.Second)))
	require.NoError(t, s.RecordProgress(ctx, runID, "music", 0.5, start.Add(2*time.Second)))
	msg := "disk full"
	require.NoError(t, s.CompleteRun(ctx, runID, start.Add(time.Minute), 0.5, store.RunError, &msg))

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, "backup", run.Root)
	require.Equal(t, start, run.StartedAt)
	require.Equal(t, start.Add(time.Minute), *run.FinishedAt)
	require.Equal(t, store.RunError, run.Status)
	require.Equal(t, 0.5, run.Completed)
	require.Equal(t, "disk full", *run.ErrorMessage)

	points, err := s.ListRunPoints(ctx, runID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []store.Point{
		{RunID: runID, Name: "photos", Completed: 0.25, At: start.Add(time.Second)},
		{RunID: runID, Name: "music", Completed: 0.5, At: start.Add(2 * time.Second)},
	}, points)

	points, err = s.ListRunPoints(ctx, runID, 1, 1)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "music", points[0].Name)
}

func TestProgressStoreNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	missing := uuid.New()

	_, err := s.GetRun(ctx, missing)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.RecordProgress(ctx, missing, "x", 0.1, time.Now()), store.ErrNotFound)
	require.ErrorIs(t, s.CompleteRun(ctx, missing, time.Now(), 1, store.RunSuccess, nil), store.ErrNotFound)
	_, err = s.ListRunPoints(ctx, missing, 10, 0)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestProgressStoreListRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	base := time.Unix(1700000000, 0).UTC()
	first, second := uuid.New(), uuid.New()
	require.NoError(t, s.UpsertRunStart(ctx, first, "a", base))
	require.NoError(t, s.UpsertRunStart(ctx, second, "b", base.Add(time.Minute)))
	require.NoError(t, s.CompleteRun(ctx, first, base.Add(time.Hour), 1, store.RunSuccess, nil))

	runs, err := s.ListRuns(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, second, runs[0].ID)
	require.Nil(t, runs[0].FinishedAt)
	require.Nil(t, runs[0].ErrorMessage)

	success := store.RunSuccess
	runs, err = s.ListRuns(ctx, &success, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, first, runs[0].ID)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	require.Error(t, err)
}
