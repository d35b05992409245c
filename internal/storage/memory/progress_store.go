package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/arewethereyet/internal/store"
)

// ProgressStore implements store.ProgressRepository in memory.
type ProgressStore struct {
	mu     sync.RWMutex
	runs   map[uuid.UUID]store.Run
	points map[uuid.UUID][]store.Point
}

// NewProgressStore constructs an empty ProgressStore.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		runs:   make(map[uuid.UUID]store.Run),
		points: make(map[uuid.UUID][]store.Point),
	}
}

// UpsertRunStart registers a running run; an existing run is left untouched.
func (s *ProgressStore) UpsertRunStart(_ context.Context, runID uuid.UUID, root string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return nil
	}
	s.runs[runID] = store.Run{
		ID:        runID,
		Root:      root,
		StartedAt: startedAt,
		Status:    store.RunRunning,
	}
	return nil
}

// RecordProgress appends a point and updates the latest ratio of the run.
func (s *ProgressStore) RecordProgress(
	_ context.Context,
	runID uuid.UUID,
	name string,
	completed float64,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.Completed = completed
	s.runs[runID] = run
	s.points[runID] = append(s.points[runID], store.Point{
		RunID:     runID,
		Name:      name,
		Completed: completed,
		At:        at,
	})
	return nil
}

// CompleteRun marks the run finished.
func (s *ProgressStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	completed float64,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Completed = completed
	run.Status = status
	run.ErrorMessage = errMsg
	s.runs[runID] = run
	return nil
}

// GetRun loads a run or returns store.ErrNotFound.
func (s *ProgressStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *ProgressStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return page(runs, limit, offset), nil
}

// ListRunPoints returns the history of one run, oldest first.
func (s *ProgressStore) ListRunPoints(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, store.ErrNotFound
	}
	return page(append([]store.Point(nil), s.points[runID]...), limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	offset = max(offset, 0)
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
