package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/arewethereyet/internal/tracker"
)

// LiveRun is a tracker tree currently being observed.
type LiveRun struct {
	RunID     uuid.UUID
	Root      tracker.Tracker
	StartedAt time.Time
}

// Registry indexes the runs in flight so they can be inspected while they
// progress. The zero value is not usable; a nil *Registry ignores all calls.
type Registry struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]LiveRun
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[uuid.UUID]LiveRun)}
}

// Add registers root under runID, replacing any previous entry.
func (r *Registry) Add(runID uuid.UUID, root tracker.Tracker, startedAt time.Time) {
	if r == nil || root == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runID] = LiveRun{RunID: runID, Root: root, StartedAt: startedAt}
}

// Remove forgets runID.
func (r *Registry) Remove(runID uuid.UUID) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

// Get returns the live run for runID.
func (r *Registry) Get(runID uuid.UUID) (LiveRun, bool) {
	if r == nil {
		return LiveRun{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	return run, ok
}

// List returns the live runs, oldest first.
func (r *Registry) List() []LiveRun {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]LiveRun, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID.String() < out[j].RunID.String()
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
