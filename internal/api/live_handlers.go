package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/arewethereyet/internal/progress"
	"github.com/JakeFAU/arewethereyet/internal/tracker"
)

// listLive handles GET /v1/progress and returns every run in flight with its
// full tree.
func (s *Server) listLive(w http.ResponseWriter, _ *http.Request) {
	live := s.runs.List()
	out := make([]liveRunDTO, 0, len(live))
	for _, run := range live {
		out = append(out, toLiveRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

// getLive handles GET /v1/progress/{run_id}.
func (s *Server) getLive(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupLive(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toLiveRunDTO(run)})
}

// debugLive handles GET /v1/progress/{run_id}/debug and renders the indented
// text tree.
func (s *Server) debugLive(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupLive(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(tracker.Debug(run.Root))); err != nil {
		s.logger.Error("write debug tree failed", zap.Error(err))
	}
}

func (s *Server) lookupLive(w http.ResponseWriter, r *http.Request) (progress.LiveRun, bool) {
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return progress.LiveRun{}, false
	}
	run, ok := s.runs.Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not in progress")
		return progress.LiveRun{}, false
	}
	return run, true
}

func toLiveRunDTO(run progress.LiveRun) liveRunDTO {
	tree := tracker.Snap(run.Root)
	return liveRunDTO{
		RunID:     run.RunID.String(),
		Root:      run.Root.Name(),
		StartedAt: run.StartedAt,
		Completed: tree.Completed,
		Tree:      tree,
	}
}

type liveRunDTO struct {
	RunID     string           `json:"run_id"`
	Root      string           `json:"root"`
	StartedAt time.Time        `json:"started_at"`
	Completed float64          `json:"completed"`
	Tree      tracker.Snapshot `json:"tree"`
}
