package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/arewethereyet/internal/progress"
)

const unnamedLabel = "unnamed"

// PrometheusSink exports tracker progress via Prometheus. It owns the
// collectors for runs started/completed/running, the latest completion ratio
// per root and change counts per attributed tracker.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	completion *prometheus.GaugeVec
	changes    *prometheus.CounterVec

	runs *runSet
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "awty_runs_started_total",
			Help: "Total tracker runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "awty_runs_completed_total",
			Help: "Total tracker runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "awty_runs_running",
			Help: "Current number of running tracker runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "awty_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 1200},
		}, []string{"result"}),
		completion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "awty_completion_ratio",
			Help: "Latest completion ratio reported by a root tracker.",
		}, []string{"root"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "awty_changes_total",
			Help: "Change notifications partitioned by the tracker they were attributed to.",
		}, []string{"name"}),
		runs: newRunSet(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.completion,
		s.changes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	s.completion.WithLabelValues(label(evt.Root)).Set(evt.Completed)
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.runs.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageChange:
		s.changes.WithLabelValues(label(evt.Name)).Inc()
	case progress.StageRunDone:
		s.finish(evt, "success")
	case progress.StageRunError:
		s.finish(evt, "error")
	}
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.runs.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func label(name string) string {
	if name == "" {
		return unnamedLabel
	}
	return name
}

type runSet struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunSet() *runSet {
	return &runSet{running: make(map[[16]byte]struct{})}
}

func (r *runSet) start(id [16]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[id]; ok {
		return false
	}
	r.running[id] = struct{}{}
	return true
}

func (r *runSet) complete(id [16]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[id]; !ok {
		return false
	}
	delete(r.running, id)
	return true
}
