package sinks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/arewethereyet/internal/progress"
)

// DefaultThresholds are the completion ratios announced by a MilestoneSink.
var DefaultThresholds = []float64{0.25, 0.5, 0.75, 1}

// Publisher delivers a payload to a named topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Milestone is the payload published when a run crosses a threshold or fails.
type Milestone struct {
	RunID     string    `json:"run_id"`
	Root      string    `json:"root"`
	Name      string    `json:"name,omitempty"`
	Stage     string    `json:"stage"`
	Threshold float64   `json:"threshold"`
	Completed float64   `json:"completed"`
	At        time.Time `json:"at"`
	Note      string    `json:"note,omitempty"`
}

// MilestoneSink publishes one message per threshold crossed by a run's root
// ratio, plus one message when a run fails. Each threshold is announced at
// most once per run, even if several are crossed within one event.
type MilestoneSink struct {
	pub        Publisher
	topic      string
	thresholds []float64
	logger     *zap.Logger

	mu   sync.Mutex
	next map[[16]byte]int
}

// NewMilestoneSink constructs a MilestoneSink. Empty thresholds fall back to
// DefaultThresholds; values are sorted and clamped to (0, 1].
func NewMilestoneSink(pub Publisher, topic string, thresholds []float64, logger *zap.Logger) *MilestoneSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	clean := make([]float64, 0, len(thresholds))
	for _, th := range thresholds {
		if th > 0 && th <= 1 {
			clean = append(clean, th)
		}
	}
	slices.Sort(clean)
	return &MilestoneSink{
		pub:        pub,
		topic:      topic,
		thresholds: slices.Compact(clean),
		logger:     logger,
		next:       make(map[[16]byte]int),
	}
}

// Consume publishes the milestones reached in batch. Publish failures are
// returned after the remaining events have been processed.
func (s *MilestoneSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var firstErr error
	for _, evt := range batch {
		for _, m := range s.reached(evt) {
			id, err := s.pub.Publish(ctx, s.topic, m)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("publish milestone: %w", err)
				}
				continue
			}
			s.logger.Debug("milestone published",
				zap.String("message_id", id),
				zap.String("run_id", m.RunID),
				zap.Float64("threshold", m.Threshold))
		}
	}
	return firstErr
}

// reached advances the per-run cursor and returns the milestones to publish.
func (s *MilestoneSink) reached(evt progress.Event) []Milestone {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := Milestone{
		RunID:     evt.RunUUID().String(),
		Root:      evt.Root,
		Name:      evt.Name,
		Stage:     string(evt.Stage),
		Completed: evt.Completed,
		At:        evt.TS,
	}
	var out []Milestone
	switch evt.Stage {
	case progress.StageRunStart:
		s.next[evt.RunID] = 0
		return nil
	case progress.StageRunError:
		delete(s.next, evt.RunID)
		base.Note = evt.Note
		return append(out, base)
	}

	idx := s.next[evt.RunID]
	for idx < len(s.thresholds) && evt.Completed >= s.thresholds[idx] {
		m := base
		m.Threshold = s.thresholds[idx]
		out = append(out, m)
		idx++
	}
	if evt.Terminal() {
		delete(s.next, evt.RunID)
	} else {
		s.next[evt.RunID] = idx
	}
	return out
}

// Close implements the Sink interface; it forgets all run state.
func (s *MilestoneSink) Close(context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.next)
	return nil
}
