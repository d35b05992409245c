package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StageChange)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWithoutConsumers asserts Emit never blocks callers and counts drops.
func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageChange))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, Stats{Dropped: 1}, hub.Stats())
}

// TestHubDiscardsInvalidEvents ensures events failing validation never reach sinks.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	bad := sampleEvent(StageChange)
	bad.Completed = 1.5
	hub.Emit(bad)
	hub.Emit(Event{})

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
	require.Zero(t, hub.Stats().Accepted)
}

// TestHubFlushOnClose ensures Close drains any buffered events and closes sinks.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink, nil)

	hub.Emit(sampleEvent(StageRunStart))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.Closed())

	hub.Emit(sampleEvent(StageChange))
	require.Equal(t, int64(1), hub.Stats().Accepted)
}

// TestHubSinkErrorsDoNotStopFanout verifies a failing sink does not starve the next one.
func TestHubSinkErrorsDoNotStopFanout(t *testing.T) {
	t.Parallel()

	failing := sinkFunc(func(context.Context, []Event) error { return errors.New("boom") })
	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, failing, sink)

	hub.Emit(sampleEvent(StageChange))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

// TestHubNilSafe ensures a nil hub can be used as a no-op emitter.
func TestHubNilSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(sampleEvent(StageChange))
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, Stats{}, hub.Stats())
}

// TestEventValidate covers the validation rules.
func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Event)
		want   string
	}{
		{name: "missing run", mutate: func(e *Event) { e.RunID = [16]byte{} }, want: "run id"},
		{name: "missing ts", mutate: func(e *Event) { e.TS = time.Time{} }, want: "timestamp"},
		{name: "unknown stage", mutate: func(e *Event) { e.Stage = "NOPE" }, want: "unknown stage"},
		{name: "negative ratio", mutate: func(e *Event) { e.Completed = -0.1 }, want: "outside"},
		{name: "negative dur", mutate: func(e *Event) { e.Dur = -time.Second }, want: "duration"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			evt := sampleEvent(StageChange)
			tt.mutate(&evt)
			require.ErrorContains(t, evt.Validate(), tt.want)
		})
	}
	require.NoError(t, sampleEvent(StageRunDone).Validate())
	require.True(t, sampleEvent(StageRunError).Terminal())
	require.False(t, sampleEvent(StageChange).Terminal())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func (s *stubSink) Events() []Event {
	var out []Event
	for _, b := range s.Batches() {
		out = append(out, b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	return Event{
		RunID:     UUIDToBytes(uuid.New()),
		TS:        time.Now(),
		Stage:     stage,
		Root:      "root",
		Name:      "item",
		Completed: 0.5,
	}
}
