package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/arewethereyet/internal/clock/system"
	"github.com/JakeFAU/arewethereyet/internal/tracker"
)

// Bridge relays the changes of one tracker tree to an Emitter as the events of
// a single run. The tree keeps delivering changes synchronously; the bridge
// only copies them into events, so a slow sink never stalls a tracker.
type Bridge struct {
	runID   [16]byte
	root    tracker.Tracker
	emitter Emitter
	clock   Clock
	started time.Time

	unsubscribe func()
	doneOnce    sync.Once
}

// Attach emits RUN_START for root and forwards every subsequent change as a
// CHANGE event until Done is called. A nil clock uses the system clock.
func Attach(root tracker.Tracker, runID uuid.UUID, emitter Emitter, clock Clock) *Bridge {
	if clock == nil {
		clock = system.New()
	}
	b := &Bridge{
		runID:   UUIDToBytes(runID),
		root:    root,
		emitter: emitter,
		clock:   clock,
		started: clock.Now(),
	}
	b.emit(Event{
		TS:        b.started,
		Stage:     StageRunStart,
		Name:      root.Name(),
		Completed: root.Completed(),
	})
	b.unsubscribe = root.Subscribe(b.onChange)
	return b
}

// RunID returns the run identifier.
func (b *Bridge) RunID() uuid.UUID {
	return uuid.UUID(b.runID)
}

// StartedAt returns the RUN_START timestamp.
func (b *Bridge) StartedAt() time.Time {
	return b.started
}

// Root returns the observed tree.
func (b *Bridge) Root() tracker.Tracker {
	return b.root
}

// Done detaches the bridge and emits RUN_DONE, or RUN_ERROR when err is
// non-nil. Only the first call has an effect.
func (b *Bridge) Done(err error) {
	b.doneOnce.Do(func() {
		b.unsubscribe()
		now := b.clock.Now()
		evt := Event{
			TS:        now,
			Stage:     StageRunDone,
			Name:      b.root.Name(),
			Completed: b.root.Completed(),
			Dur:       max(now.Sub(b.started), 0),
		}
		if err != nil {
			evt.Stage = StageRunError
			evt.Note = err.Error()
		}
		b.emit(evt)
	})
}

func (b *Bridge) onChange(c tracker.Change) {
	b.emit(Event{
		TS:        b.clock.Now(),
		Stage:     StageChange,
		Name:      c.Name,
		Completed: c.Completed,
	})
}

func (b *Bridge) emit(evt Event) {
	if b.emitter == nil {
		return
	}
	evt.RunID = b.runID
	evt.Root = b.root.Name()
	b.emitter.Emit(evt)
}
