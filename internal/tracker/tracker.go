package tracker

import (
	"errors"
	"sync"
)

var (
	// ErrNegativeWork is returned when AddWork or CompleteWork receive a delta below zero.
	ErrNegativeWork = errors.New("work delta must be >= 0")
	// ErrInvalidWeight is returned for negative, NaN or infinite unit weights.
	ErrInvalidWeight = errors.New("weight must be a finite number >= 0")
	// ErrNilTracker is returned when a nil tracker is attached to a Group.
	ErrNilTracker = errors.New("tracker is required")
	// ErrCycle is returned when attaching a Group would make it its own descendant.
	ErrCycle = errors.New("group cannot contain itself")
)

// Change is delivered to listeners whenever the completion of a tracker, or of
// anything beneath it, changes.
type Change struct {
	// Name is the name of the tracker that originated the change, or the name of
	// the closest enclosing group that has one.
	Name string
	// Completed is the ratio reported by Source at delivery time.
	Completed float64
	// Source is the tracker the listener subscribed to.
	Source Tracker
}

// Listener receives change notifications. It runs synchronously on the
// goroutine that mutated the tree and must not block.
type Listener func(Change)

// Tracker is the capability set shared by Counter, Group and StreamCounter.
type Tracker interface {
	// Name returns the optional tracker name ("" when unnamed).
	Name() string
	// Completed returns the ratio of completed work in [0, 1].
	Completed() float64
	// Finish marks all work beneath the tracker as done.
	Finish()
	// Subscribe registers fn for change notifications and returns a function
	// that removes it again.
	Subscribe(fn Listener) (unsubscribe func())
}

type subscription struct {
	id uint64
	fn Listener
}

// emitter is the listener registry embedded in every tracker. Delivery works
// on a copy of the registry so listeners may subscribe or unsubscribe while a
// change is in flight.
type emitter struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []subscription
}

func (e *emitter) subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, subscription{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.unsubscribe(id) })
	}
}

func (e *emitter) unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.listeners {
		if sub.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

func (e *emitter) emit(c Change) {
	e.mu.Lock()
	subs := append([]subscription(nil), e.listeners...)
	e.mu.Unlock()
	for _, sub := range subs {
		sub.fn(c)
	}
}
