package tracker

import (
	"fmt"
	"sync"
)

// Counter tracks completed units out of a total amount of work to do.
type Counter struct {
	name   string
	events emitter

	mu   sync.Mutex
	todo int64
	done int64
}

// NewCounter creates a Counter with todo units of work. A negative todo is
// treated as zero.
func NewCounter(name string, todo int64) *Counter {
	return &Counter{name: name, todo: max(todo, 0)}
}

// Name returns the counter name.
func (c *Counter) Name() string {
	return c.name
}

// Completed returns done/todo, or 0 when there is nothing to do.
func (c *Counter) Completed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ratio(c.done, c.todo)
}

// Todo returns the total amount of work.
func (c *Counter) Todo() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.todo
}

// Done returns the amount of work completed so far.
func (c *Counter) Done() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// AddWork grows the amount of work to do by n, lowering the completion ratio.
func (c *Counter) AddWork(n int64) error {
	if n < 0 {
		return fmt.Errorf("add work %d to %q: %w", n, c.name, ErrNegativeWork)
	}
	c.mu.Lock()
	c.todo += n
	completed := ratio(c.done, c.todo)
	c.mu.Unlock()

	c.events.emit(Change{Name: c.name, Completed: completed, Source: c})
	return nil
}

// CompleteWork records n more units as done. Completion never exceeds the
// amount of work to do; the excess is discarded.
func (c *Counter) CompleteWork(n int64) error {
	if n < 0 {
		return fmt.Errorf("complete work %d on %q: %w", n, c.name, ErrNegativeWork)
	}
	c.mu.Lock()
	if n > c.todo-c.done {
		c.done = c.todo
	} else {
		c.done += n
	}
	completed := ratio(c.done, c.todo)
	c.mu.Unlock()

	c.events.emit(Change{Name: c.name, Completed: completed, Source: c})
	return nil
}

// Finish marks all work as done. A counter with nothing to do stays at 0.
func (c *Counter) Finish() {
	c.mu.Lock()
	c.done = c.todo
	completed := ratio(c.done, c.todo)
	c.mu.Unlock()

	c.events.emit(Change{Name: c.name, Completed: completed, Source: c})
}

// Subscribe registers fn for change notifications.
func (c *Counter) Subscribe(fn Listener) func() {
	return c.events.subscribe(fn)
}

func ratio(done, todo int64) float64 {
	if todo <= 0 {
		return 0
	}
	return float64(done) / float64(todo)
}
