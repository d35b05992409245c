package tracker

import (
	"fmt"
	"math"
	"sync"
)

// DefaultWeight is the weight used by Add and by callers that have no better
// estimate of a unit's relative cost.
const DefaultWeight = 1.0

// Unit pairs a child tracker with its weight inside a Group.
type Unit struct {
	Tracker Tracker
	Weight  float64
}

// Group aggregates child trackers. Its completion is the weighted mean of the
// children's completion ratios, recomputed on every call.
type Group struct {
	name   string
	events emitter

	mu    sync.RWMutex
	units []Unit
}

// NewGroup creates an empty Group.
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Name returns the group name.
func (g *Group) Name() string {
	return g.name
}

// AddUnit attaches t with the given weight and forwards every change below t
// to the group's own listeners. A weight of 0 keeps t in the tree without
// letting it contribute to the ratio. It returns t.
func (g *Group) AddUnit(t Tracker, weight float64) (Tracker, error) {
	if t == nil {
		return nil, fmt.Errorf("add unit to %q: %w", g.name, ErrNilTracker)
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		return nil, fmt.Errorf("add unit %q with weight %v: %w", t.Name(), weight, ErrInvalidWeight)
	}
	if sub, ok := t.(*Group); ok && sub.contains(g) {
		return nil, fmt.Errorf("add unit %q to %q: %w", t.Name(), g.name, ErrCycle)
	}

	g.mu.Lock()
	g.units = append(g.units, Unit{Tracker: t, Weight: weight})
	g.mu.Unlock()

	t.Subscribe(g.bubble)
	return t, nil
}

// Add attaches t with DefaultWeight.
func (g *Group) Add(t Tracker) (Tracker, error) {
	return g.AddUnit(t, DefaultWeight)
}

// NewGroup creates a named sub-group and attaches it with weight.
func (g *Group) NewGroup(name string, weight float64) (*Group, error) {
	sub := NewGroup(name)
	if _, err := g.AddUnit(sub, weight); err != nil {
		return nil, err
	}
	return sub, nil
}

// NewItem creates a Counter with todo units and attaches it with weight.
func (g *Group) NewItem(name string, todo int64, weight float64) (*Counter, error) {
	item := NewCounter(name, todo)
	if _, err := g.AddUnit(item, weight); err != nil {
		return nil, err
	}
	return item, nil
}

// NewStream creates a StreamCounter expecting size bytes (or objects in object
// mode) and attaches it with weight.
func (g *Group) NewStream(name string, size int64, weight float64, opts ...StreamOption) (*StreamCounter, error) {
	stream := NewStreamCounter(name, size, opts...)
	if _, err := g.AddUnit(stream, weight); err != nil {
		return nil, err
	}
	return stream, nil
}

// Units returns a copy of the children in insertion order.
func (g *Group) Units() []Unit {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Unit(nil), g.units...)
}

// Completed returns Σ(weight·ratio)/Σweight over all children, or 0 for a group
// without children or without any weight.
func (g *Group) Completed() float64 {
	var total, sum float64
	for _, u := range g.Units() {
		if u.Weight == 0 {
			continue
		}
		total += u.Weight
		sum += u.Weight * u.Tracker.Completed()
	}
	if total <= 0 {
		return 0
	}
	return math.Min(sum/total, 1)
}

// Finish finishes every child in insertion order. Each leaf emits its own
// change, so listeners see one notification per leaf.
func (g *Group) Finish() {
	for _, u := range g.Units() {
		u.Tracker.Finish()
	}
}

// Subscribe registers fn for changes of this group or any descendant.
func (g *Group) Subscribe(fn Listener) func() {
	return g.events.subscribe(fn)
}

// Debug renders the group and its descendants as an indented tree.
func (g *Group) Debug() string {
	return Debug(g)
}

func (g *Group) bubble(c Change) {
	name := c.Name
	if name == "" {
		name = g.name
	}
	g.events.emit(Change{Name: name, Completed: g.Completed(), Source: g})
}

// contains reports whether target is g or one of its descendant groups.
func (g *Group) contains(target *Group) bool {
	if g == target {
		return true
	}
	for _, u := range g.Units() {
		if sub, ok := u.Tracker.(*Group); ok && sub.contains(target) {
			return true
		}
	}
	return false
}
