package tracker

import (
	"strconv"
	"strings"
)

const unnamedLabel = "(unnamed)"

// Kinds reported in a Snapshot.
const (
	KindGroup   = "group"
	KindCounter = "counter"
	KindStream  = "stream"
	KindOther   = "other"
)

// Snapshot is a read-only view of a tracker tree at one point in time.
type Snapshot struct {
	Name      string     `json:"name,omitempty"`
	Kind      string     `json:"kind"`
	Completed float64    `json:"completed"`
	Weight    float64    `json:"weight,omitempty"`
	Todo      int64      `json:"todo,omitempty"`
	Done      int64      `json:"done,omitempty"`
	Children  []Snapshot `json:"children,omitempty"`
}

// Debug renders t and, for groups, every descendant on its own line, indented
// two spaces per level:
//
//	(unnamed): 0.5
//	  download: 1
//	  extract: 0
func Debug(t Tracker) string {
	var sb strings.Builder
	writeDebug(&sb, t, 0)
	return sb.String()
}

func writeDebug(sb *strings.Builder, t Tracker, depth int) {
	name := t.Name()
	if name == "" {
		name = unnamedLabel
	}
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(name)
	sb.WriteString(": ")
	sb.WriteString(FormatRatio(t.Completed()))
	sb.WriteByte('\n')
	if g, ok := t.(*Group); ok {
		for _, u := range g.Units() {
			writeDebug(sb, u.Tracker, depth+1)
		}
	}
}

// FormatRatio formats a completion ratio with the fewest digits that
// round-trip.
func FormatRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Snap captures t and its descendants.
func Snap(t Tracker) Snapshot {
	return snap(t, 0)
}

func snap(t Tracker, weight float64) Snapshot {
	s := Snapshot{
		Name:      t.Name(),
		Completed: t.Completed(),
		Weight:    weight,
	}
	switch v := t.(type) {
	case *Group:
		s.Kind = KindGroup
		for _, u := range v.Units() {
			s.Children = append(s.Children, snap(u.Tracker, u.Weight))
		}
	case *Counter:
		s.Kind = KindCounter
		s.Todo, s.Done = v.Todo(), v.Done()
	case *StreamCounter:
		s.Kind = KindStream
		s.Todo, s.Done = v.Todo(), v.Done()
	default:
		s.Kind = KindOther
	}
	return s
}
