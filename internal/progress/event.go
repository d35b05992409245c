package progress

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageChange   Stage = "CHANGE"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
)

// Event is one observation of a tracker tree.
type Event struct {
	// RunID identifies the tree being observed using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the bridge.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Root is the name of the root tracker of the run.
	Root string
	// Name is the tracker the change is attributed to (nearest named tracker).
	Name string
	// Completed is the root completion ratio at TS.
	Completed float64
	// Dur is the run duration, set on RUN_DONE and RUN_ERROR.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageChange, StageRunDone, StageRunError:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if math.IsNaN(e.Completed) || e.Completed < 0 || e.Completed > 1 {
		return fmt.Errorf("completed %v outside [0, 1]", e.Completed)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes its run.
func (e Event) Terminal() bool {
	return e.Stage == StageRunDone || e.Stage == StageRunError
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
