package engine

import (
	"fmt"
	"time"

	"chorder/internal/keys"
)

// EventKind distinguishes press from release.
type EventKind uint8

const (
	Pressed EventKind = iota + 1
	Released
)

// String returns "press" or "release".
func (k EventKind) String() string {
	switch k {
	case Pressed:
		return "press"
	case Released:
		return "release"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is one debounced key transition. A zero At is stamped by the
// engine's clock when the event is handled.
type Event struct {
	Key  keys.Index
	Kind EventKind
	At   time.Time
}

// Press returns a press event for key k.
func Press(k keys.Index) Event {
	return Event{Key: k, Kind: Pressed}
}

// Release returns a release event for key k.
func Release(k keys.Index) Event {
	return Event{Key: k, Kind: Released}
}

func (e Event) String() string {
	sign := "+"
	if e.Kind == Released {
		sign = "-"
	}
	return fmt.Sprintf("%s%d", sign, e.Key)
}

// Source delivers events without blocking. Poll returns ok=false when no
// event is available. io.EOF ends the stream cleanly; any other error is
// fatal to the run loop.
type Source interface {
	Poll() (ev Event, ok bool, err error)
}
