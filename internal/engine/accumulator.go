package engine

import (
	"time"

	"chorder/internal/chord"
	"chorder/internal/keys"
)

// AccumulatorState is a copy of the accumulator's state.
type AccumulatorState struct {
	Pressed chord.Combo
	Hot     bool
}

// Idle reports whether no chord is being built and no key is down.
func (s AccumulatorState) Idle() bool {
	return !s.Hot && s.Pressed.IsEmpty()
}

// Accumulator turns per-key press and release events into sampling edges.
// The first release after a press samples every key held at that instant,
// the released key included. Later releases only drain the pressed set.
//
// An Accumulator is not safe for concurrent use.
type Accumulator struct {
	pressed  chord.Combo
	hot      bool
	hotSince time.Time
}

// Press marks k as down and opens a hot window. It reports false if k was
// already down; the window is still marked hot.
func (a *Accumulator) Press(k keys.Index, at time.Time) bool {
	if !a.hot {
		a.hotSince = at
	}
	a.hot = true
	if a.pressed.Has(k) {
		return false
	}
	a.pressed = a.pressed.With(k)
	return true
}

// Release lifts k. If k is down and the window is hot, sample is called
// with the held combination (k included) and the time since the window
// opened, before k is removed. Releasing a key that is not down changes
// nothing. Release reports whether sample was called.
func (a *Accumulator) Release(k keys.Index, at time.Time, sample func(chord.Combo, time.Duration)) bool {
	if !a.pressed.Has(k) {
		return false
	}
	sampled := false
	if a.hot {
		var held time.Duration
		if !a.hotSince.IsZero() && !at.IsZero() {
			held = at.Sub(a.hotSince)
		}
		if sample != nil {
			sample(a.pressed, held)
		}
		sampled = true
	}
	a.pressed = a.pressed.Without(k)
	a.hot = false
	return sampled
}

// State returns a copy of the current state.
func (a *Accumulator) State() AccumulatorState {
	return AccumulatorState{Pressed: a.pressed, Hot: a.hot}
}

// Reset returns the accumulator to idle.
func (a *Accumulator) Reset() {
	*a = Accumulator{}
}
