//go:build !linux

package source

import (
	"chorder/internal/engine"
	"chorder/internal/keys"
)

// Evdev is only available on Linux.
type Evdev struct{}

// OpenEvdev returns ErrUnsupported.
func OpenEvdev(path string, reg *keys.Registry, grab bool) (*Evdev, error) {
	return nil, ErrUnsupported
}

func (d *Evdev) Poll() (engine.Event, bool, error) {
	return engine.Event{}, false, ErrUnsupported
}

func (d *Evdev) Close() error { return nil }
