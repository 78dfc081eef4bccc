// Package keys declares the physical switch set of the keyboard.
//
// A Registry is built once at startup from the wiring description and is
// read-only afterwards. Registration order assigns each key its index, which
// is the number the event source reports and the chord table refers to.
// Order also drives on-screen layout; it carries no chord semantics.
package keys

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// MaxKeys is the largest number of keys a registry can hold. Chord
// combinations are stored as 16-bit masks.
const MaxKeys = 16

var (
	// ErrDuplicateKey is returned when a pin or abbreviation is registered twice.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrRegistryFrozen is returned by Add after Freeze.
	ErrRegistryFrozen = errors.New("key registry is frozen")

	// ErrRegistryFull is returned when more than MaxKeys keys are added.
	ErrRegistryFull = errors.New("key registry is full")

	// ErrInvalidKey is returned for a descriptor with an empty pin or abbreviation.
	ErrInvalidKey = errors.New("invalid key descriptor")
)

// Index identifies a key by its registration order.
type Index uint8

// Descriptor describes one physical switch.
type Descriptor struct {
	// Index is the stable registry position of the key.
	Index Index `json:"index"`

	// Pin is the physical pin identifier. It is opaque to the engine and
	// interpreted only by the event source (for evdev it is a key code).
	Pin string `json:"pin"`

	// Abbrev is the short label shown on screen and used in chord tables.
	Abbrev string `json:"abbrev"`

	// Description is the human readable name of the key.
	Description string `json:"description"`
}

// String returns "N (Near)".
func (d Descriptor) String() string {
	if d.Description == "" {
		return d.Abbrev
	}
	return fmt.Sprintf("%s (%s)", d.Abbrev, d.Description)
}

// Registry is an ordered, append-only set of key descriptors.
type Registry struct {
	mu       sync.RWMutex
	keys     []Descriptor
	byPin    map[string]Index
	byAbbrev map[string]Index
	frozen   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byPin:    make(map[string]Index),
		byAbbrev: make(map[string]Index),
	}
}

// Add registers a key and returns its descriptor. The new key receives the
// next free index.
func (r *Registry) Add(pin, abbrev, description string) (Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return Descriptor{}, ErrRegistryFrozen
	}
	if pin == "" || abbrev == "" {
		return Descriptor{}, fmt.Errorf("%w: pin %q abbrev %q", ErrInvalidKey, pin, abbrev)
	}
	if len(r.keys) >= MaxKeys {
		return Descriptor{}, ErrRegistryFull
	}
	if idx, ok := r.byPin[pin]; ok {
		return Descriptor{}, fmt.Errorf("%w: pin %q already used by key %d", ErrDuplicateKey, pin, idx)
	}
	norm := strings.ToUpper(abbrev)
	if idx, ok := r.byAbbrev[norm]; ok {
		return Descriptor{}, fmt.Errorf("%w: abbreviation %q already used by key %d", ErrDuplicateKey, abbrev, idx)
	}

	d := Descriptor{
		Index:       Index(len(r.keys)),
		Pin:         pin,
		Abbrev:      abbrev,
		Description: description,
	}
	r.keys = append(r.keys, d)
	r.byPin[pin] = d.Index
	r.byAbbrev[norm] = d.Index
	return d, nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Keys returns the descriptors in registration order.
func (r *Registry) Keys() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.keys))
	copy(out, r.keys)
	return out
}

// Pins returns the pin identifiers in registration order.
func (r *Registry) Pins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pins := make([]string, len(r.keys))
	for i, k := range r.keys {
		pins[i] = k.Pin
	}
	return pins
}

// ByIndex returns the descriptor registered at idx.
func (r *Registry) ByIndex(idx Index) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(idx) >= len(r.keys) {
		return Descriptor{}, false
	}
	return r.keys[idx], true
}

// ByPin returns the descriptor wired to pin.
func (r *Registry) ByPin(pin string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byPin[pin]
	if !ok {
		return Descriptor{}, false
	}
	return r.keys[idx], true
}

// ByAbbrev returns the descriptor with the given abbreviation. The match is
// case-insensitive.
func (r *Registry) ByAbbrev(abbrev string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byAbbrev[strings.ToUpper(abbrev)]
	if !ok {
		return Descriptor{}, false
	}
	return r.keys[idx], true
}

// Contains reports whether idx is a registered key.
func (r *Registry) Contains(idx Index) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(idx) < len(r.keys)
}
