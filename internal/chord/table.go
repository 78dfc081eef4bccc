package chord

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicateCombo is returned when a combination appears twice in one mode.
	ErrDuplicateCombo = errors.New("duplicate chord combination")

	// ErrEmptyCombo is returned for a chord with no keys.
	ErrEmptyCombo = errors.New("empty chord combination")

	// ErrUnknownMode is returned when a chord or the initial mode names a mode
	// the table does not define.
	ErrUnknownMode = errors.New("unknown mode")

	// ErrUnknownKey is returned when a chord refers to a key that is not registered.
	ErrUnknownKey = errors.New("unknown key")

	// ErrEmptyTable is returned when a table defines no modes.
	ErrEmptyTable = errors.New("chord table defines no modes")
)

// Mode names a modal context selecting one sub-table.
type Mode string

// Token is the abstract output of a resolved chord.
type Token string

// Entry is the result of a successful lookup.
type Entry struct {
	Token Token
	Next  Mode
}

// Chord is a single table row.
type Chord struct {
	Combo Combo
	Entry
}

// ModeTable is the set of chords active in one mode.
type ModeTable struct {
	mode    Mode
	entries map[Combo]Entry
}

// Mode returns the mode the table belongs to.
func (m *ModeTable) Mode() Mode {
	return m.mode
}

// Len returns the number of chords in the mode.
func (m *ModeTable) Len() int {
	return len(m.entries)
}

// Table maps (mode, combination) to an entry. A Table is immutable once built.
type Table struct {
	initial Mode
	modes   map[Mode]*ModeTable
	order   []Mode
}

// Lookup resolves combo in mode. A missing mode or combination is a miss.
func (t *Table) Lookup(mode Mode, combo Combo) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	mt, ok := t.modes[mode]
	if !ok {
		return Entry{}, false
	}
	e, ok := mt.entries[combo]
	return e, ok
}

// Initial returns the mode the engine starts in.
func (t *Table) Initial() Mode {
	return t.initial
}

// HasMode reports whether the table defines mode.
func (t *Table) HasMode(mode Mode) bool {
	if t == nil {
		return false
	}
	_, ok := t.modes[mode]
	return ok
}

// Modes returns the defined modes in declaration order.
func (t *Table) Modes() []Mode {
	out := make([]Mode, len(t.order))
	copy(out, t.order)
	return out
}

// Chords returns the chords of mode sorted by key count, then combination.
func (t *Table) Chords(mode Mode) []Chord {
	mt, ok := t.modes[mode]
	if !ok {
		return nil
	}
	out := make([]Chord, 0, len(mt.entries))
	for c, e := range mt.entries {
		out = append(out, Chord{Combo: c, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool {
		if li, lj := out[i].Combo.Len(), out[j].Combo.Len(); li != lj {
			return li < lj
		}
		return out[i].Combo < out[j].Combo
	})
	return out
}

// Len returns the total number of chords across all modes.
func (t *Table) Len() int {
	n := 0
	for _, mt := range t.modes {
		n += mt.Len()
	}
	return n
}

// Builder accumulates chords and validates them into a Table.
type Builder struct {
	initial Mode
	modes   map[Mode]*ModeTable
	order   []Mode
}

// NewBuilder starts a table whose engine starts in initial.
func NewBuilder(initial Mode) *Builder {
	return &Builder{
		initial: initial,
		modes:   make(map[Mode]*ModeTable),
	}
}

// AddMode declares mode without any chords. Declaring a mode twice is a no-op.
func (b *Builder) AddMode(mode Mode) {
	if _, ok := b.modes[mode]; ok {
		return
	}
	b.modes[mode] = &ModeTable{mode: mode, entries: make(map[Combo]Entry)}
	b.order = append(b.order, mode)
}

// Add registers combo in mode. An empty next keeps the engine in mode.
func (b *Builder) Add(mode Mode, combo Combo, token Token, next Mode) error {
	if combo.IsEmpty() {
		return fmt.Errorf("mode %s token %q: %w", mode, token, ErrEmptyCombo)
	}
	if next == "" {
		next = mode
	}
	b.AddMode(mode)
	mt := b.modes[mode]
	if prev, ok := mt.entries[combo]; ok {
		return fmt.Errorf("mode %s combo %s (%q and %q): %w", mode, combo, prev.Token, token, ErrDuplicateCombo)
	}
	mt.entries[combo] = Entry{Token: token, Next: next}
	return nil
}

// Build validates the accumulated chords and returns the table.
func (b *Builder) Build() (*Table, error) {
	if len(b.modes) == 0 {
		return nil, ErrEmptyTable
	}
	initial := b.initial
	if initial == "" {
		initial = b.order[0]
	}
	if _, ok := b.modes[initial]; !ok {
		return nil, fmt.Errorf("initial mode %s: %w", initial, ErrUnknownMode)
	}
	for _, mode := range b.order {
		for combo, e := range b.modes[mode].entries {
			if _, ok := b.modes[e.Next]; !ok {
				return nil, fmt.Errorf("mode %s combo %s next %s: %w", mode, combo, e.Next, ErrUnknownMode)
			}
		}
	}

	t := &Table{
		initial: initial,
		modes:   b.modes,
		order:   b.order,
	}
	// The builder must not mutate a published table.
	b.modes = make(map[Mode]*ModeTable)
	b.order = nil
	return t, nil
}
