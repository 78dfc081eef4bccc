package source

import (
	"io"
	"sync"
	"unicode"

	"github.com/gdamore/tcell/v2"

	"chorder/internal/chord"
	"chorder/internal/engine"
	"chorder/internal/keys"
)

// Terminal simulates the keyboard on a tcell screen. Typing a key's
// abbreviation (or its index digit) toggles it down and up, Space releases
// every held key in index order, and Esc or Ctrl-C ends the stream. F1 to
// F3 stand in for the navigation buttons D0 to D2.
type Terminal struct {
	screen tcell.Screen
	reg    *keys.Registry

	events    chan tcell.Event
	done      chan struct{}
	closeOnce sync.Once

	// Poll side only.
	pending []engine.Event
	held    chord.Combo
	ended   bool
	nav     func(slot int)
}

// NewTerminal starts reading events from screen, which must already be
// initialised. The caller keeps ownership of screen.
func NewTerminal(screen tcell.Screen, reg *keys.Registry) *Terminal {
	t := &Terminal{
		screen: screen,
		reg:    reg,
		events: make(chan tcell.Event, 100),
		done:   make(chan struct{}),
	}
	go t.pump()
	return t
}

func (t *Terminal) pump() {
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case t.events <- ev:
		case <-t.done:
			return
		}
	}
}

// Poll returns the next translated key event.
func (t *Terminal) Poll() (engine.Event, bool, error) {
	for len(t.pending) == 0 && !t.ended {
		select {
		case ev := <-t.events:
			t.handle(ev)
		default:
			return engine.Event{}, false, nil
		}
	}
	if len(t.pending) == 0 {
		return engine.Event{}, false, io.EOF
	}
	ev := t.pending[0]
	t.pending = t.pending[1:]
	return ev, true, nil
}

// OnNav sets the handler for the navigation keys. It runs on the goroutine
// calling Poll and must be set before polling starts.
func (t *Terminal) OnNav(fn func(slot int)) {
	t.nav = fn
}

// Held returns the keys the terminal currently considers down.
func (t *Terminal) Held() chord.Combo {
	return t.held
}

// Reset forgets the held keys and any queued events without emitting
// releases, to match an engine that was reset. Like OnNav handlers it
// belongs to the Poll goroutine.
func (t *Terminal) Reset() {
	t.held = 0
	t.pending = nil
}

func (t *Terminal) handle(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		t.screen.Sync()
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			t.ended = true
		case tcell.KeyF1, tcell.KeyF2, tcell.KeyF3:
			if t.nav != nil {
				t.nav(int(ev.Key() - tcell.KeyF1))
			}
		case tcell.KeyRune:
			if ev.Rune() == ' ' {
				t.releaseAll()
				return
			}
			if idx, ok := t.lookup(ev.Rune()); ok {
				t.toggle(idx)
			}
		}
	}
}

func (t *Terminal) lookup(r rune) (keys.Index, bool) {
	if t.reg != nil {
		if d, ok := t.reg.ByAbbrev(string(r)); ok {
			return d.Index, true
		}
	}
	if unicode.IsDigit(r) && r <= '9' {
		idx := keys.Index(r - '0')
		if t.reg == nil || t.reg.Contains(idx) {
			return idx, true
		}
	}
	return 0, false
}

func (t *Terminal) toggle(idx keys.Index) {
	if t.held.Has(idx) {
		t.held = t.held.Without(idx)
		t.pending = append(t.pending, engine.Release(idx))
		return
	}
	t.held = t.held.With(idx)
	t.pending = append(t.pending, engine.Press(idx))
}

func (t *Terminal) releaseAll() {
	for _, idx := range t.held.Indices() {
		t.pending = append(t.pending, engine.Release(idx))
	}
	t.held = 0
}

// Close stops the event pump. It does not finalise the screen.
func (t *Terminal) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.screen.PostEvent(tcell.NewEventInterrupt(nil))
	})
	return nil
}
