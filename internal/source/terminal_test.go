package source

import (
	"io"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorder/internal/chord"
	"chorder/internal/engine"
	"chorder/internal/keys"
)

func newSimTerminal(t *testing.T) (tcell.SimulationScreen, *Terminal) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	term := NewTerminal(screen, keys.Default())
	t.Cleanup(func() {
		term.Close()
		screen.Fini()
	})
	return screen, term
}

// pollN waits for n events from src.
func pollN(t *testing.T, src engine.Source, n int) []engine.Event {
	t.Helper()
	var out []engine.Event
	deadline := time.Now().Add(2 * time.Second)
	for len(out) < n && time.Now().Before(deadline) {
		ev, ok, err := src.Poll()
		require.NoError(t, err)
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		out = append(out, ev)
	}
	require.Len(t, out, n)
	return out
}

func TestTerminalToggles(t *testing.T) {
	screen, term := newSimTerminal(t)

	screen.InjectKey(tcell.KeyRune, 'c', tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 'F', tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 'c', tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 'x', tcell.ModNone) // not a key

	evs := pollN(t, term, 3)
	assert.Equal(t, []engine.Event{engine.Press(1), engine.Press(2), engine.Release(1)}, evs)
	assert.True(t, term.Held().Has(2))
}

func TestTerminalSpaceReleasesAll(t *testing.T) {
	screen, term := newSimTerminal(t)

	screen.InjectKey(tcell.KeyRune, 'p', tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, '0', tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, ' ', tcell.ModNone)

	evs := pollN(t, term, 4)
	assert.Equal(t, []engine.Event{
		engine.Press(6), engine.Press(0), engine.Release(0), engine.Release(6),
	}, evs)
	assert.True(t, term.Held().IsEmpty())
}

func TestTerminalEscapeEnds(t *testing.T) {
	screen, term := newSimTerminal(t)

	screen.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, ok, err := term.Poll()
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			assert.False(t, ok)
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("escape did not end the stream")
}

func TestTerminalNavKeys(t *testing.T) {
	screen, term := newSimTerminal(t)

	var slots []int
	term.OnNav(func(slot int) { slots = append(slots, slot) })

	screen.InjectKey(tcell.KeyF3, 0, tcell.ModNone)
	screen.InjectKey(tcell.KeyF1, 0, tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 'n', tcell.ModNone)

	pollN(t, term, 1)
	assert.Equal(t, []int{2, 0}, slots)
}

func TestTerminalResetForgetsHeldKeys(t *testing.T) {
	screen, term := newSimTerminal(t)
	term.OnNav(func(int) { term.Reset() })

	screen.InjectKey(tcell.KeyRune, 'i', tcell.ModNone)
	evs := pollN(t, term, 1)
	require.Equal(t, []engine.Event{engine.Press(3)}, evs)
	require.True(t, term.Held().Has(3))

	screen.InjectKey(tcell.KeyF2, 0, tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 'i', tcell.ModNone)
	evs = pollN(t, term, 1)
	assert.Equal(t, []engine.Event{engine.Press(3)}, evs, "a reset key goes down again")
	assert.Equal(t, chord.ComboOf(3), term.Held())
}
