package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorder/internal/chord"
	"chorder/internal/keys"
	"chorder/internal/metrics"
)

func scenarioTable(t *testing.T) *chord.Table {
	t.Helper()
	b := chord.NewBuilder("NORMAL")
	require.NoError(t, b.Add("NORMAL", chord.ComboOf(1, 2), "a", "NORMAL"))
	require.NoError(t, b.Add("NORMAL", chord.ComboOf(4), "SHIFT-ENTER", "SHIFT"))
	require.NoError(t, b.Add("SHIFT", chord.ComboOf(1, 2), "A", "NORMAL"))
	tbl, err := b.Build()
	require.NoError(t, err)
	return tbl
}

type tokenLog struct {
	mu     sync.Mutex
	tokens []chord.Token
}

func (l *tokenLog) OnResolved(tok chord.Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = append(l.tokens, tok)
}

func (l *tokenLog) get() []chord.Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]chord.Token(nil), l.tokens...)
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *tokenLog) {
	t.Helper()
	e, err := New(scenarioTable(t), opts...)
	require.NoError(t, err)
	log := &tokenLog{}
	_, err = e.Subscribe(log)
	require.NoError(t, err)
	return e, log
}

func feed(e *Engine, evs ...Event) {
	for _, ev := range evs {
		e.Handle(ev)
	}
}

func TestScenarioChordResolves(t *testing.T) {
	var resolutions []Resolution
	e, log := newEngine(t, WithRecorder(RecorderFunc(func(r Resolution) error {
		resolutions = append(resolutions, r)
		return nil
	})))

	feed(e, Press(1), Press(2), Release(1))
	assert.Equal(t, []chord.Token{"a"}, log.get())
	assert.Equal(t, chord.Mode("NORMAL"), e.Mode())
	assert.Equal(t, Outcome{Token: "a"}, e.LastResolved())
	assert.Equal(t, chord.ComboOf(2), e.Pressed())

	feed(e, Release(2))
	assert.Len(t, log.get(), 1, "draining release must not resolve again")
	assert.True(t, e.State().Idle())

	require.Len(t, resolutions, 1)
	assert.Equal(t, chord.ComboOf(1, 2), resolutions[0].Combo)
	assert.Equal(t, chord.Mode("NORMAL"), resolutions[0].Mode)
}

func TestScenarioMiss(t *testing.T) {
	var resolutions []Resolution
	e, log := newEngine(t, WithRecorder(RecorderFunc(func(r Resolution) error {
		resolutions = append(resolutions, r)
		return nil
	})))

	feed(e, Press(3), Release(3))
	assert.Empty(t, log.get())
	assert.Equal(t, chord.Mode("NORMAL"), e.Mode())
	assert.True(t, e.LastResolved().Miss)
	assert.Equal(t, MissMarker, e.LastResolved().String())

	require.Len(t, resolutions, 1)
	assert.True(t, resolutions[0].Miss)
	assert.Equal(t, Outcome{Miss: true}, resolutions[0].Outcome())
}

func TestScenarioModeSwitch(t *testing.T) {
	e, log := newEngine(t)

	feed(e, Press(4), Release(4))
	assert.Equal(t, chord.Mode("SHIFT"), e.Mode())

	feed(e, Press(1), Press(2), Release(2), Release(1))
	assert.Equal(t, []chord.Token{"SHIFT-ENTER", "A"}, log.get())
	assert.Equal(t, chord.Mode("NORMAL"), e.Mode())
}

func TestMissKeepsModeAndLastIsOverwritten(t *testing.T) {
	e, log := newEngine(t)

	feed(e, Press(4), Release(4))
	feed(e, Press(4), Release(4)) // {4} is not mapped in SHIFT
	assert.Equal(t, chord.Mode("SHIFT"), e.Mode())
	assert.Equal(t, MissMarker, e.LastResolved().String())
	assert.Equal(t, []chord.Token{"SHIFT-ENTER"}, log.get())

	feed(e, Press(2), Press(1), Release(1), Release(2))
	assert.Equal(t, Outcome{Token: "A"}, e.LastResolved())
}

func TestDeterministicHits(t *testing.T) {
	e, log := newEngine(t)
	for i := 0; i < 20; i++ {
		feed(e, Press(2), Press(1), Release(2), Release(1))
	}
	tokens := log.get()
	require.Len(t, tokens, 20)
	for _, tok := range tokens {
		assert.Equal(t, chord.Token("a"), tok)
	}
	assert.Equal(t, chord.Mode("NORMAL"), e.Mode())
}

func TestReleaseOfUnpressedKeyIsNoop(t *testing.T) {
	e, log := newEngine(t)
	feed(e, Press(1))
	before := e.State()

	feed(e, Release(2))
	assert.Equal(t, before, e.State())
	assert.Empty(t, log.get())
	assert.True(t, e.LastResolved().IsZero())
}

func TestFanOutOrderSurvivesPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := metrics.NewChordMetrics(nil)

	e, err := New(scenarioTable(t), WithLogger(logger), WithMetrics(m))
	require.NoError(t, err)

	var order []string
	_, err = e.Subscribe(SubscriberFunc(func(chord.Token) { order = append(order, "S1") }))
	require.NoError(t, err)
	_, err = e.Subscribe(SubscriberFunc(func(chord.Token) {
		order = append(order, "S2")
		panic("boom")
	}))
	require.NoError(t, err)
	_, err = e.Subscribe(SubscriberFunc(func(chord.Token) { order = append(order, "S3") }))
	require.NoError(t, err)

	feed(e, Press(1), Press(2), Release(1), Release(2))
	feed(e, Press(4), Release(4))

	assert.Equal(t, []string{"S1", "S2", "S3", "S1", "S2", "S3"}, order)
	assert.Equal(t, chord.Mode("SHIFT"), e.Mode(), "a panicking subscriber must not stop the mode change")
	assert.True(t, e.State().Idle())
	assert.Equal(t, uint64(2), m.SubscriberPanics.Value())
	assert.Contains(t, buf.String(), "subscriber panicked")
}

func TestSubscribeRejectsNil(t *testing.T) {
	e, err := New(scenarioTable(t))
	require.NoError(t, err)

	_, err = e.Subscribe(nil)
	assert.ErrorIs(t, err, ErrInvalidSubscriber)

	var typedNil *tokenLog
	_, err = e.Subscribe(typedNil)
	assert.ErrorIs(t, err, ErrInvalidSubscriber)

	var fn SubscriberFunc
	_, err = e.Subscribe(fn)
	assert.ErrorIs(t, err, ErrInvalidSubscriber)
}

func TestDuplicateSubscriptionAndCancel(t *testing.T) {
	e, err := New(scenarioTable(t))
	require.NoError(t, err)

	log := &tokenLog{}
	first, err := e.Subscribe(log)
	require.NoError(t, err)
	_, err = e.Subscribe(log)
	require.NoError(t, err)

	feed(e, Press(1), Press(2), Release(1), Release(2))
	assert.Len(t, log.get(), 2)

	first.Cancel()
	first.Cancel()
	feed(e, Press(1), Press(2), Release(1), Release(2))
	assert.Len(t, log.get(), 3)
}

func TestSubscriberMayReadEngineState(t *testing.T) {
	e, err := New(scenarioTable(t))
	require.NoError(t, err)

	var seen chord.Combo
	_, err = e.Subscribe(SubscriberFunc(func(chord.Token) {
		seen = e.Pressed()
		_ = e.Mode()
		_ = e.LastResolved()
	}))
	require.NoError(t, err)

	feed(e, Press(1), Press(2), Release(1))
	assert.Equal(t, chord.ComboOf(1, 2), seen)
}

func TestEventsOutsideRegistryDropped(t *testing.T) {
	m := metrics.NewChordMetrics(nil)
	e, log := newEngine(t, WithRegistry(keys.Default()), WithMetrics(m))

	feed(e, Press(9), Release(9))
	feed(e, Event{Key: 1, Kind: 0})
	assert.True(t, e.State().Idle())
	assert.True(t, e.LastResolved().IsZero())
	assert.Empty(t, log.get())
	assert.Equal(t, uint64(3), m.DroppedEvents.Value())
}

func TestMetricsAndHoldTime(t *testing.T) {
	m := metrics.NewChordMetrics(nil)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e, _ := newEngine(t, WithMetrics(m))

	feed(e,
		Event{Key: 1, Kind: Pressed, At: now},
		Event{Key: 2, Kind: Pressed, At: now.Add(20 * time.Millisecond)},
		Event{Key: 1, Kind: Released, At: now.Add(100 * time.Millisecond)},
		Event{Key: 2, Kind: Released, At: now.Add(120 * time.Millisecond)},
	)
	feed(e, Press(3), Release(3))

	assert.Equal(t, uint64(3), m.Presses.Value())
	assert.Equal(t, uint64(3), m.Releases.Value())
	assert.Equal(t, uint64(1), m.Resolutions.Value())
	assert.Equal(t, uint64(1), m.Misses.Value())
	assert.Equal(t, int64(0), m.PressedKeys.Value())
	assert.InDelta(t, 0.1, m.HoldDuration.Sum(), 0.05)
}

func TestClockStampsEvents(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var got time.Time
	e, _ := newEngine(t,
		WithClock(func() time.Time { return at }),
		WithRecorder(RecorderFunc(func(r Resolution) error { got = r.At; return nil })),
	)
	feed(e, Press(4), Release(4))
	assert.Equal(t, at, got)
}

func TestRecorderErrorDoesNotStopEngine(t *testing.T) {
	m := metrics.NewChordMetrics(nil)
	e, log := newEngine(t, WithMetrics(m), WithRecorder(RecorderFunc(func(Resolution) error {
		return errors.New("disk full")
	})))
	feed(e, Press(4), Release(4), Press(1), Press(2), Release(1), Release(2))
	assert.Equal(t, []chord.Token{"SHIFT-ENTER", "A"}, log.get())
	assert.Equal(t, uint64(2), m.RecorderErrors.Value())
}

func TestSetTableAppliesBetweenEvents(t *testing.T) {
	e, log := newEngine(t)
	feed(e, Press(4), Release(4))
	require.Equal(t, chord.Mode("SHIFT"), e.Mode())

	b := chord.NewBuilder("BASE")
	require.NoError(t, b.Add("BASE", chord.ComboOf(1, 2), "z", ""))
	next, err := b.Build()
	require.NoError(t, err)

	require.NoError(t, e.SetTable(next))
	assert.NotSame(t, next, e.Table(), "swap waits for the next event")

	feed(e, Press(1), Press(2), Release(1), Release(2))
	assert.Same(t, next, e.Table())
	assert.Equal(t, chord.Mode("BASE"), e.Mode(), "missing mode falls back to the initial mode")
	assert.Equal(t, []chord.Token{"SHIFT-ENTER", "z"}, log.get())

	assert.ErrorIs(t, e.SetTable(nil), ErrNilTable)
}

func TestNewOptions(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilTable)

	e, err := New(scenarioTable(t), WithInitialMode("SHIFT"))
	require.NoError(t, err)
	assert.Equal(t, chord.Mode("SHIFT"), e.Mode())

	e, err = New(scenarioTable(t), WithInitialMode("GONE"))
	require.NoError(t, err)
	assert.Equal(t, chord.Mode("NORMAL"), e.Mode())
}

func TestReset(t *testing.T) {
	e, _ := newEngine(t)
	feed(e, Press(4), Release(4), Press(1))
	e.Reset()
	assert.Equal(t, chord.Mode("NORMAL"), e.Mode())
	assert.True(t, e.State().Idle())
	assert.True(t, e.LastResolved().IsZero())
}

type sliceSource struct {
	events []Event
	err    error
	polls  int
}

func (s *sliceSource) Poll() (Event, bool, error) {
	s.polls++
	if len(s.events) == 0 {
		if s.err != nil {
			return Event{}, false, s.err
		}
		return Event{}, false, nil
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, true, nil
}

func TestRunUntilEOF(t *testing.T) {
	e, log := newEngine(t)
	src := &sliceSource{
		events: []Event{Press(1), Press(2), Release(2), Release(1), Press(4), Release(4)},
		err:    io.EOF,
	}
	require.NoError(t, e.Run(context.Background(), src))
	assert.Equal(t, []chord.Token{"a", "SHIFT-ENTER"}, log.get())
}

func TestRunSourceError(t *testing.T) {
	e, _ := newEngine(t)
	boom := errors.New("device gone")
	err := e.Run(context.Background(), &sliceSource{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestRunCancel(t *testing.T) {
	e, _ := newEngine(t, WithPollInterval(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	src := &sliceSource{}
	err := e.Run(ctx, src)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, src.polls, 1, "an empty poll is not an error")
}

func TestReadersDuringDrain(t *testing.T) {
	e, log := newEngine(t)

	const rounds = 2000
	src := &sliceSource{}
	for i := 0; i < rounds; i++ {
		src.events = append(src.events, Press(1), Press(2), Release(1), Release(2))
	}

	swap := scenarioTable(t)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		assert.NoError(t, e.Drain(context.Background(), src))
	}()

	readers := []func(){
		func() { _ = e.Mode() },
		func() { _ = e.LastResolved() },
		func() { _ = e.Pressed().Len() },
		func() { _ = e.State().Idle() },
		func() { assert.NoError(t, e.SetTable(swap)) },
	}
	for _, read := range readers {
		wg.Add(1)
		go func(read func()) {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					read()
				}
			}
		}(read)
	}
	wg.Wait()

	assert.Len(t, log.get(), rounds)
	assert.True(t, e.State().Idle())
	assert.Equal(t, chord.Mode("NORMAL"), e.Mode())
}
