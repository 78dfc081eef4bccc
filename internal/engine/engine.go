// Package engine resolves chords typed on a chorded keyboard.
//
// The engine consumes debounced key events in arrival order. The first
// release after a press samples the set of held keys, which is looked up in
// the chord table under the current mode. A hit notifies subscribers in
// registration order, advances the mode and records the token as the last
// resolved value. A miss records the Miss outcome and changes nothing else.
//
// Event handling is single threaded: Handle and Run must be driven from one
// goroutine. Mode, LastResolved, Pressed and State may be read from any
// goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chorder/internal/chord"
	"chorder/internal/keys"
	"chorder/internal/metrics"
)

var (
	ErrInvalidSubscriber = errors.New("engine: invalid subscriber")
	ErrNilTable          = errors.New("engine: nil chord table")
)

// MissMarker is how a miss is displayed.
const MissMarker = "err"

// DefaultPollInterval is the run loop tick.
const DefaultPollInterval = time.Millisecond

// Outcome is the last resolution attempt: a token, or a miss.
type Outcome struct {
	Token chord.Token
	Miss  bool
}

// IsZero reports whether nothing has been resolved yet.
func (o Outcome) IsZero() bool {
	return o == Outcome{}
}

// String returns the token, MissMarker for a miss, or "" before the first
// resolution.
func (o Outcome) String() string {
	if o.Miss {
		return MissMarker
	}
	return string(o.Token)
}

// Resolution describes one sampling edge.
type Resolution struct {
	At    time.Time
	Mode  chord.Mode // mode the lookup ran in
	Combo chord.Combo
	Token chord.Token
	Next  chord.Mode
	Miss  bool
	Held  time.Duration // first press to sampling edge
}

// Outcome returns the Outcome recorded for r.
func (r Resolution) Outcome() Outcome {
	if r.Miss {
		return Outcome{Miss: true}
	}
	return Outcome{Token: r.Token}
}

// Recorder observes every resolution attempt, hits and misses alike.
// Errors are logged and counted; they never stop the engine.
type Recorder interface {
	Record(Resolution) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Resolution) error

// Record calls f(r).
func (f RecorderFunc) Record(r Resolution) error {
	return f(r)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder adds a resolution recorder. Recorders run in the order added,
// after subscribers.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorders = append(e.recorders, r)
		}
	}
}

// WithMetrics records engine activity on m.
func WithMetrics(m *metrics.ChordMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRegistry restricts accepted events to keys in reg and labels log
// output with abbreviations. Without it any index below keys.MaxKeys is
// accepted.
func WithRegistry(reg *keys.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithClock replaces time.Now for stamping events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPollInterval sets how long Run waits between drains of its source.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithInitialMode starts the engine in mode instead of the table's initial
// mode. Unknown modes are ignored.
func WithInitialMode(mode chord.Mode) Option {
	return func(e *Engine) { e.startMode = mode }
}

// Engine is the chord resolution state machine.
type Engine struct {
	logger       *slog.Logger
	metrics      *metrics.ChordMetrics
	registry     *keys.Registry
	recorders    []Recorder
	now          func() time.Time
	pollInterval time.Duration
	startMode    chord.Mode

	subs    subscribers
	acc     Accumulator
	pending atomic.Pointer[chord.Table]

	// Guarded by mu. Written only from the event path.
	mu    sync.RWMutex
	table *chord.Table
	mode  chord.Mode
	last  Outcome
	state AccumulatorState
}

// New returns an engine resolving against table.
func New(table *chord.Table, opts ...Option) (*Engine, error) {
	if table == nil {
		return nil, ErrNilTable
	}
	e := &Engine{
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.table = table
	e.mode = table.Initial()
	if e.startMode != "" && table.HasMode(e.startMode) {
		e.mode = e.startMode
	}
	return e, nil
}

// Subscribe registers s to receive resolved tokens. Subscribers are notified
// in registration order; registering the same subscriber twice notifies it
// twice. A nil subscriber is rejected with ErrInvalidSubscriber.
func (e *Engine) Subscribe(s Subscriber) (*Subscription, error) {
	sub, err := e.subs.add(s)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.SetSubscribers(e.subs.len())
	}
	return sub, nil
}

// Mode returns the current mode.
func (e *Engine) Mode() chord.Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// LastResolved returns the outcome of the most recent sampling edge.
func (e *Engine) LastResolved() Outcome {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Pressed returns the keys currently held.
func (e *Engine) Pressed() chord.Combo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Pressed
}

// State returns the accumulator state.
func (e *Engine) State() AccumulatorState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Table returns the active chord table.
func (e *Engine) Table() *chord.Table {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table
}

// SetTable replaces the chord table. The swap happens before the next event
// is handled, so a chord is always resolved against a single table. If the
// current mode is missing from t the engine returns to t's initial mode.
// SetTable is safe to call from any goroutine.
func (e *Engine) SetTable(t *chord.Table) error {
	if t == nil {
		return ErrNilTable
	}
	e.pending.Store(t)
	return nil
}

func (e *Engine) applyPendingTable() {
	t := e.pending.Swap(nil)
	if t == nil {
		return
	}
	e.mu.Lock()
	e.table = t
	prev := e.mode
	if !t.HasMode(prev) {
		e.mode = t.Initial()
	}
	mode := e.mode
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordTableReload()
	}
	e.logger.Info("chord table replaced", "chords", t.Len(), "modes", len(t.Modes()), "mode", mode)
	if mode != prev {
		e.logger.Warn("mode missing from new table", "mode", prev, "fallback", mode)
	}
}

// Reset drops held keys and returns to the initial mode, clearing the last
// resolved outcome. It belongs to the event path like Handle.
func (e *Engine) Reset() {
	e.applyPendingTable()
	e.acc.Reset()
	e.mu.Lock()
	e.mode = e.table.Initial()
	e.last = Outcome{}
	e.state = AccumulatorState{}
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.PressedKeys.Set(0)
	}
}

// Handle processes one event. Resolution, including subscriber fan-out, is
// complete when Handle returns. Events for keys outside the registry are
// dropped.
func (e *Engine) Handle(ev Event) {
	e.applyPendingTable()

	if !e.accepts(ev.Key) || (ev.Kind != Pressed && ev.Kind != Released) {
		e.logger.Debug("event dropped", "key", ev.Key, "kind", ev.Kind)
		if e.metrics != nil {
			e.metrics.RecordDropped()
		}
		return
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}

	switch ev.Kind {
	case Pressed:
		if !e.acc.Press(ev.Key, ev.At) {
			e.logger.Debug("key already down", "key", ev.Key)
		}
		e.publishState()
		if e.metrics != nil {
			e.metrics.RecordPress(e.acc.State().Pressed.Len())
		}
	case Released:
		e.acc.Release(ev.Key, ev.At, func(combo chord.Combo, held time.Duration) {
			e.resolve(combo, ev.At, held)
		})
		e.publishState()
		if e.metrics != nil {
			e.metrics.RecordRelease(e.acc.State().Pressed.Len())
		}
	}
}

func (e *Engine) accepts(k keys.Index) bool {
	if e.registry != nil {
		return e.registry.Contains(k)
	}
	return k < keys.MaxKeys
}

func (e *Engine) publishState() {
	st := e.acc.State()
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()
}

// resolve looks combo up under the current mode and applies the result.
func (e *Engine) resolve(combo chord.Combo, at time.Time, held time.Duration) {
	e.mu.RLock()
	table, mode := e.table, e.mode
	e.mu.RUnlock()

	r := Resolution{At: at, Mode: mode, Combo: combo, Held: held}
	entry, ok := table.Lookup(mode, combo)
	if !ok {
		r.Miss = true
		e.mu.Lock()
		e.last = Outcome{Miss: true}
		e.mu.Unlock()
		e.logger.Debug("unrecognized chord", "mode", mode, "combo", e.label(combo))
		if e.metrics != nil {
			e.metrics.RecordResolution(false, false, held)
		}
		e.record(r)
		return
	}

	r.Token, r.Next = entry.Token, entry.Next
	e.notify(entry.Token)

	e.mu.Lock()
	e.mode = entry.Next
	e.last = Outcome{Token: entry.Token}
	e.mu.Unlock()

	e.logger.Debug("chord resolved", "mode", mode, "combo", e.label(combo), "token", entry.Token, "next", entry.Next)
	if e.metrics != nil {
		e.metrics.RecordResolution(true, entry.Next != mode, held)
	}
	e.record(r)
}

func (e *Engine) label(c chord.Combo) string {
	if e.registry != nil {
		return c.Label(e.registry)
	}
	return c.String()
}

func (e *Engine) notify(token chord.Token) {
	for i, s := range e.subs.snapshot() {
		e.notifyOne(i, s, token)
	}
}

func (e *Engine) notifyOne(i int, s Subscriber, token chord.Token) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("subscriber panicked", "subscriber", i, "token", token, "panic", r)
			if e.metrics != nil {
				e.metrics.RecordSubscriberPanic()
			}
		}
	}()
	s.OnResolved(token)
}

func (e *Engine) record(r Resolution) {
	for _, rec := range e.recorders {
		if err := rec.Record(r); err != nil {
			e.logger.Warn("record resolution", "error", err)
			if e.metrics != nil {
				e.metrics.RecordRecorderError()
			}
		}
	}
}

// Run drains src once per tick until ctx is cancelled or src ends. It
// returns nil when src reports io.EOF, ctx.Err() on cancellation, and any
// other source error as is.
func (e *Engine) Run(ctx context.Context, src Source) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		if err := e.Drain(ctx, src); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain handles events from src until none is available.
func (e *Engine) Drain(ctx context.Context, src Source) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok, err := src.Poll()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return err
			}
			return fmt.Errorf("poll source: %w", err)
		}
		if !ok {
			return nil
		}
		e.Handle(ev)
	}
}
