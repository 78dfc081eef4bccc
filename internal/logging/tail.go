package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Entry is a captured log record.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Tail is a slog.Handler that remembers the most recent record at or above
// its level and forwards every record to the wrapped handler. Handlers
// derived with WithAttrs or WithGroup share the same tail.
type Tail struct {
	next  slog.Handler
	level Level
	last  *atomic.Pointer[Entry]
}

// NewTail wraps next. A nil next only captures.
func NewTail(next slog.Handler, level Level) *Tail {
	return &Tail{next: next, level: level, last: new(atomic.Pointer[Entry])}
}

// Enabled implements slog.Handler.
func (t *Tail) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= t.level {
		return true
	}
	return t.next != nil && t.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (t *Tail) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= t.level {
		t.last.Store(&Entry{Time: r.Time, Level: r.Level, Message: r.Message})
	}
	if t.next != nil && t.next.Enabled(ctx, r.Level) {
		return t.next.Handle(ctx, r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (t *Tail) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *t
	if t.next != nil {
		c.next = t.next.WithAttrs(attrs)
	}
	return &c
}

// WithGroup implements slog.Handler.
func (t *Tail) WithGroup(name string) slog.Handler {
	c := *t
	if t.next != nil {
		c.next = t.next.WithGroup(name)
	}
	return &c
}

// Last returns the most recent captured record.
func (t *Tail) Last() (Entry, bool) {
	e := t.last.Load()
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}
