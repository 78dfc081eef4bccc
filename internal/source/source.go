// Package source provides event sources for the chord engine: an in-memory
// queue, text scripts, Linux evdev devices and a terminal simulator.
package source

import (
	"errors"
	"io"
	"sync"

	"chorder/internal/engine"
)

var (
	ErrUnsupported = errors.New("source: not supported on this platform")
	ErrClosed      = errors.New("source: closed")
)

// Source is an engine.Source that holds resources.
type Source interface {
	engine.Source
	Close() error
}

// Queue is an in-memory FIFO source. Once closed and drained it reports
// io.EOF.
type Queue struct {
	mu     sync.Mutex
	events []engine.Event
	closed bool
}

// NewQueue returns a queue holding evs.
func NewQueue(evs ...engine.Event) *Queue {
	return &Queue{events: append([]engine.Event(nil), evs...)}
}

// Push appends events. It fails after Close.
func (q *Queue) Push(evs ...engine.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.events = append(q.events, evs...)
	return nil
}

// Poll returns the oldest queued event.
func (q *Queue) Poll() (engine.Event, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		if q.closed {
			return engine.Event{}, false, io.EOF
		}
		return engine.Event{}, false, nil
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true, nil
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops accepting events. Queued events are still delivered.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
