package engine

import (
	"fmt"
	"reflect"
	"sync"

	"chorder/internal/chord"
)

// Subscriber receives every successfully resolved token. OnResolved runs on
// the event path and should return quickly.
type Subscriber interface {
	OnResolved(token chord.Token)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(token chord.Token)

// OnResolved calls f(token).
func (f SubscriberFunc) OnResolved(token chord.Token) {
	f(token)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id   uint64
	list *subscribers
}

// Cancel removes the subscriber. Calling Cancel more than once is a no-op.
func (s *Subscription) Cancel() {
	if s == nil || s.list == nil {
		return
	}
	s.list.remove(s.id)
}

type subscriberEntry struct {
	id  uint64
	sub Subscriber
}

// subscribers keeps registration order. Notification iterates a snapshot so
// a subscriber may subscribe or cancel while being notified.
type subscribers struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []subscriberEntry
}

func (l *subscribers) add(s Subscriber) (*Subscription, error) {
	if isNil(s) {
		return nil, fmt.Errorf("%w: nil subscriber", ErrInvalidSubscriber)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.entries = append(l.entries, subscriberEntry{id: l.nextID, sub: s})
	return &Subscription{id: l.nextID, list: l}, nil
}

func (l *subscribers) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *subscribers) snapshot() []Subscriber {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Subscriber, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.sub
	}
	return out
}

func (l *subscribers) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// isNil catches both a nil interface and an interface holding a nil
// pointer or func, which would otherwise only fail when notified.
func isNil(s Subscriber) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
