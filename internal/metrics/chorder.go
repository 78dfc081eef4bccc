package metrics

import "time"

// Namespace prefixes every chorder metric.
const Namespace = "chorder"

// ChordMetrics holds the metrics recorded by the chord engine.
type ChordMetrics struct {
	registry *Registry

	Events           *Counter
	Presses          *Counter
	Releases         *Counter
	DroppedEvents    *Counter
	Resolutions      *Counter
	Misses           *Counter
	ModeChanges      *Counter
	SubscriberPanics *Counter
	RecorderErrors   *Counter
	TableReloads     *Counter

	PressedKeys *Gauge
	Subscribers *Gauge

	HoldDuration *Histogram
}

// NewChordMetrics registers the engine metrics on registry. A nil registry
// gets a fresh one under Namespace.
func NewChordMetrics(registry *Registry) *ChordMetrics {
	if registry == nil {
		registry = NewRegistry(Namespace)
	}
	return &ChordMetrics{
		registry: registry,

		Events:           registry.Counter("events_total", "Key events handled"),
		Presses:          registry.Counter("presses_total", "Key press events"),
		Releases:         registry.Counter("releases_total", "Key release events"),
		DroppedEvents:    registry.Counter("dropped_events_total", "Events for keys outside the registry"),
		Resolutions:      registry.Counter("resolutions_total", "Chords resolved to a token"),
		Misses:           registry.Counter("misses_total", "Chords with no table entry"),
		ModeChanges:      registry.Counter("mode_changes_total", "Resolutions that switched mode"),
		SubscriberPanics: registry.Counter("subscriber_panics_total", "Subscribers that panicked during notification"),
		RecorderErrors:   registry.Counter("recorder_errors_total", "Failed resolution journal writes"),
		TableReloads:     registry.Counter("table_reloads_total", "Chord tables swapped in at runtime"),

		PressedKeys: registry.Gauge("pressed_keys", "Keys currently held"),
		Subscribers: registry.Gauge("subscribers", "Registered subscribers"),

		HoldDuration: registry.Histogram("hold_duration_seconds", "Time from first press to resolution", HoldBuckets),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *ChordMetrics) Registry() *Registry {
	return m.registry
}

// RecordPress records a key press and the resulting held count.
func (m *ChordMetrics) RecordPress(held int) {
	m.Events.Inc()
	m.Presses.Inc()
	m.PressedKeys.Set(int64(held))
}

// RecordRelease records a key release and the resulting held count.
func (m *ChordMetrics) RecordRelease(held int) {
	m.Events.Inc()
	m.Releases.Inc()
	m.PressedKeys.Set(int64(held))
}

// RecordDropped records an event that was ignored.
func (m *ChordMetrics) RecordDropped() {
	m.Events.Inc()
	m.DroppedEvents.Inc()
}

// RecordResolution records a chord sample. hit is false for a miss.
func (m *ChordMetrics) RecordResolution(hit, modeChanged bool, held time.Duration) {
	if hit {
		m.Resolutions.Inc()
	} else {
		m.Misses.Inc()
	}
	if modeChanged {
		m.ModeChanges.Inc()
	}
	if held > 0 {
		m.HoldDuration.ObserveDuration(held)
	}
}

// RecordSubscriberPanic records a recovered subscriber panic.
func (m *ChordMetrics) RecordSubscriberPanic() {
	m.SubscriberPanics.Inc()
}

// RecordRecorderError records a failed journal write.
func (m *ChordMetrics) RecordRecorderError() {
	m.RecorderErrors.Inc()
}

// RecordTableReload records a table swap.
func (m *ChordMetrics) RecordTableReload() {
	m.TableReloads.Inc()
}

// SetSubscribers updates the subscriber gauge.
func (m *ChordMetrics) SetSubscribers(n int) {
	m.Subscribers.Set(int64(n))
}
