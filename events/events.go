package events

import "sync"

// Event represents a structured state change emitted by the escrow engine.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder retains emitted events in memory so read-side consumers can list
// them. Retention is bounded: once the cap is reached the oldest events are
// dropped first.
type Recorder struct {
	mu     sync.RWMutex
	events []Event
	cap    int
}

const defaultRecorderCap = 1024

// NewRecorder constructs a Recorder retaining at most cap events. A cap of
// zero or below selects the default retention.
func NewRecorder(cap int) *Recorder {
	if cap <= 0 {
		cap = defaultRecorderCap
	}
	return &Recorder{cap: cap}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) >= r.cap {
		r.events = r.events[1:]
	}
	r.events = append(r.events, evt)
}

// Events returns a copy of the retained events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
