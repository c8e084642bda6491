// Package events carries the engine's structured event stream: phase
// transitions, identity rotations, adaptation decisions, and connection
// state changes all flow through one Sink so the surrounding orchestration
// can observe a run without scraping logs.
package events

import (
	"sync"
	"time"

	"github.com/gofeint/gofeint/pkg/logging"
)

// Event is one discrete occurrence inside the engine.
type Event struct {
	Time      time.Time
	Component string
	Type      string
	Details   map[string]interface{}
}

// Well-known event types.
const (
	TypePhaseTransition  = "phase_transition"
	TypeRotation         = "rotation"
	TypeAdaptation       = "adaptation_decision"
	TypeConnectionState  = "connection_state"
	TypeProbeResult      = "probe_result"
	TypeGuardViolation   = "guard_violation"
	TypeEngineState      = "engine_state"
	TypeHostSample       = "host_sample"
	TypeSessionRotation  = "session_rotation"
	TypeEmissionDrop     = "emission_drop"
)

// Sink consumes engine events. Implementations must be safe for concurrent
// use and must not block; slow consumers drop rather than stall the engine.
type Sink interface {
	Publish(Event)
}

// logSink writes every event to the structured logger.
type logSink struct {
	logger logging.Logger
}

// NewLogSink returns a Sink that records events through the given logger.
func NewLogSink(logger logging.Logger) Sink {
	return &logSink{logger: logger.With("component", "events")}
}

func (s *logSink) Publish(ev Event) {
	kv := make([]interface{}, 0, 2*len(ev.Details)+4)
	kv = append(kv, "source", ev.Component, "type", ev.Type)
	for k, v := range ev.Details {
		kv = append(kv, k, v)
	}
	s.logger.Info("engine event", kv...)
}

// ChannelSink buffers events for inspection, used by tests and by pollers
// that bridge events out of process. When the buffer is full new events are
// dropped, never blocked on.
type ChannelSink struct {
	ch chan Event

	mu      sync.Mutex
	dropped int
}

// NewChannelSink returns a ChannelSink buffering up to n events.
func NewChannelSink(n int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, n)}
}

// Publish enqueues the event, dropping it if the buffer is full.
func (s *ChannelSink) Publish(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Events exposes the buffered event stream.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events did not fit the buffer.
func (s *ChannelSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Drain returns all currently buffered events without blocking.
func (s *ChannelSink) Drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-s.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// nopSink ignores everything.
type nopSink struct{}

// NewNopSink returns a Sink that discards all events.
func NewNopSink() Sink {
	return nopSink{}
}

func (nopSink) Publish(Event) {}

// Emit is a convenience helper building and publishing an event in one call.
func Emit(sink Sink, component, eventType string, details map[string]interface{}) {
	if sink == nil {
		return
	}
	sink.Publish(Event{
		Time:      time.Now(),
		Component: component,
		Type:      eventType,
		Details:   details,
	})
}
