// Package connstate tracks simulated partial TCP handshakes. Records move
// INIT -> SYN_SENT immediately on open, then either to HALF_OPEN when an
// ack-like signal arrives or to TIMED_OUT when none does; no record ever
// reaches an established state.
package connstate

import (
	"container/list"
	"fmt"
	"time"

	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/rotation"
	"github.com/gofeint/gofeint/pkg/clock"
	"github.com/gofeint/gofeint/pkg/entropy"
)

// State is the simulated handshake state of one connection record.
type State int

const (
	StateInit State = iota
	StateSynSent
	StateHalfOpen
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSynSent:
		return "SYN_SENT"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Signal is a simulated response observation for a tracked connection.
type Signal int

const (
	// SignalAck is an ack-like response; it completes the half-open state.
	SignalAck Signal = iota
	// SignalReset is any non-ack response; the record stays where it is.
	SignalReset
)

// TTL bounds for synthesized records.
const (
	ttlMin = 64
	ttlMax = 128
)

// Record is one simulated connection. Fields are fixed at open except State
// and LastActivityAt.
type Record struct {
	Source         rotation.SourceAddress
	SequenceNumber uint32
	WindowSize     uint16
	TTL            uint8
	State          State
	CreatedAt      time.Time
	LastActivityAt time.Time

	elem *list.Element
}

// Simulator owns a bounded set of connection records for a single vector.
// It is not safe for concurrent use; each vector owns its own instance.
type Simulator struct {
	cfg   config.Connections
	rng   *entropy.Source
	clk   clock.Clock
	sink  events.Sink
	order *list.List // of *Record, front = most recently active
	count int
}

// NewSimulator builds a simulator with the given tracking bounds.
func NewSimulator(cfg config.Connections, rng *entropy.Source, clk clock.Clock, sink events.Sink) (*Simulator, error) {
	if rng == nil {
		return nil, fmt.Errorf("connection simulator requires an entropy source")
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Simulator{
		cfg:   cfg,
		rng:   rng,
		clk:   clk,
		sink:  sink,
		order: list.New(),
	}, nil
}

// Open creates a record for addr and immediately advances it to SYN_SENT
// with randomized protocol fields. The oldest record is evicted silently
// when the tracking cap is exceeded.
func (s *Simulator) Open(addr rotation.SourceAddress) *Record {
	now := s.clk.Now()
	rec := &Record{
		Source:         addr,
		SequenceNumber: s.rng.Uint32(),
		WindowSize:     uint16(s.rng.IntRange(s.cfg.WindowMin, s.cfg.WindowMax)),
		TTL:            uint8(s.rng.IntRange(ttlMin, ttlMax)),
		State:          StateInit,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.transition(rec, StateSynSent)

	rec.elem = s.order.PushFront(rec)
	s.count++
	if s.count > s.cfg.MaxTracked {
		s.evict(s.order.Back())
	}
	return rec
}

// OnResponse applies a simulated response signal to a record. Only SYN_SENT
// records advance, and only to HALF_OPEN; the half-open state is terminal by
// design.
func (s *Simulator) OnResponse(rec *Record, sig Signal) {
	if rec.State != StateSynSent {
		return
	}
	rec.LastActivityAt = s.clk.Now()
	if rec.elem != nil {
		s.order.MoveToFront(rec.elem)
	}
	if sig == SignalAck {
		s.transition(rec, StateHalfOpen)
	}
}

// Sweep times out SYN_SENT records whose response window has expired and
// evicts records past the age cap. Vectors call it once per loop iteration.
func (s *Simulator) Sweep() {
	now := s.clk.Now()
	var next *list.Element
	for e := s.order.Back(); e != nil; e = next {
		next = e.Prev()
		rec := e.Value.(*Record)
		if now.Sub(rec.CreatedAt) > s.cfg.MaxAge {
			s.evict(e)
			continue
		}
		if rec.State == StateSynSent && now.Sub(rec.LastActivityAt) > s.cfg.ResponseTimeout {
			s.transition(rec, StateTimedOut)
		}
	}
}

func (s *Simulator) evict(e *list.Element) {
	if e == nil {
		return
	}
	rec := e.Value.(*Record)
	s.order.Remove(e)
	rec.elem = nil
	s.count--
}

func (s *Simulator) transition(rec *Record, to State) {
	from := rec.State
	rec.State = to
	events.Emit(s.sink, "connstate", events.TypeConnectionState, map[string]interface{}{
		"source": rec.Source.Addr.String(),
		"from":   from.String(),
		"to":     to.String(),
	})
}

// Tracked reports how many records are currently live.
func (s *Simulator) Tracked() int {
	return s.count
}
