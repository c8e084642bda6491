package vector

import (
	"context"
	"fmt"

	"github.com/gofeint/gofeint/core/behavior"
	"github.com/gofeint/gofeint/core/emit"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/fingerprint"
	"github.com/gofeint/gofeint/core/metrics"
	"github.com/gofeint/gofeint/pkg/entropy"
	"github.com/gofeint/gofeint/pkg/logging"
)

// Slow-read body size bounds: large enough that the trickled chunks hold
// the connection open for a while, small enough to plan cheaply.
const (
	slowBodyMin = 32
	slowBodyMax = 128
)

// maxChunksPerIteration bounds how much of a chunk plan is played out
// within one loop iteration, keeping iterations short.
const maxChunksPerIteration = 6

// SlowRead opens a request that declares a large body, then trickles it in
// tiny chunks with long gaps, holding the simulated connection open.
type SlowRead struct {
	*loop
	target   Target
	sessions *fingerprint.Manager

	// plan carries the unplayed remainder of the current dribble across
	// iterations.
	plan      *emit.ChunkPlan
	planIndex int
}

// NewSlowRead wires the technique from its leaves.
func NewSlowRead(target Target, sessions *fingerprint.Manager, timing *behavior.Model,
	emitter emit.Emitter, counters *metrics.Vector, logger logging.Logger,
	sink events.Sink, rng *entropy.Source) (*SlowRead, error) {
	if sessions == nil {
		return nil, fmt.Errorf("slow-read requires a session manager")
	}
	l, err := newLoop(NameSlowRead, timing, emitter, counters, logger, sink, rng)
	if err != nil {
		return nil, err
	}
	return &SlowRead{loop: l, target: target, sessions: sessions}, nil
}

// Name implements Vector.
func (v *SlowRead) Name() string {
	return NameSlowRead
}

// Run implements Vector.
func (v *SlowRead) Run(ctx context.Context, state StateReader) {
	v.loop.run(ctx, state, v.step)
}

func (v *SlowRead) step(ctx context.Context, _ Snapshot, attack bool) (*emit.Unit, error) {
	profile := v.sessions.Current()
	attrs := fingerprint.ForSession(profile)

	if !attack {
		// Filler is an ordinary request that completes normally.
		payload := emit.BuildRequest(attrs, v.target.Host, "/", "")
		return &emit.Unit{Kind: emit.KindFiller, Payload: payload, Dest: v.target.Host}, nil
	}

	// Continue an in-flight dribble before starting a new one.
	if v.plan != nil && v.planIndex < len(v.plan.Sizes) {
		if err := v.playChunks(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	v.sessions.OnRequest(profile)
	plan, err := emit.PlanChunks(v.rng, v.rng.IntRange(slowBodyMin, slowBodyMax))
	if err != nil {
		return nil, err
	}
	v.plan = plan
	v.planIndex = 0

	path := entropy.Pick(v.rng, profile.PreferredPaths)
	payload := emit.BuildSlowPost(attrs, v.target.Host, path, plan.TotalBytes())
	return &emit.Unit{Kind: emit.KindRequest, Payload: payload, Dest: v.target.Host}, nil
}

// playChunks emits up to maxChunksPerIteration of the current plan,
// honoring each chunk's gap and cancellation.
func (v *SlowRead) playChunks(ctx context.Context) error {
	for n := 0; n < maxChunksPerIteration && v.planIndex < len(v.plan.Sizes); n++ {
		i := v.planIndex
		if err := v.sleepGap(ctx, v.plan.Gaps[i]); err != nil {
			return err
		}
		unit := &emit.Unit{
			Vector:  v.name,
			Kind:    emit.KindChunk,
			Payload: emit.ChunkPayload(v.plan.Sizes[i]),
			Dest:    v.target.Host,
		}
		if err := v.emitter.Emit(ctx, unit); err != nil {
			if ctx.Err() != nil {
				return err
			}
			v.counters.Dropped()
		} else {
			v.counters.Emitted()
		}
		v.planIndex++
	}
	if v.planIndex >= len(v.plan.Sizes) {
		v.plan = nil
	}
	return nil
}
