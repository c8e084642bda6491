// Package vector holds the attack technique engines. Every vector runs the
// same loop contract: read the coordinator's run-state snapshot, decide
// probabilistically between an attack unit and filler, build one unit from
// its leaf components, emit it with bounded retries, then sleep a
// human-like delay scaled by the adaptation's rate multiplier.
package vector

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"time"

	"github.com/gofeint/gofeint/core/behavior"
	"github.com/gofeint/gofeint/core/emit"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/metrics"
	"github.com/gofeint/gofeint/pkg/entropy"
	"github.com/gofeint/gofeint/pkg/logging"
)

// Technique names, fixed at construction.
const (
	NameStateExhaustion = "state-exhaustion"
	NameAppMimicry      = "app-layer-mimicry"
	NameSlowRead        = "slow-read"
)

// Snapshot is the immutable run-state view a vector reads once per loop
// iteration.
type Snapshot struct {
	PhaseIndex     int
	AttackRatio    float64
	Intensity      float64
	RateMultiplier float64
	RotationSpeed  float64
	Technique      string
	Remaining      time.Duration
}

// StateReader supplies the latest snapshot. The coordinator owns the only
// writer; reads are lock-free atomic copies.
type StateReader interface {
	Snapshot() Snapshot
}

// Vector is one attack technique engine. Run blocks until ctx is cancelled.
type Vector interface {
	Name() string
	Run(ctx context.Context, state StateReader)
}

// Target is the resolved destination all vectors aim at.
type Target struct {
	// Host is host:port as it appears in application-layer requests.
	Host string
	// Hostname is the bare host used for TLS server names.
	Hostname string
	// Addr is the target's IPv4 address for crafted segments.
	Addr netip.Addr
	// Port is the destination port.
	Port uint16
}

// ResolveTarget parses and resolves a target URL into the form vectors use.
func ResolveTarget(rawURL string) (Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Target{}, fmt.Errorf("target '%s' is not a valid URL", rawURL)
	}
	hostname := u.Hostname()
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Target{}, fmt.Errorf("target port '%s' is invalid: %w", port, err)
	}

	addr, err := netip.ParseAddr(hostname)
	if err != nil {
		resolved, rErr := net.ResolveIPAddr("ip4", hostname)
		if rErr != nil {
			return Target{}, fmt.Errorf("target host '%s' did not resolve: %w", hostname, rErr)
		}
		addr, _ = netip.AddrFromSlice(resolved.IP.To4())
	}

	return Target{
		Host:     net.JoinHostPort(hostname, port),
		Hostname: hostname,
		Addr:     addr,
		Port:     uint16(portNum),
	}, nil
}

// retry bounds for per-unit emission.
const (
	emitAttempts = 3
	emitBackoff  = 50 * time.Millisecond
)

// loop carries the state shared by all technique engines.
type loop struct {
	name     string
	timing   *behavior.Model
	emitter  emit.Emitter
	counters *metrics.Vector
	logger   logging.Logger
	sink     events.Sink
	rng      *entropy.Source
}

func newLoop(name string, timing *behavior.Model, emitter emit.Emitter, counters *metrics.Vector,
	logger logging.Logger, sink events.Sink, rng *entropy.Source) (*loop, error) {
	if timing == nil || emitter == nil || counters == nil || rng == nil {
		return nil, fmt.Errorf("vector %s is missing a required component", name)
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &loop{
		name:     name,
		timing:   timing,
		emitter:  emit.Chain(emitter, emit.RetryMiddleware(emitAttempts, emitBackoff, counters.Retry)),
		counters: counters,
		logger:   logger.With("component", "vector", "technique", name),
		sink:     sink,
		rng:      rng,
	}, nil
}

// step builds one traffic unit. attack is false when this iteration was
// probabilistically skipped in favor of filler.
type step func(ctx context.Context, snap Snapshot, attack bool) (*emit.Unit, error)

// run executes the shared loop contract until cancellation.
func (l *loop) run(ctx context.Context, state StateReader, buildUnit step) {
	l.logger.Info("vector started")
	defer l.logger.Info("vector stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		snap := state.Snapshot()
		attack := l.rng.Chance(l.effectiveRatio(snap))

		unit, err := buildUnit(ctx, snap, attack)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("unit build failed", "error", err)
			l.counters.Dropped()
		} else if unit != nil {
			l.emitUnit(ctx, unit, attack)
		}

		delay := l.scaledDelay(snap.RateMultiplier)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// emitUnit pushes one unit through the retry chain and settles counters.
// Failures are absorbed: the unit is dropped and the loop continues.
func (l *loop) emitUnit(ctx context.Context, unit *emit.Unit, attack bool) {
	unit.Vector = l.name
	if err := l.emitter.Emit(ctx, unit); err != nil {
		if ctx.Err() != nil {
			return
		}
		l.counters.Dropped()
		events.Emit(l.sink, l.name, events.TypeEmissionDrop, map[string]interface{}{
			"kind":  string(unit.Kind),
			"error": err.Error(),
		})
		return
	}
	if attack {
		l.counters.Emitted()
	} else {
		l.counters.Filler()
	}
}

// effectiveRatio is the phase attack ratio, de-emphasized when adaptation
// currently recommends a different technique.
func (l *loop) effectiveRatio(snap Snapshot) float64 {
	ratio := snap.AttackRatio
	if snap.Technique != "" && snap.Technique != l.name {
		ratio *= 0.5
	}
	return ratio
}

// scaledDelay divides the behavioral delay by the rate multiplier: a higher
// multiplier means faster pacing. Cancellation interrupts the wait itself,
// so even a long break pause never delays shutdown.
func (l *loop) scaledDelay(rateMultiplier float64) time.Duration {
	if rateMultiplier <= 0 {
		rateMultiplier = 1.0
	}
	delay := time.Duration(float64(l.timing.NextDelay()) / rateMultiplier)
	if delay <= 0 {
		delay = time.Millisecond
	}
	return delay
}

// sleepGap waits for a chunk gap, honoring cancellation.
func (l *loop) sleepGap(ctx context.Context, gap time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(gap):
		return nil
	}
}
