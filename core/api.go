// Package core wires the feint engine together: leaf components per vector,
// the probe/adaptation loop, and the coordinator that runs them against the
// phase schedule.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gofeint/gofeint/core/adaptive"
	"github.com/gofeint/gofeint/core/behavior"
	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/core/connstate"
	"github.com/gofeint/gofeint/core/emit"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/fingerprint"
	"github.com/gofeint/gofeint/core/metrics"
	"github.com/gofeint/gofeint/core/probe"
	"github.com/gofeint/gofeint/core/rotation"
	"github.com/gofeint/gofeint/core/schedule"
	"github.com/gofeint/gofeint/core/security"
	"github.com/gofeint/gofeint/core/vector"
	"github.com/gofeint/gofeint/pkg/clock"
	"github.com/gofeint/gofeint/pkg/entropy"
	"github.com/gofeint/gofeint/pkg/logging"
)

// Engine is the top-level controller for one traffic generation run.
type Engine struct {
	cfg         *config.Config
	logger      logging.Logger
	coordinator *Coordinator
	counters    *metrics.Set
	guard       *security.EgressGuard

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	started bool
}

// EngineOptions inject test doubles. Zero values select production
// implementations.
type EngineOptions struct {
	// Clock overrides the time source the schedule and leaves read.
	Clock clock.Clock
	// Emitter overrides the configured emission backend.
	Emitter emit.Emitter
	// Sink overrides the default log-backed event sink.
	Sink events.Sink
}

// NewEngine validates cfg and builds the full component tree. The engine is
// idle until Start.
func NewEngine(cfg *config.Config, logger logging.Logger) (*Engine, error) {
	return NewEngineWithOptions(cfg, logger, nil)
}

// NewEngineWithOptions builds an engine with injected dependencies.
func NewEngineWithOptions(cfg *config.Config, logger logging.Logger, opts *EngineOptions) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine requires a configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	if opts == nil {
		opts = &EngineOptions{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.NewLogSink(logger)
	}

	// Seeded runs derive one deterministic stream per component so vectors
	// do not perturb each other's sequences.
	newSource := func(offset int64) *entropy.Source {
		if cfg.Seed == 0 {
			return entropy.NewAuto()
		}
		return entropy.New(cfg.Seed + offset)
	}

	eng := &Engine{cfg: cfg, logger: logger.With("component", "engine")}

	guard, err := security.NewEgressGuard(cfg.Target, logger, &security.GuardOptions{
		Strict:         true,
		MaxHistorySize: 100,
		AlertCallback:  eng.onGuardViolation,
	})
	if err != nil {
		return nil, err
	}
	eng.guard = guard

	target, err := vector.ResolveTarget(cfg.Target)
	if err != nil {
		return nil, config.NewValidationError(err)
	}

	baseEmitter := opts.Emitter
	if baseEmitter == nil {
		baseEmitter, err = emit.NewFromConfig(cfg.Emitter)
		if err != nil {
			return nil, err
		}
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RateCeiling), 1)
	emitter := emit.Chain(baseEmitter,
		emit.GuardMiddleware(guard),
		emit.ThrottleMiddleware(limiter),
		emit.LoggingMiddleware(logger),
	)

	counters := metrics.NewSet()
	eng.counters = counters

	vectors, err := buildVectors(cfg, target, guard, emitter, counters, clk, sink, logger, newSource)
	if err != nil {
		return nil, err
	}

	plan, err := schedule.NewPlan(cfg.Phases, cfg.TotalDuration)
	if err != nil {
		return nil, err
	}
	prober, err := probe.NewProber(cfg.Probe, cfg.Target, nil, logger, sink)
	if err != nil {
		return nil, err
	}
	controller, err := adaptive.NewController(cfg.Probe.Window, cfg.Vectors.Enabled(), logger, sink)
	if err != nil {
		return nil, err
	}

	coordinator, err := newCoordinator(plan, controller, prober, vectors, counters,
		clk, cfg.Probe.Interval, logger, sink)
	if err != nil {
		return nil, err
	}
	eng.coordinator = coordinator
	return eng, nil
}

// buildVectors constructs every enabled technique with its own leaves. Each
// vector owns its pool, simulator, and timing model exclusively.
func buildVectors(cfg *config.Config, target vector.Target, guard *security.EgressGuard,
	emitter emit.Emitter, counters *metrics.Set, clk clock.Clock, sink events.Sink,
	logger logging.Logger, newSource func(int64) *entropy.Source) ([]vector.Vector, error) {
	var vectors []vector.Vector

	if cfg.Vectors.StateExhaustion {
		rng := newSource(1)
		rotator, err := rotation.NewRotator(cfg.AddressPoolSize, rng, guard, sink)
		if err != nil {
			return nil, err
		}
		sim, err := connstate.NewSimulator(cfg.Connections, rng, clk, sink)
		if err != nil {
			return nil, err
		}
		timing, err := behavior.NewModel(cfg.Timing, rng, clk)
		if err != nil {
			return nil, err
		}
		v, err := vector.NewStateExhaustion(target, rotator, sim, timing, emitter,
			counters.Vector(vector.NameStateExhaustion), logger, sink, rng)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}

	if cfg.Vectors.AppMimicry {
		rng := newSource(2)
		sessions, err := fingerprint.NewManager(cfg.Sessions, rng, clk, sink)
		if err != nil {
			return nil, err
		}
		timing, err := behavior.NewModel(cfg.Timing, rng, clk)
		if err != nil {
			return nil, err
		}
		v, err := vector.NewAppMimicry(target, sessions, timing, emitter,
			counters.Vector(vector.NameAppMimicry), logger, sink, rng)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}

	if cfg.Vectors.SlowRead {
		rng := newSource(3)
		sessions, err := fingerprint.NewManager(cfg.Sessions, rng, clk, sink)
		if err != nil {
			return nil, err
		}
		timing, err := behavior.NewModel(cfg.Timing, rng, clk)
		if err != nil {
			return nil, err
		}
		v, err := vector.NewSlowRead(target, sessions, timing, emitter,
			counters.Vector(vector.NameSlowRead), logger, sink, rng)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}

	if len(vectors) == 0 {
		return nil, config.NewValidationError(fmt.Errorf("no vectors are enabled"))
	}
	return vectors, nil
}

// Start launches the run. Non-blocking; the run ends at the configured
// deadline or on Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine is already running")
	}
	if e.done != nil {
		return fmt.Errorf("engine cannot be restarted; build a new one")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.started = true
	e.runErr = nil

	done := e.done
	go func() {
		err := e.coordinator.Run(runCtx)
		e.mu.Lock()
		e.runErr = err
		e.mu.Unlock()
		close(done)
	}()
	return nil
}

// Stop drains the run and waits for it to finish. It returns the run's
// failure, if any.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine is not running")
	}
	done := e.done
	cancel := e.cancel
	e.mu.Unlock()

	e.coordinator.RequestStop()
	select {
	case <-done:
	case <-time.After(e.coordinator.drainGrace + time.Second):
		e.logger.Error("engine did not stop within the drain bound")
		cancel()
		<-done
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancel()
	e.started = false
	return e.runErr
}

// Wait returns a channel closed when the current run finishes.
func (e *Engine) Wait() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Status reports the engine's externally visible state.
func (e *Engine) Status() Status {
	return e.coordinator.Status()
}

// Metrics exposes the run counters as a Prometheus collector.
func (e *Engine) Metrics() *metrics.Set {
	return e.counters
}

// Guard exposes the egress guard for violation inspection.
func (e *Engine) Guard() *security.EgressGuard {
	return e.guard
}

// onGuardViolation escalates blocked violations into a drain. Unblocked
// violations are already recorded by the guard itself.
func (e *Engine) onGuardViolation(v security.Violation) {
	if !v.Blocked || e.coordinator == nil {
		return
	}
	e.coordinator.Fail(fmt.Errorf("egress policy violation on %s '%s'", v.Kind, v.Value))
}
