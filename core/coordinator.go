package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofeint/gofeint/core/adaptive"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/metrics"
	"github.com/gofeint/gofeint/core/probe"
	"github.com/gofeint/gofeint/core/schedule"
	"github.com/gofeint/gofeint/core/vector"
	"github.com/gofeint/gofeint/pkg/clock"
	"github.com/gofeint/gofeint/pkg/logging"
)

// EngineState is the coordinator's lifecycle position.
type EngineState string

const (
	StateIdle     EngineState = "IDLE"
	StateRunning  EngineState = "RUNNING"
	StateDraining EngineState = "DRAINING"
	StateStopped  EngineState = "STOPPED"
)

// Coordinator cadences. The tick interval bounds how stale a snapshot can
// get and how long a stop request can go unobserved.
const (
	defaultTickInterval = 250 * time.Millisecond
	defaultDrainGrace   = 3 * time.Second
	hostSampleEvery     = 40 // ticks between host load samples
)

// PhaseStatus describes the schedule position at status time.
type PhaseStatus struct {
	Index       int     `json:"index"`
	AttackRatio float64 `json:"attack_ratio"`
	Intensity   float64 `json:"intensity"`
	Progress    float64 `json:"progress"`
}

// Status is the engine's externally visible state.
type Status struct {
	State            EngineState                       `json:"state"`
	CurrentPhase     PhaseStatus                       `json:"current_phase"`
	ActiveVectors    []string                          `json:"active_vectors"`
	LastAdaptation   adaptive.Decision                 `json:"last_adaptation"`
	CountersByVector map[string]metrics.VectorCounters `json:"counters_by_vector"`
}

// Coordinator owns the run lifecycle: it merges the phase schedule with the
// latest adaptation decision into the shared run state once per tick, drives
// the probe cadence, and enforces the run deadline.
type Coordinator struct {
	plan       *schedule.Plan
	controller *adaptive.Controller
	prober     *probe.Prober
	vectors    []vector.Vector
	state      *runState
	counters   *metrics.Set
	host       *metrics.HostSampler
	clk        clock.Clock
	logger     logging.Logger
	sink       events.Sink

	probeInterval time.Duration
	tickInterval  time.Duration
	drainGrace    time.Duration

	drainOnce sync.Once
	drainCh   chan struct{}

	mu          sync.Mutex
	engineState EngineState
	started     time.Time
	lastPhase   int
	progress    float64
	failure     error
}

func newCoordinator(plan *schedule.Plan, controller *adaptive.Controller, prober *probe.Prober,
	vectors []vector.Vector, counters *metrics.Set, clk clock.Clock,
	probeInterval time.Duration, logger logging.Logger, sink events.Sink) (*Coordinator, error) {
	if plan == nil || controller == nil || prober == nil || counters == nil {
		return nil, fmt.Errorf("coordinator is missing a required component")
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("coordinator requires at least one vector")
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	first := plan.Phase(0)
	dec := controller.Decide()
	initial := vector.Snapshot{
		AttackRatio:    first.AttackRatio,
		Intensity:      first.Intensity,
		RateMultiplier: dec.RateMultiplier,
		RotationSpeed:  dec.RotationSpeed,
		Technique:      dec.Technique,
		Remaining:      plan.Total(),
	}
	return &Coordinator{
		plan:          plan,
		state:         newRunState(initial),
		controller:    controller,
		prober:        prober,
		vectors:       vectors,
		counters:      counters,
		host:          metrics.NewHostSampler(),
		clk:           clk,
		logger:        logger.With("component", "coordinator"),
		sink:          sink,
		probeInterval: probeInterval,
		tickInterval:  defaultTickInterval,
		drainGrace:    defaultDrainGrace,
		drainCh:       make(chan struct{}),
		engineState:   StateIdle,
		lastPhase:     -1,
	}, nil
}

// Run drives the state machine until the deadline, a stop request, or an
// invariant violation, then drains every task and reports final counters.
// It blocks for the whole run.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	c.started = c.clk.Now()
	c.engineState = StateRunning
	c.mu.Unlock()

	c.logger.Info("run starting",
		"phases", c.plan.Len(),
		"total_duration", c.plan.Total().String(),
		"vectors", len(c.vectors))
	events.Emit(c.sink, "coordinator", events.TypeEngineState, map[string]interface{}{
		"state": string(StateRunning),
	})

	c.publishTick(0)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, v := range c.vectors {
		wg.Add(1)
		go func(v vector.Vector) {
			defer wg.Done()
			v.Run(runCtx, c.state)
		}(v)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.probeLoop(runCtx)
	}()

	c.tickLoop(runCtx)

	c.drain(cancel, &wg)

	c.mu.Lock()
	err := c.failure
	c.mu.Unlock()
	return err
}

// Fail records an invariant violation and forces draining. Safe to call
// from any goroutine, including guard callbacks.
func (c *Coordinator) Fail(err error) {
	c.mu.Lock()
	if c.failure == nil {
		c.failure = err
	}
	c.mu.Unlock()
	c.logger.Error("invariant violation, draining", "error", err)
	c.RequestStop()
}

// RequestStop asks the coordinator to drain early. Idempotent.
func (c *Coordinator) RequestStop() {
	c.drainOnce.Do(func() { close(c.drainCh) })
}

// Status reports the externally visible run state.
func (c *Coordinator) Status() Status {
	snap := c.state.Snapshot()
	c.mu.Lock()
	state := c.engineState
	progress := c.progress
	c.mu.Unlock()

	names := make([]string, 0, len(c.vectors))
	for _, v := range c.vectors {
		names = append(names, v.Name())
	}
	return Status{
		State: state,
		CurrentPhase: PhaseStatus{
			Index:       snap.PhaseIndex,
			AttackRatio: snap.AttackRatio,
			Intensity:   snap.Intensity,
			Progress:    progress,
		},
		ActiveVectors:    names,
		LastAdaptation:   c.controller.Decide(),
		CountersByVector: c.counters.ByVector(),
	}
}

// tickLoop merges schedule and adaptation into the run state until the
// deadline passes or draining is requested.
func (c *Coordinator) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.drainCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			elapsed := c.clk.Since(c.started)
			c.mu.Unlock()
			if elapsed >= c.plan.Total() {
				c.logger.Info("deadline reached", "elapsed", elapsed.String())
				return
			}
			c.publishTick(elapsed)

			ticks++
			if ticks%hostSampleEvery == 0 {
				c.sampleHost()
			}
		}
	}
}

// publishTick builds and publishes the merged snapshot for the given
// elapsed time, adjusting the adaptation ceiling on phase entry.
func (c *Coordinator) publishTick(elapsed time.Duration) {
	idx, progress := c.plan.At(elapsed)
	phase := c.plan.Phase(idx)

	c.mu.Lock()
	phaseChanged := idx != c.lastPhase
	c.lastPhase = idx
	c.progress = progress
	c.mu.Unlock()

	if phaseChanged {
		c.controller.SetCeiling(phaseCeiling(phase.Intensity))
		c.logger.Info("phase entered",
			"phase", idx,
			"attack_ratio", phase.AttackRatio,
			"intensity", phase.Intensity)
		events.Emit(c.sink, "coordinator", events.TypePhaseTransition, map[string]interface{}{
			"phase":        idx,
			"attack_ratio": phase.AttackRatio,
			"intensity":    phase.Intensity,
		})
	}

	dec := c.controller.Decide()
	remaining := c.plan.Total() - elapsed
	if remaining < 0 {
		remaining = 0
	}
	c.state.publish(vector.Snapshot{
		PhaseIndex:     idx,
		AttackRatio:    phase.AttackRatio,
		Intensity:      phase.Intensity,
		RateMultiplier: dec.RateMultiplier,
		RotationSpeed:  dec.RotationSpeed,
		Technique:      dec.Technique,
		Remaining:      remaining,
	})
}

// probeLoop runs the fixed probing cadence, feeding results into the
// adaptation controller.
func (c *Coordinator) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(c.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := c.prober.Probe(ctx)
			if ctx.Err() != nil {
				return
			}
			c.counters.ProbeResult(string(res.Signal))
			dec := c.controller.Update(res)
			c.counters.Decision(dec.ReasonCode)
		}
	}
}

// drain cancels every task, waits a bounded grace period, and finalizes.
func (c *Coordinator) drain(cancel context.CancelFunc, wg *sync.WaitGroup) {
	c.mu.Lock()
	c.engineState = StateDraining
	c.mu.Unlock()
	events.Emit(c.sink, "coordinator", events.TypeEngineState, map[string]interface{}{
		"state": string(StateDraining),
	})

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.drainGrace):
		c.logger.Warn("drain grace period expired with tasks still running")
	}

	c.mu.Lock()
	c.engineState = StateStopped
	c.mu.Unlock()

	counters := c.counters.ByVector()
	for name, vc := range counters {
		c.logger.Info("final counters",
			"vector", name,
			"emitted", vc.Emitted,
			"filler", vc.Filler,
			"dropped", vc.Dropped,
			"retries", vc.Retries)
	}
	events.Emit(c.sink, "coordinator", events.TypeEngineState, map[string]interface{}{
		"state": string(StateStopped),
	})
	c.logger.Info("run stopped")
}

// sampleHost publishes a host load reading. Failures are logged and skipped.
func (c *Coordinator) sampleHost() {
	sample, err := c.host.Sample()
	if err != nil {
		c.logger.Warn("host sampling failed", "error", err)
		return
	}
	events.Emit(c.sink, "coordinator", events.TypeHostSample, map[string]interface{}{
		"cpu_percent":    sample.CPUPercent,
		"mem_percent":    sample.MemPercent,
		"mem_used_bytes": sample.MemUsedBytes,
	})
}

// phaseCeiling maps a phase's intensity to the hard upper bound on the
// adaptation rate multiplier within that phase.
func phaseCeiling(intensity float64) float64 {
	return 1.0 + intensity
}
