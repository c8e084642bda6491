package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/core/emit"
	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/security"
	"github.com/gofeint/gofeint/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Target = "http://192.168.56.10:8080"
	cfg.TotalDuration = 10 * time.Second
	cfg.RateCeiling = 1000
	cfg.Seed = 42
	cfg.Phases = []config.Phase{
		{DurationFraction: 0.5, AttackRatio: 0.2, Intensity: 0.3},
		{DurationFraction: 0.5, AttackRatio: 0.6, Intensity: 0.8},
	}
	// Keep the probe loop quiet unless a test drives it explicitly.
	cfg.Probe.Interval = time.Hour
	cfg.Timing.Classes = []config.IntervalClass{{Name: "fast", MinMs: 1, MaxMs: 3}}
	cfg.Timing.ThinkEvery = 1 << 30
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, opts *EngineOptions) *Engine {
	t.Helper()
	if opts == nil {
		opts = &EngineOptions{}
	}
	if opts.Emitter == nil {
		opts.Emitter = emit.NewDiscard()
	}
	if opts.Sink == nil {
		opts.Sink = events.NewNopSink()
	}
	eng, err := NewEngineWithOptions(cfg, testutils.NewTestLogger(), opts)
	require.NoError(t, err)
	eng.coordinator.tickInterval = 10 * time.Millisecond
	eng.coordinator.drainGrace = time.Second
	return eng
}

func TestNewEngine(t *testing.T) {
	t.Run("rejects_nil_config", func(t *testing.T) {
		_, err := NewEngine(nil, testutils.NewTestLogger())
		assert.Error(t, err)
	})

	t.Run("rejects_invalid_phase_plan", func(t *testing.T) {
		cfg := testConfig()
		cfg.Phases = []config.Phase{
			{DurationFraction: 0.5, AttackRatio: 0.2, Intensity: 0.3},
			{DurationFraction: 0.4, AttackRatio: 0.6, Intensity: 0.8},
		}
		_, err := NewEngine(cfg, testutils.NewTestLogger())
		require.Error(t, err)
		var verr *config.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("rejects_no_enabled_vectors", func(t *testing.T) {
		cfg := testConfig()
		cfg.Vectors = config.Vectors{}
		_, err := NewEngine(cfg, testutils.NewTestLogger())
		require.Error(t, err)
		var verr *config.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("builds_one_vector_per_enabled_technique", func(t *testing.T) {
		cfg := testConfig()
		cfg.Vectors = config.Vectors{StateExhaustion: true, SlowRead: true}
		eng := newTestEngine(t, cfg, nil)
		status := eng.Status()
		assert.Equal(t, StateIdle, status.State)
		assert.Equal(t, []string{"state-exhaustion", "slow-read"}, status.ActiveVectors)
	})
}

func TestEngine_lifecycle(t *testing.T) {
	t.Run("start_twice_fails", func(t *testing.T) {
		eng := newTestEngine(t, testConfig(), nil)
		require.NoError(t, eng.Start(context.Background()))
		defer func() { _ = eng.Stop() }()
		assert.Error(t, eng.Start(context.Background()))
	})

	t.Run("stop_when_idle_fails", func(t *testing.T) {
		eng := newTestEngine(t, testConfig(), nil)
		assert.Error(t, eng.Stop())
	})

	t.Run("stop_drains_and_reports_stopped", func(t *testing.T) {
		eng := newTestEngine(t, testConfig(), nil)
		require.NoError(t, eng.Start(context.Background()))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, StateRunning, eng.Status().State)

		require.NoError(t, eng.Stop())
		assert.Equal(t, StateStopped, eng.Status().State)
	})

	t.Run("restart_is_rejected", func(t *testing.T) {
		eng := newTestEngine(t, testConfig(), nil)
		require.NoError(t, eng.Start(context.Background()))
		require.NoError(t, eng.Stop())
		assert.Error(t, eng.Start(context.Background()))
	})
}

func TestEngine_counters_accumulate(t *testing.T) {
	cfg := testConfig()
	cfg.Vectors = config.Vectors{AppMimicry: true}
	eng := newTestEngine(t, cfg, nil)

	require.NoError(t, eng.Start(context.Background()))
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, eng.Stop())

	counters := eng.Status().CountersByVector["app-layer-mimicry"]
	assert.Greater(t, counters.Emitted+counters.Filler, uint64(0))
}

func TestEngine_guard_violation_drains_run(t *testing.T) {
	eng := newTestEngine(t, testConfig(), nil)
	require.NoError(t, eng.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)

	eng.onGuardViolation(security.Violation{
		Kind:    "source",
		Value:   "8.8.8.8",
		Blocked: true,
	})

	select {
	case <-eng.Wait():
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not drain after a guard violation")
	}

	err := eng.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "egress policy violation")
	assert.Equal(t, StateStopped, eng.Status().State)
}
