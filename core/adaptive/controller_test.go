package adaptive

import (
	"testing"
	"time"

	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/probe"
	"github.com/gofeint/gofeint/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTechniques = []string{"state-exhaustion", "app-layer-mimicry", "slow-read"}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(10, testTechniques, testutils.NewTestLogger(), events.NewNopSink())
	require.NoError(t, err)
	return c
}

func result(sig probe.Signal, latency time.Duration) probe.Result {
	return probe.Result{Timestamp: time.Now(), Latency: latency, Signal: sig}
}

func TestNewController_validates_arguments(t *testing.T) {
	_, err := NewController(1, testTechniques, nil, nil)
	assert.Error(t, err)
	_, err = NewController(10, nil, nil, nil)
	assert.Error(t, err)
}

func TestUpdate_blocked_majority_switches_technique_and_halves_rate(t *testing.T) {
	c := newTestController(t)
	prior := c.Decide()

	for i := 0; i < 5; i++ {
		c.Update(result(probe.SignalOK, 100*time.Millisecond))
	}
	c.Update(result(probe.SignalBlocked, 100*time.Millisecond))
	c.Update(result(probe.SignalBlocked, 100*time.Millisecond))
	d := c.Update(result(probe.SignalBlocked, 100*time.Millisecond))

	assert.Equal(t, ReasonBlockedMajority, d.ReasonCode)
	assert.LessOrEqual(t, d.RateMultiplier, 0.5)
	assert.NotEqual(t, prior.Technique, d.Technique)
	assert.Greater(t, d.RotationSpeed, prior.RotationSpeed)
}

func TestUpdate_challenge_counts_toward_blocked_rule(t *testing.T) {
	c := newTestController(t)
	c.Update(result(probe.SignalChallenge, time.Millisecond))
	d := c.Update(result(probe.SignalChallenge, time.Millisecond))
	assert.Equal(t, ReasonBlockedMajority, d.ReasonCode)
}

func TestUpdate_rate_limited_majority_cuts_rate(t *testing.T) {
	c := newTestController(t)
	var d Decision
	for i := 0; i < 6; i++ {
		d = c.Update(result(probe.SignalRateLimited, 300*time.Millisecond))
	}
	assert.Equal(t, ReasonRateLimited, d.ReasonCode)
	assert.Less(t, d.RateMultiplier, 1.0)
	assert.Equal(t, testTechniques[0], d.Technique)
	assert.Greater(t, d.RotationSpeed, 1.0)
}

func TestUpdate_ok_trend_raises_rate_up_to_ceiling(t *testing.T) {
	c := newTestController(t)
	c.SetCeiling(1.3)

	var d Decision
	for i := 0; i < 20; i++ {
		d = c.Update(result(probe.SignalOK, 100*time.Millisecond))
	}
	assert.Equal(t, ReasonOKTrend, d.ReasonCode)
	assert.Greater(t, d.RateMultiplier, 1.0)
	assert.LessOrEqual(t, d.RateMultiplier, 1.3)
}

func TestUpdate_ceiling_is_a_hard_bound(t *testing.T) {
	c := newTestController(t)
	c.SetCeiling(1.0)

	var d Decision
	for i := 0; i < 50; i++ {
		d = c.Update(result(probe.SignalOK, 100*time.Millisecond))
	}
	assert.LessOrEqual(t, d.RateMultiplier, 1.0)
}

func TestSetCeiling_clamps_an_already_high_rate(t *testing.T) {
	c := newTestController(t)
	c.SetCeiling(2.0)
	for i := 0; i < 20; i++ {
		c.Update(result(probe.SignalOK, 100*time.Millisecond))
	}
	require.Greater(t, c.Decide().RateMultiplier, 1.0)

	// Phase change with a lower ceiling pulls the live rate down with it.
	c.SetCeiling(0.8)
	assert.LessOrEqual(t, c.Decide().RateMultiplier, 0.8)
}

func TestUpdate_degrading_latency_holds_instead_of_raising(t *testing.T) {
	c := newTestController(t)
	c.SetCeiling(2.0)

	// Healthy signals but sharply rising latency: the ok-trend rule must
	// not fire.
	latency := 50 * time.Millisecond
	var d Decision
	for i := 0; i < 10; i++ {
		d = c.Update(result(probe.SignalOK, latency))
		latency *= 2
	}
	assert.Equal(t, ReasonHold, d.ReasonCode)
	assert.Less(t, d.RateMultiplier, 2.0)
}

func TestUpdate_mixed_window_holds_prior_decision(t *testing.T) {
	c := newTestController(t)
	c.Update(result(probe.SignalOK, time.Millisecond))
	c.Update(result(probe.SignalTimeout, time.Millisecond))
	d := c.Update(result(probe.SignalOK, time.Millisecond))
	assert.Equal(t, ReasonHold, d.ReasonCode)
	assert.Equal(t, 1.0, d.RateMultiplier)
}

func TestNextTechnique_single_technique_has_nothing_to_switch_to(t *testing.T) {
	c, err := NewController(10, []string{"slow-read"}, testutils.NewTestLogger(), events.NewNopSink())
	require.NoError(t, err)

	c.Update(result(probe.SignalBlocked, time.Millisecond))
	d := c.Update(result(probe.SignalBlocked, time.Millisecond))
	assert.Equal(t, ReasonBlockedMajority, d.ReasonCode)
	assert.Equal(t, "slow-read", d.Technique)
}

func TestDecide_reflects_only_observed_results(t *testing.T) {
	c := newTestController(t)
	before := c.Decide()
	assert.Equal(t, ReasonHold, before.ReasonCode)
	assert.Equal(t, 1.0, before.RateMultiplier)
}
