// Package adaptive turns probed target feedback into attack-parameter
// recommendations. A rolling window of probe results is re-evaluated on
// every update against an ordered rule set; each decision names the rule
// that produced it and only ever reflects results observed before it.
package adaptive

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofeint/gofeint/core/events"
	"github.com/gofeint/gofeint/core/probe"
	"github.com/gofeint/gofeint/pkg/logging"
)

// Reason codes name the rule that triggered a decision.
const (
	ReasonBlockedMajority = "blocked-majority"
	ReasonRateLimited     = "rate-limited"
	ReasonOKTrend         = "ok-trend"
	ReasonHold            = "hold"
)

// Decision is one adaptation recommendation.
type Decision struct {
	RateMultiplier float64
	Technique      string
	RotationSpeed  float64
	ReasonCode     string
}

// Rule thresholds and step factors.
const (
	blockedTriggerCount = 2
	blockedRateFactor   = 0.5
	rateLimitedFactor   = 0.7
	okTrendStep         = 1.1
	rotationSpeedStep   = 1.5
	rotationSpeedMax    = 4.0
	rateMultiplierMin   = 0.05
)

// latencySlack is how much the recent latency mean may exceed the older mean
// and still count as flat.
const latencySlack = 1.1

// Controller evaluates the probe window. Safe for concurrent use: the probe
// loop updates it while the coordinator reads decisions.
type Controller struct {
	windowSize int
	techniques []string
	logger     logging.Logger
	sink       events.Sink

	mu      sync.Mutex
	window  []probe.Result
	current Decision
	ceiling float64
}

// NewController builds a controller over the enabled techniques. The first
// technique is the initial recommendation.
func NewController(windowSize int, techniques []string, logger logging.Logger, sink events.Sink) (*Controller, error) {
	if windowSize <= 1 {
		return nil, fmt.Errorf("controller window must exceed 1, got %d", windowSize)
	}
	if len(techniques) == 0 {
		return nil, fmt.Errorf("controller requires at least one technique")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Controller{
		windowSize: windowSize,
		techniques: techniques,
		logger:     logger.With("component", "adaptive"),
		sink:       sink,
		current: Decision{
			RateMultiplier: 1.0,
			Technique:      techniques[0],
			RotationSpeed:  1.0,
			ReasonCode:     ReasonHold,
		},
		ceiling: 1.0,
	}, nil
}

// SetCeiling installs the current phase's hard upper bound on the rate
// multiplier. Adaptation never recommends above it.
func (c *Controller) SetCeiling(ceiling float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ceiling <= 0 {
		ceiling = 1.0
	}
	c.ceiling = ceiling
	if c.current.RateMultiplier > ceiling {
		c.current.RateMultiplier = ceiling
	}
}

// Update appends a probe result to the rolling window and re-evaluates the
// rules, returning the (possibly unchanged) current decision.
func (c *Controller) Update(res probe.Result) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = append(c.window, res)
	if len(c.window) > c.windowSize {
		c.window = c.window[len(c.window)-c.windowSize:]
	}

	prior := c.current
	next := c.evaluate(prior)
	c.current = next

	if next != prior {
		c.logger.Info("adaptation decision",
			"reason", next.ReasonCode,
			"rate_multiplier", next.RateMultiplier,
			"technique", next.Technique,
			"rotation_speed", next.RotationSpeed)
		events.Emit(c.sink, "adaptive", events.TypeAdaptation, map[string]interface{}{
			"reason":          next.ReasonCode,
			"rate_multiplier": next.RateMultiplier,
			"technique":       next.Technique,
			"rotation_speed":  next.RotationSpeed,
		})
	}
	return next
}

// Decide returns the latest decision without re-evaluating.
func (c *Controller) Decide() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) evaluate(prior Decision) Decision {
	var blocked, rateLimited, ok int
	for _, r := range c.window {
		switch r.Signal {
		case probe.SignalBlocked, probe.SignalChallenge:
			blocked++
		case probe.SignalRateLimited:
			rateLimited++
		case probe.SignalOK:
			ok++
		}
	}

	switch {
	case blocked >= blockedTriggerCount:
		return Decision{
			RateMultiplier: clampRate(prior.RateMultiplier*blockedRateFactor, blockedRateFactor),
			Technique:      c.nextTechnique(prior.Technique),
			RotationSpeed:  speedUp(prior.RotationSpeed),
			ReasonCode:     ReasonBlockedMajority,
		}

	case rateLimited > len(c.window)/2:
		return Decision{
			RateMultiplier: clampRate(prior.RateMultiplier*rateLimitedFactor, c.ceiling),
			Technique:      prior.Technique,
			RotationSpeed:  speedUp(prior.RotationSpeed),
			ReasonCode:     ReasonRateLimited,
		}

	case ok == len(c.window) && c.latencyFlat():
		rate := prior.RateMultiplier * okTrendStep
		if rate > c.ceiling {
			rate = c.ceiling
		}
		return Decision{
			RateMultiplier: rate,
			Technique:      prior.Technique,
			RotationSpeed:  prior.RotationSpeed,
			ReasonCode:     ReasonOKTrend,
		}
	}

	held := prior
	held.ReasonCode = ReasonHold
	return held
}

// latencyFlat reports whether the recent half of the window is no slower
// than the older half, within slack.
func (c *Controller) latencyFlat() bool {
	if len(c.window) < 4 {
		return true
	}
	mid := len(c.window) / 2
	older := meanLatency(c.window[:mid])
	recent := meanLatency(c.window[mid:])
	return float64(recent) <= float64(older)*latencySlack
}

func meanLatency(results []probe.Result) time.Duration {
	if len(results) == 0 {
		return 0
	}
	var total time.Duration
	for _, r := range results {
		total += r.Latency
	}
	return total / time.Duration(len(results))
}

// nextTechnique cycles to a different enabled technique. With only one
// technique enabled there is nothing to switch to.
func (c *Controller) nextTechnique(current string) string {
	if len(c.techniques) == 1 {
		return current
	}
	for i, name := range c.techniques {
		if name == current {
			return c.techniques[(i+1)%len(c.techniques)]
		}
	}
	return c.techniques[0]
}

func clampRate(rate, max float64) float64 {
	if rate > max {
		rate = max
	}
	if rate < rateMultiplierMin {
		rate = rateMultiplierMin
	}
	return rate
}

func speedUp(speed float64) float64 {
	speed *= rotationSpeedStep
	if speed > rotationSpeedMax {
		speed = rotationSpeedMax
	}
	return speed
}
