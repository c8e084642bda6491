// Package behavior computes human-like inter-request delays. Delays are
// sampled from named interval classes, jittered, scaled by a circadian
// multiplier derived from the hour of day, and stretched by session-level
// active/break alternation plus occasional explicit think pauses.
package behavior

import (
	"fmt"
	"math"
	"time"

	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/pkg/clock"
	"github.com/gofeint/gofeint/pkg/entropy"
)

// SessionPhase is the model's coarse activity state.
type SessionPhase int

const (
	PhaseActive SessionPhase = iota
	PhaseBreak
)

func (p SessionPhase) String() string {
	if p == PhaseBreak {
		return "BREAK"
	}
	return "ACTIVE"
}

// Session phase duration bounds.
const (
	activeMin = 30 * time.Second
	activeMax = 180 * time.Second
	breakMin  = 5 * time.Second
	breakMax  = 30 * time.Second
)

// Think-time pause bounds for the periodic explicit pause.
const (
	thinkMin = 1 * time.Second
	thinkMax = 3 * time.Second
)

// circadianAmplitude sets how far the time-of-day multiplier swings around
// 1.0: activity is fastest mid-afternoon and slowest in the early morning.
const circadianAmplitude = 0.5

// fastestHour is the hour of day at which the circadian multiplier bottoms
// out.
const fastestHour = 14.0

// Model produces the next-send delay for one vector. It is not safe for
// concurrent use; each vector owns its own instance.
type Model struct {
	cfg config.Timing
	rng *entropy.Source
	clk clock.Clock

	phase      SessionPhase
	phaseUntil time.Time
	calls      int
}

// NewModel builds a timing model from validated config.
func NewModel(cfg config.Timing, rng *entropy.Source, clk clock.Clock) (*Model, error) {
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("timing model requires at least one interval class")
	}
	if rng == nil {
		return nil, fmt.Errorf("timing model requires an entropy source")
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Model{cfg: cfg, rng: rng, clk: clk, phase: PhaseActive}, nil
}

// NextDelay returns a strictly positive delay until the next traffic unit.
func (m *Model) NextDelay() time.Duration {
	m.calls++
	now := m.clk.Now()

	class := m.cfg.Classes[m.rng.Intn(len(m.cfg.Classes))]
	base := m.rng.Duration(
		time.Duration(class.MinMs)*time.Millisecond,
		time.Duration(class.MaxMs)*time.Millisecond,
	)

	jitter := 1.0 + (m.rng.Float64()*2-1)*m.cfg.Jitter
	delay := time.Duration(float64(base) * jitter * CircadianMultiplier(hourOfDay(now)))

	delay += m.sessionPause(now)

	if m.cfg.ThinkEvery > 0 && m.calls%m.cfg.ThinkEvery == 0 {
		delay += m.rng.Duration(thinkMin, thinkMax)
	}

	if delay <= 0 {
		delay = time.Millisecond
	}
	return delay
}

// sessionPause alternates ACTIVE and BREAK periods. Entering a break returns
// the break's full duration as one large pause; the model then resumes an
// active period.
func (m *Model) sessionPause(now time.Time) time.Duration {
	if m.phaseUntil.IsZero() {
		m.phaseUntil = now.Add(m.rng.Duration(activeMin, activeMax))
		return 0
	}
	if now.Before(m.phaseUntil) {
		return 0
	}
	if m.phase == PhaseActive {
		pause := m.rng.Duration(breakMin, breakMax)
		m.phase = PhaseBreak
		m.phaseUntil = now.Add(pause)
		return pause
	}
	m.phase = PhaseActive
	m.phaseUntil = now.Add(m.rng.Duration(activeMin, activeMax))
	return 0
}

// Phase reports the model's current session phase.
func (m *Model) Phase() SessionPhase {
	return m.phase
}

// CircadianMultiplier maps an hour of day to a smooth delay scaling factor.
// It bottoms out mid-afternoon and peaks twelve hours away in the early
// morning, mimicking when humans are active.
func CircadianMultiplier(hour float64) float64 {
	return 1.0 - circadianAmplitude*math.Cos(2*math.Pi*(hour-fastestHour)/24)
}

func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}
