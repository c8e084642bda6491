// Package schedule maps elapsed run time onto the configured phase plan.
package schedule

import (
	"fmt"
	"math"
	"time"

	"github.com/gofeint/gofeint/core/config"
)

// fractionTolerance matches the config validator's slack on the duration
// fraction sum.
const fractionTolerance = 1e-9

// Plan is a validated phase plan resolved against a total duration.
type Plan struct {
	phases     []config.Phase
	total      time.Duration
	boundaries []time.Duration // cumulative end time of each phase
}

// NewPlan resolves phases against total. Construction fails with a
// configuration error when the plan is empty, a fraction is non-positive,
// or the fractions do not sum to 1.0.
func NewPlan(phases []config.Phase, total time.Duration) (*Plan, error) {
	if len(phases) == 0 {
		return nil, config.NewValidationError(fmt.Errorf("phase plan is empty"))
	}
	if total <= 0 {
		return nil, config.NewValidationError(fmt.Errorf("total duration must be positive, got %v", total))
	}
	var sum float64
	for i, p := range phases {
		if p.DurationFraction <= 0 {
			return nil, config.NewValidationError(
				fmt.Errorf("phase %d duration fraction must be positive, got %v", i, p.DurationFraction))
		}
		sum += p.DurationFraction
	}
	if math.Abs(sum-1.0) > fractionTolerance {
		return nil, config.NewValidationError(
			fmt.Errorf("phase duration fractions must sum to 1.0, got %v", sum))
	}

	plan := &Plan{
		phases: append([]config.Phase(nil), phases...),
		total:  total,
	}
	var elapsed float64
	for _, p := range phases {
		elapsed += p.DurationFraction
		plan.boundaries = append(plan.boundaries, time.Duration(elapsed*float64(total)))
	}
	// Guard against accumulated floating point error on the final boundary.
	plan.boundaries[len(plan.boundaries)-1] = total
	return plan, nil
}

// At returns the phase index active at elapsed and the fractional progress
// through that phase. Elapsed past the total pins to the final phase at
// full progress.
func (p *Plan) At(elapsed time.Duration) (int, float64) {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= p.total {
		return len(p.phases) - 1, 1.0
	}
	start := time.Duration(0)
	for i, end := range p.boundaries {
		if elapsed < end {
			span := end - start
			if span <= 0 {
				return i, 1.0
			}
			return i, float64(elapsed-start) / float64(span)
		}
		start = end
	}
	return len(p.phases) - 1, 1.0
}

// Phase returns the definition of phase i.
func (p *Plan) Phase(i int) config.Phase {
	return p.phases[i]
}

// Len reports the number of phases.
func (p *Plan) Len() int {
	return len(p.phases)
}

// Total returns the run duration the plan was resolved against.
func (p *Plan) Total() time.Duration {
	return p.total
}

// Boundaries returns each phase's end offset from run start.
func (p *Plan) Boundaries() []time.Duration {
	return append([]time.Duration(nil), p.boundaries...)
}
