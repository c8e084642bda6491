package config

import (
	"fmt"
	"math"
	"net/url"
)

// fractionTolerance is the slack allowed when phase duration fractions are
// summed to 1.0.
const fractionTolerance = 1e-9

// ValidationError marks a configuration the engine refuses to start with.
// It wraps the underlying cause so callers can report the offending field.
type ValidationError struct {
	cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.cause)
}

func (e *ValidationError) Unwrap() error {
	return e.cause
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{cause: fmt.Errorf(format, args...)}
}

// NewValidationError wraps cause as a configuration failure. Other packages
// use it when they re-validate derived structures like phase plans.
func NewValidationError(cause error) *ValidationError {
	return &ValidationError{cause: cause}
}

// Validate checks the configuration for anything the engine cannot run with.
// All failures are ValidationErrors; the engine surfaces them at start and
// never begins a run.
func (c *Config) Validate() error {
	if c.Target == "" {
		return invalid("target must be set")
	}
	u, err := url.Parse(c.Target)
	if err != nil || u.Host == "" {
		return invalid("target '%s' is not a valid URL", c.Target)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("target '%s' must use http or https", c.Target)
	}
	if c.TotalDuration <= 0 {
		return invalid("total_duration must be positive, got %v", c.TotalDuration)
	}
	if c.RateCeiling <= 0 {
		return invalid("rate_ceiling must be positive, got %v", c.RateCeiling)
	}
	if c.AddressPoolSize <= 0 {
		return invalid("address_pool_size must be positive, got %d", c.AddressPoolSize)
	}
	if len(c.Vectors.Enabled()) == 0 {
		return invalid("at least one vector must be enabled")
	}
	if err := c.validatePhases(); err != nil {
		return err
	}
	if err := c.Probe.validate(); err != nil {
		return err
	}
	if err := c.Timing.validate(); err != nil {
		return err
	}
	if err := c.Connections.validate(); err != nil {
		return err
	}
	if err := c.Sessions.validate(); err != nil {
		return err
	}
	return c.Emitter.validate()
}

func (c *Config) validatePhases() error {
	if len(c.Phases) == 0 {
		return invalid("phase plan is empty")
	}
	var sum float64
	for i, p := range c.Phases {
		if p.DurationFraction <= 0 {
			return invalid("phase %d duration_fraction must be positive, got %v", i, p.DurationFraction)
		}
		if p.AttackRatio < 0 || p.AttackRatio > 1 {
			return invalid("phase %d attack_ratio must be within [0,1], got %v", i, p.AttackRatio)
		}
		if p.Intensity < 0 || p.Intensity > 1 {
			return invalid("phase %d intensity must be within [0,1], got %v", i, p.Intensity)
		}
		sum += p.DurationFraction
	}
	if math.Abs(sum-1.0) > fractionTolerance {
		return invalid("phase duration_fractions must sum to 1.0, got %v", sum)
	}
	return nil
}

func (p Probe) validate() error {
	if p.Interval <= 0 {
		return invalid("probe.interval must be positive, got %v", p.Interval)
	}
	if p.Timeout <= 0 {
		return invalid("probe.timeout must be positive, got %v", p.Timeout)
	}
	if p.BaselineMultiple <= 1 {
		return invalid("probe.baseline_multiple must exceed 1, got %v", p.BaselineMultiple)
	}
	if p.Window <= 1 {
		return invalid("probe.window must exceed 1, got %d", p.Window)
	}
	return nil
}

func (t Timing) validate() error {
	if len(t.Classes) == 0 {
		return invalid("timing.classes must not be empty")
	}
	for _, c := range t.Classes {
		if c.Name == "" {
			return invalid("timing class is missing a name")
		}
		if c.MinMs <= 0 || c.MaxMs < c.MinMs {
			return invalid("timing class '%s' has an invalid range [%d,%d]ms", c.Name, c.MinMs, c.MaxMs)
		}
	}
	if t.Jitter < 0 || t.Jitter >= 1 {
		return invalid("timing.jitter must be within [0,1), got %v", t.Jitter)
	}
	if t.ThinkEvery <= 0 {
		return invalid("timing.think_every must be positive, got %d", t.ThinkEvery)
	}
	return nil
}

func (c Connections) validate() error {
	if c.MaxTracked <= 0 {
		return invalid("connections.max_tracked must be positive, got %d", c.MaxTracked)
	}
	if c.MaxAge <= 0 {
		return invalid("connections.max_age must be positive, got %v", c.MaxAge)
	}
	if c.ResponseTimeout <= 0 {
		return invalid("connections.response_timeout must be positive, got %v", c.ResponseTimeout)
	}
	if c.WindowMin <= 0 || c.WindowMax < c.WindowMin || c.WindowMax > 65535 {
		return invalid("connections window bounds [%d,%d] are invalid", c.WindowMin, c.WindowMax)
	}
	return nil
}

func (s Sessions) validate() error {
	if s.RotateAfterRequests <= 0 {
		return invalid("sessions.rotate_after_requests must be positive, got %d", s.RotateAfterRequests)
	}
	if s.RotateAfter <= 0 {
		return invalid("sessions.rotate_after must be positive, got %v", s.RotateAfter)
	}
	return nil
}

func (e Emitter) validate() error {
	switch e.Kind {
	case "", "discard":
		return nil
	case "udp":
		if e.Addr == "" {
			return invalid("emitter.addr must be set for the udp emitter")
		}
		return nil
	default:
		return invalid("emitter.kind '%s' is not supported", e.Kind)
	}
}
