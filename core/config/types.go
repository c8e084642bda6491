package config

import "time"

// Config is the complete engine configuration.
type Config struct {
	// Target is the lab endpoint all traffic is directed at, as a URL for
	// application-layer vectors and probing (e.g. "http://192.168.56.10:8080").
	Target string `yaml:"target"`

	// TotalDuration is the hard deadline for the whole run.
	TotalDuration time.Duration `yaml:"total_duration"`

	// RateCeiling caps emitted units per second across all vectors.
	RateCeiling float64 `yaml:"rate_ceiling"`

	// AddressPoolSize bounds each vector's rotating source pool.
	AddressPoolSize int `yaml:"address_pool_size"`

	// Seed makes a run reproducible. Zero selects a random seed.
	Seed int64 `yaml:"seed,omitempty"`

	Phases      []Phase     `yaml:"phases"`
	Vectors     Vectors     `yaml:"vectors"`
	Probe       Probe       `yaml:"probe"`
	Timing      Timing      `yaml:"timing"`
	Connections Connections `yaml:"connections"`
	Sessions    Sessions    `yaml:"sessions"`
	Emitter     Emitter     `yaml:"emitter"`
}

// Phase is one segment of the run schedule. DurationFraction is the share of
// TotalDuration the phase occupies; all fractions must sum to 1.0.
// AttackRatio is the fraction of emitted units that are attack units rather
// than filler. Intensity in [0,1] scales how far adaptation may raise the
// pacing multiplier within the phase.
type Phase struct {
	DurationFraction float64 `yaml:"duration_fraction"`
	AttackRatio      float64 `yaml:"attack_ratio"`
	Intensity        float64 `yaml:"intensity"`
}

// Vectors toggles the individual attack techniques.
type Vectors struct {
	StateExhaustion bool `yaml:"state_exhaustion"`
	AppMimicry      bool `yaml:"app_mimicry"`
	SlowRead        bool `yaml:"slow_read"`
}

// Enabled returns the names of all enabled techniques in a fixed order.
func (v Vectors) Enabled() []string {
	var names []string
	if v.StateExhaustion {
		names = append(names, "state-exhaustion")
	}
	if v.AppMimicry {
		names = append(names, "app-layer-mimicry")
	}
	if v.SlowRead {
		names = append(names, "slow-read")
	}
	return names
}

// Probe configures target responsiveness probing.
type Probe struct {
	// Interval is the fixed probing cadence.
	Interval time.Duration `yaml:"interval"`
	// Timeout bounds a single probe round trip; expiry classifies as timeout.
	Timeout time.Duration `yaml:"timeout"`
	// BaselineMultiple flags a probe as rate-limited when its latency exceeds
	// the rolling baseline by this factor.
	BaselineMultiple float64 `yaml:"baseline_multiple"`
	// Window is the rolling number of probe results adaptation considers.
	Window int `yaml:"window"`
}

// Timing configures the human-behavior delay model.
type Timing struct {
	// Classes are the named base-delay interval classes the model samples
	// from, e.g. typing and click cadences.
	Classes []IntervalClass `yaml:"classes"`
	// Jitter is the symmetric multiplicative jitter applied to each base
	// delay, e.g. 0.3 for ±30%.
	Jitter float64 `yaml:"jitter"`
	// ThinkEvery injects an explicit 1-3s think pause roughly every N calls.
	ThinkEvery int `yaml:"think_every"`
}

// IntervalClass is a named uniform delay range.
type IntervalClass struct {
	Name  string `yaml:"name"`
	MinMs int    `yaml:"min_ms"`
	MaxMs int    `yaml:"max_ms"`
}

// Connections configures simulated handshake tracking.
type Connections struct {
	// MaxTracked caps live connection records per vector; the oldest record
	// is evicted beyond it.
	MaxTracked int `yaml:"max_tracked"`
	// MaxAge evicts records regardless of count once exceeded.
	MaxAge time.Duration `yaml:"max_age"`
	// ResponseTimeout moves SYN_SENT records to TIMED_OUT when no signal
	// arrives in time.
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	// WindowMin and WindowMax bound the randomized TCP window size.
	WindowMin int `yaml:"window_min"`
	WindowMax int `yaml:"window_max"`
}

// Sessions configures application-layer session profiles.
type Sessions struct {
	// RotateAfterRequests rotates a session profile once it has served this
	// many requests.
	RotateAfterRequests int `yaml:"rotate_after_requests"`
	// RotateAfter rotates a profile on age regardless of request count.
	RotateAfter time.Duration `yaml:"rotate_after"`
}

// Emitter selects where built traffic units go.
type Emitter struct {
	// Kind is "discard" (default; units are built and counted but not
	// written anywhere) or "udp" (unit payloads are datagrammed to Addr,
	// which must point into the lab network).
	Kind string `yaml:"kind"`
	Addr string `yaml:"addr,omitempty"`
}
