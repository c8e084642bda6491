package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Target = "http://192.168.56.10:8080"
	cfg.TotalDuration = 100 * time.Second
	cfg.Phases = []Phase{
		{DurationFraction: 0.25, AttackRatio: 0.0, Intensity: 0.1},
		{DurationFraction: 0.25, AttackRatio: 0.1, Intensity: 0.2},
		{DurationFraction: 0.30, AttackRatio: 0.4, Intensity: 0.6},
		{DurationFraction: 0.20, AttackRatio: 0.7, Intensity: 1.0},
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:   "valid_config",
			mutate: func(c *Config) {},
		},
		{
			name:     "missing_target",
			mutate:   func(c *Config) { c.Target = "" },
			errorMsg: "target must be set",
		},
		{
			name:     "target_without_scheme",
			mutate:   func(c *Config) { c.Target = "192.168.56.10:8080" },
			errorMsg: "not a valid URL",
		},
		{
			name:     "zero_duration",
			mutate:   func(c *Config) { c.TotalDuration = 0 },
			errorMsg: "total_duration must be positive",
		},
		{
			name:     "negative_rate_ceiling",
			mutate:   func(c *Config) { c.RateCeiling = -1 },
			errorMsg: "rate_ceiling must be positive",
		},
		{
			name:     "empty_phase_plan",
			mutate:   func(c *Config) { c.Phases = nil },
			errorMsg: "phase plan is empty",
		},
		{
			name: "fractions_below_one",
			mutate: func(c *Config) {
				c.Phases = []Phase{
					{DurationFraction: 0.5, AttackRatio: 0.2, Intensity: 0.5},
					{DurationFraction: 0.4, AttackRatio: 0.2, Intensity: 0.5},
				}
			},
			errorMsg: "must sum to 1.0",
		},
		{
			name: "fractions_above_one",
			mutate: func(c *Config) {
				c.Phases = []Phase{
					{DurationFraction: 0.6, AttackRatio: 0.2, Intensity: 0.5},
					{DurationFraction: 0.6, AttackRatio: 0.2, Intensity: 0.5},
				}
			},
			errorMsg: "must sum to 1.0",
		},
		{
			name: "negative_fraction",
			mutate: func(c *Config) {
				c.Phases = []Phase{
					{DurationFraction: -0.5, AttackRatio: 0.2, Intensity: 0.5},
					{DurationFraction: 1.5, AttackRatio: 0.2, Intensity: 0.5},
				}
			},
			errorMsg: "duration_fraction must be positive",
		},
		{
			name: "attack_ratio_out_of_range",
			mutate: func(c *Config) {
				c.Phases[1].AttackRatio = 1.2
			},
			errorMsg: "attack_ratio must be within [0,1]",
		},
		{
			name: "no_vectors_enabled",
			mutate: func(c *Config) {
				c.Vectors = Vectors{}
			},
			errorMsg: "at least one vector must be enabled",
		},
		{
			name:     "bad_probe_interval",
			mutate:   func(c *Config) { c.Probe.Interval = 0 },
			errorMsg: "probe.interval must be positive",
		},
		{
			name:     "baseline_multiple_too_small",
			mutate:   func(c *Config) { c.Probe.BaselineMultiple = 1.0 },
			errorMsg: "baseline_multiple must exceed 1",
		},
		{
			name:     "empty_timing_classes",
			mutate:   func(c *Config) { c.Timing.Classes = nil },
			errorMsg: "timing.classes must not be empty",
		},
		{
			name: "inverted_timing_class",
			mutate: func(c *Config) {
				c.Timing.Classes = []IntervalClass{{Name: "typing", MinMs: 150, MaxMs: 80}}
			},
			errorMsg: "invalid range",
		},
		{
			name: "window_bounds_inverted",
			mutate: func(c *Config) {
				c.Connections.WindowMin = 5000
				c.Connections.WindowMax = 1024
			},
			errorMsg: "window bounds",
		},
		{
			name:     "unknown_emitter",
			mutate:   func(c *Config) { c.Emitter.Kind = "carrier-pigeon" },
			errorMsg: "emitter.kind 'carrier-pigeon' is not supported",
		},
		{
			name: "udp_emitter_without_addr",
			mutate: func(c *Config) {
				c.Emitter = Emitter{Kind: "udp"}
			},
			errorMsg: "emitter.addr must be set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "validation failures must be ValidationErrors")
		})
	}
}

func TestValidate_sum_tolerance(t *testing.T) {
	cfg := validConfig()
	// Three equal thirds do not sum to exactly 1.0 in floating point; the
	// tolerance must absorb that.
	third := 1.0 / 3.0
	cfg.Phases = []Phase{
		{DurationFraction: third, AttackRatio: 0.1, Intensity: 0.3},
		{DurationFraction: third, AttackRatio: 0.2, Intensity: 0.5},
		{DurationFraction: third, AttackRatio: 0.3, Intensity: 0.9},
	}
	assert.NoError(t, cfg.Validate())
}

func TestParse_overrides_defaults(t *testing.T) {
	raw := `
target: "http://10.0.0.5:9000"
total_duration: 100s
phases:
  - {duration_fraction: 0.5, attack_ratio: 0.2, intensity: 0.4}
  - {duration_fraction: 0.5, attack_ratio: 0.6, intensity: 0.9}
probe:
  interval: 1s
  timeout: 3s
  baseline_multiple: 3.0
  window: 10
`
	cfg, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://10.0.0.5:9000", cfg.Target)
	assert.Equal(t, 100*time.Second, cfg.TotalDuration)
	assert.Equal(t, time.Second, cfg.Probe.Interval)
	// Untouched settings keep their defaults.
	assert.Equal(t, 50, cfg.AddressPoolSize)
	assert.Equal(t, 50, cfg.Timing.ThinkEvery)
}

func TestVectorsEnabled(t *testing.T) {
	v := Vectors{StateExhaustion: true, SlowRead: true}
	assert.Equal(t, []string{"state-exhaustion", "slow-read"}, v.Enabled())
}
