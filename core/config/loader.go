package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML configuration file. The result is not yet
// validated; callers run Validate before handing it to the engine.
func Load(filePath string) (*Config, error) {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filePath, err)
	}
	return Parse(buf)
}

// Parse parses YAML configuration bytes over the defaults, so a file only
// needs to state what it changes.
func Parse(buf []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with every tunable at its default. Target
// and Phases are intentionally empty; a run cannot start without them.
func Default() *Config {
	return &Config{
		TotalDuration:   5 * time.Minute,
		RateCeiling:     50,
		AddressPoolSize: 50,
		Vectors: Vectors{
			StateExhaustion: true,
			AppMimicry:      true,
			SlowRead:        true,
		},
		Probe: Probe{
			Interval:         2 * time.Second,
			Timeout:          3 * time.Second,
			BaselineMultiple: 3.0,
			Window:           10,
		},
		Timing: Timing{
			Classes: []IntervalClass{
				{Name: "typing", MinMs: 80, MaxMs: 150},
				{Name: "click", MinMs: 200, MaxMs: 400},
			},
			Jitter:     0.3,
			ThinkEvery: 50,
		},
		Connections: Connections{
			MaxTracked:      256,
			MaxAge:          30 * time.Second,
			ResponseTimeout: 5 * time.Second,
			WindowMin:       1024,
			WindowMax:       65535,
		},
		Sessions: Sessions{
			RotateAfterRequests: 25,
			RotateAfter:         2 * time.Minute,
		},
		Emitter: Emitter{Kind: "discard"},
	}
}
