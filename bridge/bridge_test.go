package bridge_test

import (
	"encoding/json"
	"testing"

	"github.com/gofeint/gofeint/bridge"
	"github.com/gofeint/gofeint/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
target: http://192.168.56.10:8080
total_duration: 10s
seed: 11
phases:
  - duration_fraction: 0.5
    attack_ratio: 0.2
    intensity: 0.3
  - duration_fraction: 0.5
    attack_ratio: 0.6
    intensity: 0.8
probe:
  interval: 1h
  timeout: 3s
  baseline_multiple: 3.0
  window: 10
`

func TestBridgeLifecycle(t *testing.T) {
	require.NoError(t, bridge.StartEngine(validYAML))
	defer func() { _ = bridge.StopEngine() }()

	t.Run("double_start_fails", func(t *testing.T) {
		assert.Error(t, bridge.StartEngine(validYAML))
	})

	t.Run("status_reports_running_json", func(t *testing.T) {
		out, err := bridge.EngineStatus()
		require.NoError(t, err)

		var status core.Status
		require.NoError(t, json.Unmarshal([]byte(out), &status))
		assert.Equal(t, core.StateRunning, status.State)
		assert.Len(t, status.ActiveVectors, 3)
	})

	t.Run("stop_releases_engine", func(t *testing.T) {
		require.NoError(t, bridge.StopEngine())
		assert.Error(t, bridge.StopEngine())

		out, err := bridge.EngineStatus()
		require.NoError(t, err)
		var status core.Status
		require.NoError(t, json.Unmarshal([]byte(out), &status))
		assert.Equal(t, core.StateStopped, status.State)
	})
}

func TestStartEngine_rejects_bad_yaml(t *testing.T) {
	assert.Error(t, bridge.StartEngine("target: [broken"))
}

func TestStartEngine_rejects_invalid_config(t *testing.T) {
	assert.Error(t, bridge.StartEngine("target: http://192.168.56.10:8080"))
}
