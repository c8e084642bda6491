// Package bridge provides a string-based wrapper around the core engine for
// embedding in non-Go orchestration, such as the dataset capture framework
// that schedules runs. Configuration goes in as YAML, status comes out as
// JSON.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofeint/gofeint/core"
	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/pkg/logging"
)

var (
	mu     sync.Mutex
	engine *core.Engine
	cancel context.CancelFunc
)

// StartEngine parses configYAML, builds an engine, and starts a run.
// Starting while a run is active is an error.
func StartEngine(configYAML string) error {
	mu.Lock()
	defer mu.Unlock()

	if engine != nil {
		return fmt.Errorf("engine is already running")
	}

	cfg, err := config.Parse([]byte(configYAML))
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	eng, err := core.NewEngine(cfg, logging.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	if err := eng.Start(ctx); err != nil {
		cancelFn()
		return err
	}

	engine = eng
	cancel = cancelFn
	return nil
}

// StopEngine drains the active run and releases the engine. Stopping when
// nothing runs is an error.
func StopEngine() error {
	mu.Lock()
	defer mu.Unlock()

	if engine == nil {
		return fmt.Errorf("engine is not running")
	}

	err := engine.Stop()
	cancel()
	engine = nil
	cancel = nil
	return err
}

// EngineStatus returns the active run's status as JSON. An idle bridge
// reports a stopped state with no run details.
func EngineStatus() (string, error) {
	mu.Lock()
	eng := engine
	mu.Unlock()

	var status core.Status
	if eng == nil {
		status = core.Status{State: core.StateStopped}
	} else {
		status = eng.Status()
	}

	buf, err := json.Marshal(status)
	if err != nil {
		return "", fmt.Errorf("failed to encode status: %w", err)
	}
	return string(buf), nil
}
