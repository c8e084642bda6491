// Package gofeint generates adaptive adversarial traffic against isolated
// lab targets for intrusion detection dataset research. The engine blends
// multiple attack vectors with legitimate-looking filler traffic, paces
// itself like a human, and adapts to the target's defensive reactions.
package gofeint

import (
	"context"

	"github.com/gofeint/gofeint/core"
	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/interfaces"
	"github.com/gofeint/gofeint/pkg/logging"
)

// Engine wraps the core engine behind the public interface.
type Engine struct {
	coreEngine *core.Engine
}

// NewEngine builds an engine from a validated configuration.
func NewEngine(cfg *config.Config, logger logging.Logger) (interfaces.Engine, error) {
	coreEngine, err := core.NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Engine{coreEngine: coreEngine}, nil
}

// NewEngineFromFile builds an engine from a YAML configuration file.
func NewEngineFromFile(path string, logger logging.Logger) (interfaces.Engine, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(cfg, logger)
}

// Start launches the run.
func (e *Engine) Start(ctx context.Context) error {
	return e.coreEngine.Start(ctx)
}

// Stop drains the run and waits for it to finish.
func (e *Engine) Stop() error {
	return e.coreEngine.Stop()
}

// Status reports the engine's externally visible state.
func (e *Engine) Status() core.Status {
	return e.coreEngine.Status()
}

// Wait returns a channel closed when the current run finishes.
func (e *Engine) Wait() <-chan struct{} {
	return e.coreEngine.Wait()
}
