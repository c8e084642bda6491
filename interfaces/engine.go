package interfaces

import (
	"context"

	"github.com/gofeint/gofeint/core"
)

// Engine defines the public interface for the traffic generation engine.
type Engine interface {
	// Start launches the run. Non-blocking; the run ends at the configured
	// deadline or on Stop.
	Start(ctx context.Context) error
	// Stop drains the run and waits for it to finish.
	Stop() error
	// Status reports the engine's externally visible state.
	Status() core.Status
	// Wait returns a channel closed when the current run finishes.
	Wait() <-chan struct{}
}
