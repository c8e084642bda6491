package emit

import (
	"context"
	"time"

	"github.com/gofeint/gofeint/core/security"
	"github.com/gofeint/gofeint/pkg/logging"

	"golang.org/x/time/rate"
)

// Middleware wraps an Emitter with additional behavior.
type Middleware func(Emitter) Emitter

// Chain composes middlewares around a base emitter. They apply in the order
// given, so the first middleware sees emissions first.
func Chain(base Emitter, middlewares ...Middleware) Emitter {
	for i := len(middlewares) - 1; i >= 0; i-- {
		base = middlewares[i](base)
	}
	return base
}

// loggingEmitter logs each emission at debug level.
type loggingEmitter struct {
	Emitter
	logger logging.Logger
}

// LoggingMiddleware records emissions through the structured logger.
func LoggingMiddleware(logger logging.Logger) Middleware {
	return func(base Emitter) Emitter {
		return &loggingEmitter{Emitter: base, logger: logger.With("component", "emitter")}
	}
}

func (e *loggingEmitter) Emit(ctx context.Context, unit *Unit) error {
	err := e.Emitter.Emit(ctx, unit)
	if err != nil {
		e.logger.Debug("emission failed",
			"vector", unit.Vector, "kind", string(unit.Kind), "error", err)
	} else {
		e.logger.Debug("unit emitted",
			"vector", unit.Vector, "kind", string(unit.Kind), "bytes", len(unit.Payload))
	}
	return err
}

// retryEmitter retries transient failures with a short fixed backoff.
type retryEmitter struct {
	Emitter
	attempts int
	delay    time.Duration
	onRetry  func()
}

// RetryMiddleware retries transient emission failures up to attempts times,
// waiting delay between tries. onRetry, if non-nil, is invoked once per
// retry so callers can count them. Non-transient errors pass through
// untouched.
func RetryMiddleware(attempts int, delay time.Duration, onRetry func()) Middleware {
	return func(base Emitter) Emitter {
		return &retryEmitter{Emitter: base, attempts: attempts, delay: delay, onRetry: onRetry}
	}
}

func (e *retryEmitter) Emit(ctx context.Context, unit *Unit) error {
	var lastErr error
	for i := 0; i < e.attempts; i++ {
		if i > 0 {
			if e.onRetry != nil {
				e.onRetry()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.delay):
			}
		}
		lastErr = e.Emitter.Emit(ctx, unit)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// throttleEmitter paces emissions through a shared rate limiter.
type throttleEmitter struct {
	Emitter
	limiter *rate.Limiter
}

// ThrottleMiddleware caps emissions per second across every vector sharing
// the chain; the limit comes from the config's rate ceiling.
func ThrottleMiddleware(limiter *rate.Limiter) Middleware {
	return func(base Emitter) Emitter {
		return &throttleEmitter{Emitter: base, limiter: limiter}
	}
}

func (e *throttleEmitter) Emit(ctx context.Context, unit *Unit) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	return e.Emitter.Emit(ctx, unit)
}

// guardEmitter rejects units whose source or destination violates the
// egress policy before they reach the wire.
type guardEmitter struct {
	Emitter
	guard *security.EgressGuard
}

// GuardMiddleware enforces the egress policy on every unit.
func GuardMiddleware(guard *security.EgressGuard) Middleware {
	return func(base Emitter) Emitter {
		return &guardEmitter{Emitter: base, guard: guard}
	}
}

func (e *guardEmitter) Emit(ctx context.Context, unit *Unit) error {
	if unit.Source.IsValid() {
		if err := e.guard.CheckSource(unit.Source); err != nil {
			return err
		}
	}
	if unit.Dest != "" {
		if err := e.guard.CheckDestination(unit.Dest); err != nil {
			return err
		}
	}
	return e.Emitter.Emit(ctx, unit)
}
