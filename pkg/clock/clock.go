// Package clock abstracts the time source so circadian and timeout behavior
// can be driven by a manual clock in tests.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type systemClock struct{}

// System returns the wall-clock backed Clock used in production.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}
