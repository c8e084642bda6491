package core

import (
	"sync/atomic"

	"github.com/gofeint/gofeint/core/vector"
)

// runState publishes the merged run-state snapshot. The coordinator tick is
// the only writer; vectors read lock-free copies.
type runState struct {
	ptr atomic.Pointer[vector.Snapshot]
}

func newRunState(initial vector.Snapshot) *runState {
	s := &runState{}
	s.ptr.Store(&initial)
	return s
}

// Snapshot implements vector.StateReader.
func (s *runState) Snapshot() vector.Snapshot {
	return *s.ptr.Load()
}

func (s *runState) publish(snap vector.Snapshot) {
	s.ptr.Store(&snap)
}
