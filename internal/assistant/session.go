package assistant

import (
	"context"
	"sync"
	"sync/atomic"
)

type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Session is the activity flag. At most one listener runs per Running
// period; each period gets a fresh id and cancellable context.
type Session struct {
	state  atomic.Int32
	mu     sync.Mutex
	cancel context.CancelFunc
	id     uint64
}

// Start moves the session to Running. It reports false when the session was
// already running, in which case no new listener should be spawned.
func (s *Session) Start(parent context.Context) (context.Context, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return nil, 0, false
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.id++
	return ctx, s.id, true
}

// Stop moves the session to Stopped and cancels the running period, returning
// the id of the period it ended. Stopping a stopped session is a no-op that
// reports false.
func (s *Session) Stop() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopLocked() {
		return 0, false
	}
	return s.id, true
}

// end stops the session only if id is still the current period.
func (s *Session) end(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != id {
		return false
	}
	return s.stopLocked()
}

func (s *Session) stopLocked() bool {
	if !s.state.CompareAndSwap(int32(Running), int32(Stopped)) {
		return false
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return true
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) Running() bool {
	return s.State() == Running
}

// ID is the id of the latest Running period, zero before the first Start.
func (s *Session) ID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}
