package session

import (
	"sync"
	"time"

	"github.com/voxlink/voxlink/pkg/signaling"
)

// callState tracks the signaling-derived lifecycle and the elapsed
// active duration. Transitions originate in the remote record; the
// coordinator only observes them here.
type callState struct {
	// mu protects concurrent access
	mu       sync.Mutex
	status   signaling.SessionStatus
	duration time.Duration
}

func newCallState(initial signaling.SessionStatus) *callState {
	return &callState{status: initial}
}

// Observe records a snapshot's status and reports whether it changed.
// A status observed after a terminal one is ignored; terminal states
// are absorbing.
func (s *callState) Observe(status signaling.SessionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == status {
		return false
	}
	if s.status.Terminal() {
		return false
	}

	s.status = status
	return true
}

// Status returns the current lifecycle status
func (s *callState) Status() signaling.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Tick advances the duration by one interval while the session is
// active or open. The counter freezes on terminal states.
func (s *callState) Tick(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == signaling.StatusActive || s.status == signaling.StatusOpen {
		s.duration += interval
	}
}

// Duration returns the accumulated active duration
func (s *callState) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}
