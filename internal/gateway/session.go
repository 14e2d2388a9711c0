package gateway

import (
	"sync"
	"sync/atomic"
)

// ConnState is the lifecycle state of one connection inside the hub.
type ConnState int32

const (
	// StateConnecting is the grace period before credentials are verified.
	// The connection is invisible to every other component.
	StateConnecting ConnState = iota

	// StateAuthenticated means the verifier accepted the credentials but
	// registration has not completed yet.
	StateAuthenticated

	// StateActive means the connection is registered and fully serviceable.
	StateActive

	// StateDisconnected is terminal.
	StateDisconnected
)

// Session is the hub's per-connection bookkeeping: transport handle,
// authenticated identity, and lifecycle state. Teardown is guarded by an
// atomic flag so transport errors and server shutdown can both trigger it.
type Session struct {
	sender Sender

	mu     sync.RWMutex
	userID string
	state  ConnState

	tornDown int32
}

func newSession(sender Sender) *Session {
	return &Session{sender: sender, state: StateConnecting}
}

// ID returns the connection ID.
func (s *Session) ID() string {
	return s.sender.ID()
}

// UserID returns the authenticated user, or "" before authentication.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// State returns the current lifecycle state.
func (s *Session) State() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setAuthenticated(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.state = StateAuthenticated
}

func (s *Session) setState(state ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// beginTeardown reports whether the caller won the right to run teardown.
func (s *Session) beginTeardown() bool {
	return atomic.CompareAndSwapInt32(&s.tornDown, 0, 1)
}
