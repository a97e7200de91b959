package transport

import "sync/atomic"

// ConnState represents the lifecycle state of a single connection.
type ConnState int32

// Connection states, compatible with the standard four-state socket model.
const (
	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting ConnState = iota
	// StateOpen indicates the connection is established and usable.
	StateOpen
	// StateClosing indicates a close has been requested but not completed.
	StateClosing
	// StateClosed indicates the connection is fully closed.
	StateClosed
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	return [...]string{
		"connecting",
		"open",
		"closing",
		"closed",
	}[s]
}

// State provides thread-safe atomic access to a ConnState value.
type State struct {
	state atomic.Int32
}

// Load returns the current connection state.
func (s *State) Load() ConnState {
	return ConnState(s.state.Load())
}

// Store sets the connection state to the given value.
func (s *State) Store(state ConnState) {
	s.state.Store(int32(state))
}

// CompareAndSwap atomically compares the current state with old and swaps to new if equal.
// It returns true if the swap was performed.
func (s *State) CompareAndSwap(old, new ConnState) bool {
	return s.state.CompareAndSwap(int32(old), int32(new))
}
