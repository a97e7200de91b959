package transport

import "errors"

// Sentinel errors shared by transport implementations.
var (
	// ErrNotOpen is returned by writes on a transport that is not open.
	ErrNotOpen = errors.New("transport not open")
)
