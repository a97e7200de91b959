package conn

import "errors"

// Sentinel errors for connection operations.
var (
	// ErrInvalidState is returned by sends while no transport is owned,
	// such as during the backoff gap between reconnect attempts. Data is
	// never queued.
	ErrInvalidState = errors.New("connection in invalid state for send")
	// ErrClosed is returned when operating on a permanently closed
	// connection. A closed connection is not reusable.
	ErrClosed = errors.New("connection is closed")
	// ErrSendLimited is returned by Send when the configured send pacing
	// limit refuses a payload.
	ErrSendLimited = errors.New("send rate limit exceeded")
)
