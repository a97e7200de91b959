// Package transport defines the single-connection message-stream primitive
// wrapped by pkg/conn, plus a production implementation backed by lxzan/gws.
//
// A Transport covers exactly one connection epoch: it is constructed by a
// Dialer, reports its outcome through the Handler slots, and is discarded
// after its close event. Reconnection is the caller's concern.
package transport

import "time"

// Standard close codes used across the package.
const (
	// CloseNormalClosure signals a deliberate, clean shutdown.
	CloseNormalClosure = 1000
	// CloseGoingAway signals the endpoint is going away.
	CloseGoingAway = 1001
	// CloseAbnormalClosure signals the connection dropped without a close frame.
	CloseAbnormalClosure = 1006
)

// Binary payload representation modes. Blob delivers binary payloads as
// independent copies the receiver may retain; ArrayBuffer delivers a view
// of the frame buffer that is only valid during the message callback.
const (
	BinaryTypeBlob        = "blob"
	BinaryTypeArrayBuffer = "arraybuffer"
)

// OpenEvent is delivered once a connection attempt succeeds.
type OpenEvent struct {
	// Protocol is the subprotocol negotiated during the handshake,
	// empty when the server selected none.
	Protocol string
}

// MessageEvent carries one inbound payload, verbatim.
type MessageEvent struct {
	Data []byte
	// Binary reports whether the payload arrived in a binary frame.
	Binary bool
}

// ErrorEvent carries a transport-level error, verbatim and unclassified.
type ErrorEvent struct {
	Err error
}

// CloseEvent is delivered exactly once per transport, when its connection
// epoch ends.
type CloseEvent struct {
	Code   int
	Reason string
}

// Handler holds the reaction slots wired to a transport instance.
// Slots left nil are skipped.
type Handler struct {
	OnOpen    func(OpenEvent)
	OnMessage func(MessageEvent)
	OnError   func(ErrorEvent)
	OnClose   func(CloseEvent)
}

// DialOptions tune a single connection attempt.
type DialOptions struct {
	// BinaryType selects the binary payload representation mode,
	// BinaryTypeBlob when empty.
	BinaryType string
	// HandshakeTimeout bounds the dial and handshake. The caller typically
	// runs its own stall timer with the same value.
	HandshakeTimeout time.Duration
}

// Transport is one live connection epoch.
type Transport interface {
	// Send writes data as a binary payload.
	Send(data []byte) error
	// SendText writes text as a text payload.
	SendText(text string) error
	// Close requests shutdown with the given code and reason. The close
	// event still arrives through the handler.
	Close(code int, reason string) error
	// State returns the transport's own lifecycle state.
	State() ConnState
}

// Dialer constructs transports. Dial returns immediately; the attempt's
// outcome is reported through the handler slots, never as a return value,
// so the caller's stall timer bounds the whole attempt.
type Dialer interface {
	Dial(url string, protocols []string, opts DialOptions, h Handler) Transport
}
