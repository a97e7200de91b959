package conn

import (
	"sync"

	"resock/pkg/transport"
)

// OpenEvent is delivered to open listeners.
type OpenEvent struct {
	// Protocol is the subprotocol negotiated for this epoch, empty when
	// the server selected none.
	Protocol string
	// IsReconnect reports whether this open followed a reconnect cycle
	// rather than the initial connect.
	IsReconnect bool
}

// events fans out connection events to registered listeners. Listeners are
// invoked in registration order, synchronously with respect to the
// transport callback that triggered them. Registration is safe at any
// point in the connection's life.
type events struct {
	mu         sync.Mutex
	connecting []func()
	open       []func(OpenEvent)
	message    []func(transport.MessageEvent)
	errs       []func(transport.ErrorEvent)
	closed     []func(transport.CloseEvent)
}

func (e *events) addConnecting(fn func()) {
	e.mu.Lock()
	e.connecting = append(e.connecting, fn)
	e.mu.Unlock()
}

func (e *events) addOpen(fn func(OpenEvent)) {
	e.mu.Lock()
	e.open = append(e.open, fn)
	e.mu.Unlock()
}

func (e *events) addMessage(fn func(transport.MessageEvent)) {
	e.mu.Lock()
	e.message = append(e.message, fn)
	e.mu.Unlock()
}

func (e *events) addError(fn func(transport.ErrorEvent)) {
	e.mu.Lock()
	e.errs = append(e.errs, fn)
	e.mu.Unlock()
}

func (e *events) addClose(fn func(transport.CloseEvent)) {
	e.mu.Lock()
	e.closed = append(e.closed, fn)
	e.mu.Unlock()
}

func (e *events) emitConnecting() {
	e.mu.Lock()
	listeners := append([]func(){}, e.connecting...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (e *events) emitOpen(ev OpenEvent) {
	e.mu.Lock()
	listeners := append([]func(OpenEvent){}, e.open...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (e *events) emitMessage(ev transport.MessageEvent) {
	e.mu.Lock()
	listeners := append([]func(transport.MessageEvent){}, e.message...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (e *events) emitError(ev transport.ErrorEvent) {
	e.mu.Lock()
	listeners := append([]func(transport.ErrorEvent){}, e.errs...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (e *events) emitClose(ev transport.CloseEvent) {
	e.mu.Lock()
	listeners := append([]func(transport.CloseEvent){}, e.closed...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
