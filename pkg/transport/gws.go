package transport

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/lxzan/gws"
	"github.com/rs/zerolog"
)

// GWS is a Dialer producing websocket transports backed by lxzan/gws.
// The zero value is not usable; construct with NewGWS.
type GWS struct {
	logger zerolog.Logger
}

// NewGWS creates a websocket dialer with logging disabled.
func NewGWS() *GWS {
	return &GWS{logger: zerolog.Nop()}
}

// SetLogger configures the logger used by transports this dialer produces.
func (g *GWS) SetLogger(logger zerolog.Logger) {
	g.logger = logger
}

// Dial starts a websocket connection attempt in the background and returns
// its transport handle immediately. Handshake success or failure arrives
// through the handler slots.
func (g *GWS) Dial(url string, protocols []string, opts DialOptions, h Handler) Transport {
	t := &gwsTransport{
		url:          url,
		handler:      h,
		logger:       g.logger,
		state:        &State{},
		copyPayloads: opts.BinaryType != BinaryTypeArrayBuffer,
	}
	t.state.Store(StateConnecting)
	go t.dial(protocols, opts)
	return t
}

type gwsTransport struct {
	url     string
	handler Handler
	logger  zerolog.Logger
	state   *State

	// copyPayloads selects how binary frame payloads reach the message
	// handler: true hands out an independent copy the receiver may retain
	// (blob), false hands out a view of the frame buffer that is only
	// valid for the duration of the callback (arraybuffer).
	copyPayloads bool

	mu          sync.Mutex
	conn        *gws.Conn
	closeReq    bool
	closeCode   int
	closeReason string
	closeSent   bool
}

type gwsEvents struct {
	t        *gwsTransport
	protocol string
}

func (t *gwsTransport) dial(protocols []string, opts DialOptions) {
	option := &gws.ClientOption{
		Addr:             t.url,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if len(protocols) > 0 {
		option.RequestHeader = http.Header{}
		option.RequestHeader.Set("Sec-WebSocket-Protocol", subprotocolOffer(protocols))
	}

	events := &gwsEvents{t: t}
	socket, resp, err := gws.NewClient(events, option)
	if err != nil {
		t.logger.Debug().Err(err).Str("url", t.url).Msg("websocket dial failed")
		if t.handler.OnError != nil {
			t.handler.OnError(ErrorEvent{Err: err})
		}
		t.deliverClose(CloseEvent{Code: CloseAbnormalClosure, Reason: err.Error()})
		return
	}

	t.mu.Lock()
	if t.closeReq {
		// Close raced the handshake; tear the fresh socket down and report
		// the close the caller asked for.
		code, reason := t.closeCode, t.closeReason
		t.mu.Unlock()
		_ = socket.NetConn().Close()
		t.deliverClose(CloseEvent{Code: code, Reason: reason})
		return
	}
	t.conn = socket
	t.mu.Unlock()

	if resp != nil {
		events.protocol = resp.Header.Get("Sec-WebSocket-Protocol")
	}

	// OnOpen fires from inside ReadLoop.
	socket.ReadLoop()
}

func (e *gwsEvents) OnOpen(socket *gws.Conn) {
	e.t.state.Store(StateOpen)
	e.t.logger.Debug().Str("url", e.t.url).Str("protocol", e.protocol).Msg("websocket open")
	if e.t.handler.OnOpen != nil {
		e.t.handler.OnOpen(OpenEvent{Protocol: e.protocol})
	}
}

func (e *gwsEvents) OnClose(socket *gws.Conn, err error) {
	e.t.deliverClose(e.t.closeEventFromError(err))
}

func (e *gwsEvents) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (e *gwsEvents) OnPong(socket *gws.Conn, payload []byte) {}

func (e *gwsEvents) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	if e.t.handler.OnMessage == nil {
		return
	}
	binary := message.Opcode == gws.OpcodeBinary
	e.t.handler.OnMessage(MessageEvent{
		Data:   e.t.inboundPayload(message.Bytes(), binary),
		Binary: binary,
	})
}

// inboundPayload prepares a frame payload for the message handler. Text
// payloads are always copied; binary payloads follow the configured
// BinaryType.
func (t *gwsTransport) inboundPayload(data []byte, binary bool) []byte {
	if binary && !t.copyPayloads {
		return data
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return payload
}

// Send writes data as a binary frame.
func (t *gwsTransport) Send(data []byte) error {
	socket, err := t.socket()
	if err != nil {
		return err
	}
	return socket.WriteMessage(gws.OpcodeBinary, data)
}

// SendText writes text as a text frame.
func (t *gwsTransport) SendText(text string) error {
	socket, err := t.socket()
	if err != nil {
		return err
	}
	return socket.WriteMessage(gws.OpcodeText, []byte(text))
}

// Close tears the connection down. The requested code and reason are echoed
// in the close event; a close issued before the handshake finishes aborts
// the in-flight attempt.
func (t *gwsTransport) Close(code int, reason string) error {
	t.mu.Lock()
	if t.closeReq {
		t.mu.Unlock()
		return nil
	}
	t.closeReq = true
	t.closeCode = code
	t.closeReason = reason
	socket := t.conn
	t.mu.Unlock()

	t.state.CompareAndSwap(StateConnecting, StateClosing)
	t.state.CompareAndSwap(StateOpen, StateClosing)

	if socket == nil {
		// Handshake still in flight; the dial goroutine finishes the close.
		return nil
	}
	return socket.NetConn().Close()
}

// State returns the transport's lifecycle state.
func (t *gwsTransport) State() ConnState {
	return t.state.Load()
}

func (t *gwsTransport) socket() (*gws.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.state.Load() != StateOpen {
		return nil, ErrNotOpen
	}
	return t.conn, nil
}

// deliverClose fires the close handler at most once per transport.
func (t *gwsTransport) deliverClose(ev CloseEvent) {
	t.mu.Lock()
	if t.closeSent {
		t.mu.Unlock()
		return
	}
	t.closeSent = true
	t.mu.Unlock()

	t.state.Store(StateClosed)
	t.logger.Debug().Int("code", ev.Code).Str("reason", ev.Reason).Str("url", t.url).Msg("websocket closed")
	if t.handler.OnClose != nil {
		t.handler.OnClose(ev)
	}
}

// closeEventFromError maps a ReadLoop exit error to a close event. A close
// requested through Close wins over whatever error the aborted read
// produced.
func (t *gwsTransport) closeEventFromError(err error) CloseEvent {
	t.mu.Lock()
	requested := t.closeReq
	code, reason := t.closeCode, t.closeReason
	t.mu.Unlock()

	if requested {
		return CloseEvent{Code: code, Reason: reason}
	}

	var ce *gws.CloseError
	if errors.As(err, &ce) {
		return CloseEvent{Code: int(ce.Code), Reason: string(ce.Reason)}
	}
	ev := CloseEvent{Code: CloseAbnormalClosure}
	if err != nil {
		ev.Reason = err.Error()
	}
	return ev
}

// subprotocolOffer joins subprotocol names for the handshake request header.
func subprotocolOffer(protocols []string) string {
	return strings.Join(protocols, ", ")
}
