package conn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"resock/internal/backoff"
	"resock/internal/ratelimit"
	"resock/pkg/transport"
)

// Conn wraps a single message-stream connection and transparently
// re-establishes it after unexpected loss, with exponential backoff between
// attempts. Callers observe one stable event surface; a reconnect never
// invalidates registered listeners.
//
// A Conn owns at most one live transport at a time. An unforced close of
// that transport schedules a retry; a close requested through Close is
// terminal and suppresses all future reconnection. A closed Conn is not
// reusable.
type Conn struct {
	url       string
	protocols []string
	opts      Options
	dialer    transport.Dialer
	limiter   *ratelimit.Limiter
	events    events
	state     *transport.State

	mu           sync.Mutex
	logger       zerolog.Logger
	tr           transport.Transport
	epoch        uint64
	negotiated   string
	attempts     int
	forced       bool
	timedOut     bool
	reconnecting bool
	stallTimer   *time.Timer
	retryTimer   *time.Timer
}

// New creates a connection to url offering the given subprotocols. A nil
// opts uses DefaultOptions. Unless ManualOpen is set, the first connection
// attempt begins during construction.
func New(url string, protocols []string, opts *Options) (*Conn, error) {
	return NewWithDialer(url, protocols, opts, transport.NewGWS())
}

// NewWithDialer is New with an explicit transport dialer, for callers
// supplying their own transport implementation.
func NewWithDialer(url string, protocols []string, opts *Options, dialer transport.Dialer) (*Conn, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	o := *opts
	o.normalize()
	if err := o.Validate(); err != nil {
		return nil, err
	}

	c := &Conn{
		url:       url,
		protocols: append([]string(nil), protocols...),
		opts:      o,
		dialer:    dialer,
		logger:    zerolog.Nop(),
		state:     &transport.State{},
	}
	c.state.Store(transport.StateConnecting)
	if o.SendLimitSends > 0 {
		c.limiter = ratelimit.New(o.SendLimitSends, o.SendLimitPeriod)
	}

	if !o.ManualOpen {
		_ = c.Connect()
	}
	return c, nil
}

// SetLogger configures the logger for this connection. Call it before
// Connect when using ManualOpen, or right after New otherwise.
func (c *Conn) SetLogger(logger zerolog.Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// OnConnecting registers a listener for connecting events, fired whenever a
// fresh connection attempt begins or connectivity is lost and a retry cycle
// starts.
func (c *Conn) OnConnecting(fn func()) { c.events.addConnecting(fn) }

// OnOpen registers a listener for open events.
func (c *Conn) OnOpen(fn func(OpenEvent)) { c.events.addOpen(fn) }

// OnMessage registers a listener for inbound payloads, delivered verbatim.
func (c *Conn) OnMessage(fn func(transport.MessageEvent)) { c.events.addMessage(fn) }

// OnError registers a listener for transport errors, delivered verbatim.
func (c *Conn) OnError(fn func(transport.ErrorEvent)) { c.events.addError(fn) }

// OnClose registers a listener for close events. A single genuine
// disconnect yields a single close event, not one per retry; the terminal
// close after Close is always delivered.
func (c *Conn) OnClose(fn func(transport.CloseEvent)) { c.events.addClose(fn) }

// Connect begins the initial connection attempt. It is only needed with
// ManualOpen; New performs it otherwise. Connecting an already connecting
// or open Conn, or one with a retry pending, is a no-op; connecting a
// closed Conn returns ErrClosed.
func (c *Conn) Connect() error {
	c.mu.Lock()
	if c.forced {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.tr != nil || c.retryTimer != nil {
		// A transport is owned or the backoff timer will construct one;
		// dialing here would leave two live transports.
		c.mu.Unlock()
		return nil
	}
	c.attempts = 0
	c.reconnecting = false
	c.state.Store(transport.StateConnecting)
	c.mu.Unlock()

	c.events.emitConnecting()

	c.mu.Lock()
	// A listener may have closed the connection or raced a second Connect
	// while the event was being delivered.
	if !c.forced && c.tr == nil && c.retryTimer == nil {
		c.dialLocked()
	}
	c.mu.Unlock()
	return nil
}

// Send forwards data over the currently owned transport as a binary
// payload. It fails with ErrInvalidState while no transport is owned, such
// as during the backoff gap; data is never queued.
func (c *Conn) Send(data []byte) error {
	t, err := c.sendable()
	if err != nil {
		return err
	}
	return t.Send(data)
}

// SendText forwards text over the currently owned transport as a text
// payload. It fails with ErrInvalidState while no transport is owned.
func (c *Conn) SendText(text string) error {
	t, err := c.sendable()
	if err != nil {
		return err
	}
	return t.SendText(text)
}

// SendWait is Send that blocks until the pacing limit admits the payload
// or ctx is cancelled, instead of failing with ErrSendLimited. Without
// send pacing it behaves exactly like Send.
func (c *Conn) SendWait(ctx context.Context, data []byte) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	c.mu.Lock()
	t := c.tr
	c.mu.Unlock()
	if t == nil {
		return ErrInvalidState
	}
	return t.Send(data)
}

// SendJSON marshals v and forwards it as a text payload.
func (c *Conn) SendJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return c.SendText(string(data))
}

func (c *Conn) sendable() (transport.Transport, error) {
	c.mu.Lock()
	t := c.tr
	c.mu.Unlock()
	if t == nil {
		return nil, ErrInvalidState
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return nil, ErrSendLimited
	}
	return t, nil
}

// Close permanently shuts the connection down with the given close code and
// reason. Pending stall and retry timers are cancelled synchronously and no
// transport is ever constructed afterwards. Closing an already closed Conn
// is a no-op.
func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	alreadyForced := c.forced
	c.forced = true
	c.stopStallTimerLocked()
	c.stopRetryTimerLocked()
	t := c.tr
	terminal := false
	if t != nil {
		c.state.Store(transport.StateClosing)
	} else if !alreadyForced {
		// No transport owned, so no transport close event will arrive;
		// finish the terminal transition here.
		c.state.Store(transport.StateClosed)
		terminal = true
	}
	logger := c.logger
	c.mu.Unlock()

	if t != nil {
		_ = t.Close(code, reason)
		return
	}
	if terminal {
		logger.Info().Str("url", c.url).Msg("connection closed")
		c.events.emitClose(transport.CloseEvent{Code: code, Reason: reason})
	}
}

// Refresh drops the current transport without marking the connection
// closed, forcing an immediate reconnect cycle. Useful when a connection is
// suspected dead but has not errored. Refresh does nothing unless the
// connection is open.
func (c *Conn) Refresh() {
	c.mu.Lock()
	t := c.tr
	open := c.state.Load() == transport.StateOpen
	c.mu.Unlock()

	if t != nil && open {
		_ = t.Close(transport.CloseNormalClosure, "refresh")
	}
}

// URL returns the target address, immutable after construction.
func (c *Conn) URL() string {
	return c.url
}

// Protocols returns the subprotocols offered to the transport.
func (c *Conn) Protocols() []string {
	return append([]string(nil), c.protocols...)
}

// State returns the connection state. It persists StateConnecting across
// the gap between reconnect attempts; StateClosed is only reached through
// Close.
func (c *Conn) State() transport.ConnState {
	return c.state.Load()
}

// NegotiatedProtocol returns the subprotocol chosen by the remote side, or
// empty before open. It is cleared on every close, so a stale value is
// never visible between epochs.
func (c *Conn) NegotiatedProtocol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated
}

// ReconnectAttempts returns the number of reconnect cycles initiated since
// the last successful open, or since construction if none succeeded yet.
func (c *Conn) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// SetSendLimit adjusts the send pacing limit at runtime. It has no effect
// when pacing was not enabled at construction.
func (c *Conn) SetSendLimit(sends int, period time.Duration) {
	if c.limiter != nil {
		c.limiter.SetLimit(sends, period)
	}
}

// SendMetrics returns a snapshot of send pacing statistics, or the zero
// snapshot when pacing is disabled.
func (c *Conn) SendMetrics() ratelimit.MetricsSnapshot {
	if c.limiter == nil {
		return ratelimit.MetricsSnapshot{}
	}
	return c.limiter.Metrics()
}

// dialLocked constructs a new transport for the next epoch and arms the
// stall timer. The caller holds c.mu and has checked forced.
func (c *Conn) dialLocked() {
	c.epoch++
	epoch := c.epoch

	h := transport.Handler{
		OnOpen:    func(ev transport.OpenEvent) { c.handleOpen(epoch, ev) },
		OnMessage: func(ev transport.MessageEvent) { c.handleMessage(epoch, ev) },
		OnError:   func(ev transport.ErrorEvent) { c.handleError(epoch, ev) },
		OnClose:   func(ev transport.CloseEvent) { c.handleClose(epoch, ev) },
	}
	dialLogger := c.debugLogger()
	dialLogger.Debug().
		Str("url", c.url).
		Uint64("epoch", epoch).
		Bool("reconnect", c.reconnecting).
		Msg("dialing transport")

	c.tr = c.dialer.Dial(c.url, c.protocols, transport.DialOptions{
		BinaryType:       c.opts.BinaryType,
		HandshakeTimeout: c.opts.TimeoutInterval,
	}, h)

	c.stopStallTimerLocked()
	c.stallTimer = time.AfterFunc(c.opts.TimeoutInterval, func() { c.stallTimeout(epoch) })
}

// stallTimeout fires when a connection attempt neither succeeds nor fails
// within TimeoutInterval. The stalling transport is force-closed; its close
// event then re-enters the normal retry path without a duplicate close
// emission.
func (c *Conn) stallTimeout(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.tr == nil || c.state.Load() == transport.StateOpen {
		c.mu.Unlock()
		return
	}
	c.timedOut = true
	t := c.tr
	logger := c.logger
	c.mu.Unlock()

	logger.Warn().Str("url", c.url).Dur("timeout", c.opts.TimeoutInterval).Msg("connection attempt stalled")
	_ = t.Close(transport.CloseGoingAway, "connection attempt timed out")
}

func (c *Conn) handleOpen(epoch uint64, ev transport.OpenEvent) {
	c.mu.Lock()
	if epoch != c.epoch || c.forced {
		c.mu.Unlock()
		return
	}
	c.stopStallTimerLocked()
	// A stall timeout that lost the race against this open must not
	// suppress a later close emission.
	c.timedOut = false
	c.negotiated = ev.Protocol
	c.state.Store(transport.StateOpen)
	isReconnect := c.reconnecting
	c.attempts = 0
	c.reconnecting = false
	logger := c.logger
	c.mu.Unlock()

	logger.Info().
		Str("url", c.url).
		Str("protocol", ev.Protocol).
		Bool("reconnect", isReconnect).
		Msg("connection open")
	c.events.emitOpen(OpenEvent{Protocol: ev.Protocol, IsReconnect: isReconnect})
}

func (c *Conn) handleMessage(epoch uint64, ev transport.MessageEvent) {
	c.mu.Lock()
	stale := epoch != c.epoch
	logger := c.debugLogger()
	c.mu.Unlock()
	if stale {
		return
	}

	logger.Debug().Int("bytes", len(ev.Data)).Msg("message received")
	c.events.emitMessage(ev)
}

func (c *Conn) handleError(epoch uint64, ev transport.ErrorEvent) {
	c.mu.Lock()
	stale := epoch != c.epoch
	logger := c.debugLogger()
	c.mu.Unlock()
	if stale {
		return
	}

	logger.Debug().Err(ev.Err).Msg("transport error")
	c.events.emitError(ev)
}

func (c *Conn) handleClose(epoch uint64, ev transport.CloseEvent) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.stopStallTimerLocked()
	c.tr = nil
	c.negotiated = ""
	stalled := c.timedOut
	c.timedOut = false
	wasRetry := c.reconnecting
	c.reconnecting = false

	if c.forced {
		c.state.Store(transport.StateClosed)
		logger := c.logger
		c.mu.Unlock()

		logger.Info().Str("url", c.url).Int("code", ev.Code).Msg("connection closed")
		c.events.emitClose(ev)
		return
	}

	c.state.Store(transport.StateConnecting)
	delay := backoff.Delay(c.opts.ReconnectInterval, c.opts.MaxReconnectInterval, c.opts.ReconnectDecay, c.attempts)
	c.stopRetryTimerLocked()
	c.retryTimer = time.AfterFunc(delay, c.retryConnect)
	logger := c.logger
	c.mu.Unlock()

	logger.Warn().
		Str("url", c.url).
		Int("code", ev.Code).
		Dur("retry_in", delay).
		Msg("connection lost")

	c.events.emitConnecting()
	if !wasRetry && !stalled {
		// Only the first disconnect of a connectivity loss surfaces as a
		// close; the retry loop and the stall teardown stay silent.
		c.events.emitClose(ev)
	}
}

// retryConnect runs when the backoff timer fires. forced is re-checked
// here: a Close issued while the timer was pending wins, and no transport
// is constructed after it.
func (c *Conn) retryConnect() {
	c.mu.Lock()
	if c.forced || c.tr != nil {
		c.retryTimer = nil
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.attempts++
	if c.opts.MaxReconnectAttempts > 0 && c.attempts > c.opts.MaxReconnectAttempts {
		attempts := c.attempts - 1
		giveUp := c.opts.OnGiveUp
		logger := c.logger
		c.mu.Unlock()

		logger.Warn().
			Str("url", c.url).
			Int("attempts", attempts).
			Msg("reconnect attempts exhausted")
		if giveUp != nil {
			giveUp()
		}
		return
	}
	c.reconnecting = true
	reconnectLogger := c.debugLogger()
	reconnectLogger.Debug().Int("attempt", c.attempts).Str("url", c.url).Msg("reconnecting")
	c.dialLocked()
	c.mu.Unlock()
}

func (c *Conn) stopStallTimerLocked() {
	if c.stallTimer != nil {
		c.stallTimer.Stop()
		c.stallTimer = nil
	}
}

func (c *Conn) stopRetryTimerLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// debugLogger returns the connection logger when verbose diagnostics are
// enabled for this connection or process-wide, and a no-op logger
// otherwise. The caller holds c.mu.
func (c *Conn) debugLogger() zerolog.Logger {
	if c.opts.Debug || DebugAll() {
		return c.logger
	}
	return zerolog.Nop()
}
