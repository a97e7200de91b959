package conn

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"resock/pkg/transport"
)

// Default values applied to zero-valued Options fields.
const (
	DefaultReconnectInterval    = 1 * time.Second
	DefaultMaxReconnectInterval = 300 * time.Second
	DefaultReconnectDecay       = 1.5
	DefaultTimeoutInterval      = 2 * time.Second
)

// Options tune a connection's reconnect behavior. Zero-valued numeric
// fields are replaced with defaults at construction; boolean fields are
// taken as given, so the zero value opens automatically with no verbose
// logging.
type Options struct {
	// Debug enables verbose diagnostic logging for this connection.
	Debug bool `json:"debug"`
	// ManualOpen disables the automatic connection attempt during New;
	// callers invoke Connect themselves.
	ManualOpen bool `json:"manual_open"`
	// ReconnectInterval is the base delay before the first reconnect attempt.
	ReconnectInterval time.Duration `json:"reconnect_interval" validate:"min=0"`
	// MaxReconnectInterval caps the computed backoff delay.
	MaxReconnectInterval time.Duration `json:"max_reconnect_interval" validate:"min=0"`
	// ReconnectDecay is the exponential growth factor applied per attempt.
	ReconnectDecay float64 `json:"reconnect_decay" validate:"omitempty,min=1"`
	// TimeoutInterval bounds how long a connection attempt may take to
	// reach open before it is treated as stalled and torn down.
	TimeoutInterval time.Duration `json:"timeout_interval" validate:"min=0"`
	// MaxReconnectAttempts stops reconnection once exceeded. Zero means
	// unlimited.
	MaxReconnectAttempts int `json:"max_reconnect_attempts" validate:"min=0"`
	// BinaryType selects how binary payloads reach message listeners:
	// "blob" delivers independent copies safe to retain, "arraybuffer"
	// delivers zero-copy views valid only inside the listener.
	BinaryType string `json:"binary_type" validate:"omitempty,oneof=blob arraybuffer"`
	// SendLimitSends enables outbound send pacing when positive: at most
	// this many sends are admitted per SendLimitPeriod. Refused sends fail
	// with ErrSendLimited.
	SendLimitSends int `json:"send_limit_sends" validate:"min=0"`
	// SendLimitPeriod is the window for SendLimitSends.
	SendLimitPeriod time.Duration `json:"send_limit_period" validate:"min=0"`
	// OnGiveUp, when set, is invoked once after MaxReconnectAttempts is
	// exhausted. Giving up is silent by default.
	OnGiveUp func() `json:"-"`
}

// DefaultOptions returns Options with the documented defaults: automatic
// open, 1s base reconnect interval, 300s cap, 1.5 decay, 2s stall timeout,
// unlimited attempts, blob binary payloads, no send pacing.
func DefaultOptions() *Options {
	return &Options{
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectInterval: DefaultMaxReconnectInterval,
		ReconnectDecay:       DefaultReconnectDecay,
		TimeoutInterval:      DefaultTimeoutInterval,
		BinaryType:           transport.BinaryTypeBlob,
	}
}

// normalize overlays defaults onto zero-valued fields.
func (o *Options) normalize() {
	if o.ReconnectInterval == 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.MaxReconnectInterval == 0 {
		o.MaxReconnectInterval = DefaultMaxReconnectInterval
	}
	if o.ReconnectDecay == 0 {
		o.ReconnectDecay = DefaultReconnectDecay
	}
	if o.TimeoutInterval == 0 {
		o.TimeoutInterval = DefaultTimeoutInterval
	}
	if o.BinaryType == "" {
		o.BinaryType = transport.BinaryTypeBlob
	}
	if o.SendLimitSends > 0 && o.SendLimitPeriod == 0 {
		o.SendLimitPeriod = time.Second
	}
}

// Validate checks option fields for consistency.
func (o *Options) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("validate options: %w", err)
	}
	if o.MaxReconnectInterval < o.ReconnectInterval {
		return fmt.Errorf("validate options: max reconnect interval %s below base interval %s",
			o.MaxReconnectInterval, o.ReconnectInterval)
	}
	return nil
}

// debugAll forces verbose logging for every connection in the process,
// regardless of the per-connection Debug option.
var debugAll atomic.Bool

// SetDebugAll toggles verbose logging for all connections in the process.
func SetDebugAll(enabled bool) {
	debugAll.Store(enabled)
}

// DebugAll reports whether process-wide verbose logging is enabled.
func DebugAll() bool {
	return debugAll.Load()
}
