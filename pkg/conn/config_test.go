package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"resock/pkg/transport"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.False(t, opts.Debug)
	assert.False(t, opts.ManualOpen)
	assert.Equal(t, 1*time.Second, opts.ReconnectInterval)
	assert.Equal(t, 300*time.Second, opts.MaxReconnectInterval)
	assert.Equal(t, 1.5, opts.ReconnectDecay)
	assert.Equal(t, 2*time.Second, opts.TimeoutInterval)
	assert.Zero(t, opts.MaxReconnectAttempts)
	assert.Equal(t, transport.BinaryTypeBlob, opts.BinaryType)
	assert.Zero(t, opts.SendLimitSends)
}

func TestOptions_NormalizeFillsZeroFields(t *testing.T) {
	opts := &Options{ReconnectInterval: 100 * time.Millisecond}
	opts.normalize()

	assert.Equal(t, 100*time.Millisecond, opts.ReconnectInterval)
	assert.Equal(t, DefaultMaxReconnectInterval, opts.MaxReconnectInterval)
	assert.Equal(t, DefaultReconnectDecay, opts.ReconnectDecay)
	assert.Equal(t, DefaultTimeoutInterval, opts.TimeoutInterval)
	assert.Equal(t, transport.BinaryTypeBlob, opts.BinaryType)
}

func TestOptions_NormalizeDefaultsSendLimitPeriod(t *testing.T) {
	opts := &Options{SendLimitSends: 10}
	opts.normalize()

	assert.Equal(t, time.Second, opts.SendLimitPeriod)
}

func TestOptions_Validate(t *testing.T) {
	opts := DefaultOptions()
	assert.NoError(t, opts.Validate())

	decayBelowOne := DefaultOptions()
	decayBelowOne.ReconnectDecay = 0.5
	assert.Error(t, decayBelowOne.Validate())

	negativeAttempts := DefaultOptions()
	negativeAttempts.MaxReconnectAttempts = -1
	assert.Error(t, negativeAttempts.Validate())

	badBinaryType := DefaultOptions()
	badBinaryType.BinaryType = "base64"
	assert.Error(t, badBinaryType.Validate())

	capBelowBase := DefaultOptions()
	capBelowBase.ReconnectInterval = time.Minute
	capBelowBase.MaxReconnectInterval = time.Second
	assert.Error(t, capBelowBase.Validate())
}

func TestSetDebugAll(t *testing.T) {
	assert.False(t, DebugAll())

	SetDebugAll(true)
	assert.True(t, DebugAll())

	SetDebugAll(false)
	assert.False(t, DebugAll())
}
