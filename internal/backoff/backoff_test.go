package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_DefaultSchedule(t *testing.T) {
	base := 1 * time.Second
	limit := 300 * time.Second

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1500 * time.Millisecond},
		{2, 2250 * time.Millisecond},
		{5, 7593750 * time.Microsecond},
		{50, 300 * time.Second},
		{1000, 300 * time.Second},
	}

	for _, tt := range tests {
		result := Delay(base, limit, 1.5, tt.attempt)
		assert.Equal(t, tt.expected, result, "delay for attempt %d", tt.attempt)
	}
}

func TestDelay_DoublingSchedule(t *testing.T) {
	base := 100 * time.Millisecond
	limit := 2 * time.Second

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1600 * time.Millisecond},
		{5, 2 * time.Second},
		{20, 2 * time.Second},
	}

	for _, tt := range tests {
		result := Delay(base, limit, 2.0, tt.attempt)
		assert.Equal(t, tt.expected, result, "delay for attempt %d", tt.attempt)
	}
}

func TestDelay_ZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), Delay(0, time.Minute, 1.5, 3))
}

func TestDelay_BaseAboveLimit(t *testing.T) {
	assert.Equal(t, time.Second, Delay(5*time.Second, time.Second, 1.5, 0))
	assert.Equal(t, time.Second, Delay(5*time.Second, time.Second, 1.5, 2))
}

func TestDelay_DecayOfOneStaysFlat(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		assert.Equal(t, time.Second, Delay(time.Second, time.Minute, 1.0, attempt))
	}
}

func TestDelay_NoLimit(t *testing.T) {
	assert.Equal(t, 8*time.Second, Delay(time.Second, 0, 2.0, 3))
}
