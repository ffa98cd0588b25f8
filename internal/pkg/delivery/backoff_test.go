package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noJitter(b Backoff) Backoff {
	b.jitter = nil
	return b
}

func TestBackoffSchedule(t *testing.T) {
	b := noJitter(NewBackoff(time.Second, 30*time.Second))

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},  // capped (would be 32s)
		{10, 30 * time.Second}, // still capped
		{0, time.Second},       // clamped to first attempt
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffCapBelowBase(t *testing.T) {
	b := noJitter(NewBackoff(10*time.Second, 5*time.Second))
	assert.Equal(t, 5*time.Second, b.Delay(1))
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)

	for i := 0; i < 200; i++ {
		d := b.Delay(3) // nominal 4s
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 6*time.Second)
	}
}
