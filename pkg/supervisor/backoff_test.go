package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	base := 1 * time.Second
	cap := 30 * time.Second

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{name: "first_attempt", attempt: 1, expected: 1 * time.Second},
		{name: "second_attempt", attempt: 2, expected: 2 * time.Second},
		{name: "third_attempt", attempt: 3, expected: 4 * time.Second},
		{name: "fifth_attempt", attempt: 5, expected: 16 * time.Second},
		{name: "capped", attempt: 10, expected: 30 * time.Second},
		{name: "far_past_cap", attempt: 60, expected: 30 * time.Second},
		{name: "attempt_below_one_clamps", attempt: 0, expected: 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BackoffDelay(base, cap, tt.attempt))
		})
	}
}

func TestBackoffDelayZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), BackoffDelay(0, 30*time.Second, 3))
}

func TestBackoffDelayMonotonicUntilCap(t *testing.T) {
	base := 50 * time.Millisecond
	cap := 2 * time.Second

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := BackoffDelay(base, cap, attempt)
		assert.GreaterOrEqual(t, d, prev, "delay must never shrink")
		assert.LessOrEqual(t, d, cap)
		prev = d
	}
	assert.Equal(t, cap, prev)
}
