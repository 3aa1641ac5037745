package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	// other keys have their own bucket
	assert.True(t, l.Allow("10.0.0.2"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestLimiter_RefillCapsAtCapacity(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	l := New(1, 10)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("k"))
	now = now.Add(time.Hour)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}
