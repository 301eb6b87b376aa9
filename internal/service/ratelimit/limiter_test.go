package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsBurstThenRefills(t *testing.T) {
	l := New()
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	allowed := func(key string) bool {
		ok, _ := l.Allow(key, 2, 1)
		return ok
	}

	assert.True(t, allowed("1.2.3.4|train"))
	assert.True(t, allowed("1.2.3.4|train"))
	ok, wait := l.Allow("1.2.3.4|train", 2, 1)
	assert.False(t, ok)
	assert.InDelta(t, time.Second.Seconds(), wait.Seconds(), 0.01)

	// Other keys have their own bucket.
	assert.True(t, allowed("5.6.7.8|train"))

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, allowed("1.2.3.4|train"))
	assert.False(t, allowed("1.2.3.4|train"))
}

func TestLimiter_SweepsIdleKeys(t *testing.T) {
	l := New()
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a", 1, 1)
	l.Allow("b", 1, 1)
	assert.Equal(t, 2, l.Len())

	now = now.Add(time.Hour)
	l.Allow("c", 1, 1)
	assert.Equal(t, 1, l.Len())
}
