package ratelimiter

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tb := newTokenBucket(10, 2, clock.Now)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	ok, wait := tb.Take()
	assert.False(t, ok)
	assert.Equal(t, 100*time.Millisecond, wait)

	clock.Advance(50 * time.Millisecond)
	ok, wait = tb.Take()
	assert.False(t, ok)
	assert.InDelta(t, float64(50*time.Millisecond), float64(wait), float64(time.Microsecond))

	clock.Advance(60 * time.Millisecond)
	assert.True(t, tb.Allow())
}

func TestTokenBucket_RefillIsCapped(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tb := newTokenBucket(100, 2, clock.Now)
	clock.Advance(time.Hour)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucket_ZeroRateNeverRefills(t *testing.T) {
	tb := NewTokenBucket(0, 1)
	assert.True(t, tb.Allow())
	ok, wait := tb.Take()
	assert.False(t, ok)
	assert.Equal(t, time.Duration(math.MaxInt64), wait)
}

func TestKeyed_SeparateBucketsPerKey(t *testing.T) {
	k, err := NewKeyed(0.001, 1, 0, 0)
	require.NoError(t, err)

	assert.True(t, k.Allow("alice"))
	ok, wait := k.Take("alice")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Minute)
	assert.True(t, k.Allow("bob"))
	assert.Equal(t, 2, k.Keys())
}

func TestKeyed_EvictsLeastRecentKey(t *testing.T) {
	k, err := NewKeyed(0.001, 1, 1, 0)
	require.NoError(t, err)

	assert.True(t, k.Allow("alice"))
	assert.True(t, k.Allow("bob"))
	// alice 被挤出后重新得到满桶
	assert.True(t, k.Allow("alice"))
	assert.Equal(t, 1, k.Keys())
}
