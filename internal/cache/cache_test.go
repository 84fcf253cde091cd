package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := New[int, string]()
	c.Set(1, "one")
	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)
}

func TestMissCountsAndMissingKey(t *testing.T) {
	c := New[int, string]()
	_, ok := c.Get(42)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestTTLExpiry(t *testing.T) {
	c := New[int, string](WithTTL[int, string](10 * time.Millisecond))
	c.Set(1, "one")
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get(1)
	assert.False(t, ok, "entry older than TTL must never be returned")
	assert.GreaterOrEqual(t, c.Stats().Evictions, int64(1))
}

func TestEvictionBoundUnderPressure(t *testing.T) {
	// Mirrors seed scenario 6: max_size=3, insert 1..5 in order, then
	// query 1; id 1 is a miss (evicted), 3/4/5 are hits, evictions >= 2.
	c := New[int, string](WithMaxSize[int, string](3), WithTTL[int, string](time.Hour))
	for i := 1; i <= 5; i++ {
		c.Set(i, "v")
		assert.LessOrEqual(t, c.Stats().Size, 3, "cache size must never exceed max_size")
	}

	_, ok := c.Get(1)
	assert.False(t, ok, "id 1 should have been evicted")

	for _, id := range []int{3, 4, 5} {
		_, ok := c.Get(id)
		assert.True(t, ok, "id %d should still be cached", id)
	}
	assert.GreaterOrEqual(t, c.Stats().Evictions, int64(2))
}

func TestDeleteInvalidatesSingleEntry(t *testing.T) {
	c := New[int, string]()
	c.Set(1, "one")
	c.Set(2, "two")
	c.Delete(1)

	_, ok := c.Get(1)
	assert.False(t, ok)
	v, ok := c.Get(2)
	assert.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestSetEnabledClearsAndDisablesCaching(t *testing.T) {
	c := New[int, string]()
	c.Set(1, "one")
	c.SetEnabled(false)

	_, ok := c.Get(1)
	assert.False(t, ok, "disabled cache must not serve stale entries")

	c.Set(2, "two")
	_, ok = c.Get(2)
	assert.False(t, ok, "disabled cache must not accept new entries either")

	c.SetEnabled(true)
	c.Set(3, "three")
	_, ok = c.Get(3)
	assert.True(t, ok)
}

func TestHitRate(t *testing.T) {
	c := New[int, string]()
	c.Set(1, "one")
	c.Get(1)
	c.Get(1)
	c.Get(99)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.0001)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](WithMaxSize[int, int](50))
	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		w := w
		go func() {
			for i := 0; i < 200; i++ {
				key := (w*200 + i) % 100
				c.Set(key, key)
				c.Get(key)
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < 8; w++ {
		<-done
	}
	assert.LessOrEqual(t, c.Stats().Size, 50)
}
