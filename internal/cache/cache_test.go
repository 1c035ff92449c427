package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetDelete(t *testing.T) {
	c := New(10, 0)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", "v", 0)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	assert.True(t, c.Delete("k"))
	assert.False(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestExpiredEntryBehavesLikeMiss(t *testing.T) {
	c := New(10, 0)

	c.Set("k", 42, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	// The stale entry is removed as a side effect
	assert.Equal(t, 0, c.Len())
}

func TestLRUEviction(t *testing.T) {
	const maxSize = 5
	c := New(maxSize, 0)

	for i := 0; i < maxSize; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i, 0)
	}

	// key-0 was never re-read; the next insert must evict exactly it
	c.Set("overflow", "x", 0)

	_, ok := c.Get("key-0")
	assert.False(t, ok)
	for i := 1; i < maxSize; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, ok, "key-%d should survive", i)
	}
	assert.Equal(t, maxSize, c.Len())
}

func TestGetPromotesAgainstEviction(t *testing.T) {
	c := New(3, 0)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("c", 3, 0)

	// Re-reading "a" makes "b" the eviction candidate
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4, 0)

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestSetUpdatesAndPromotes(t *testing.T) {
	c := New(2, 0)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("a", 10, 0) // update promotes, no eviction
	c.Set("c", 3, 0)  // evicts "b"

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCleanupExpired(t *testing.T) {
	c := New(10, 0)

	c.Set("stays", 1, 0)
	c.Set("goes1", 2, 5*time.Millisecond)
	c.Set("goes2", 3, 5*time.Millisecond)

	time.Sleep(15 * time.Millisecond)

	assert.Equal(t, 2, c.CleanupExpired())
	assert.Equal(t, 1, c.Len())
}

func TestDefaultTTL(t *testing.T) {
	c := New(10, 10*time.Millisecond)

	c.Set("k", 1, 0) // inherits the 10ms default
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("forever", 1, -1) // negative ttl disables expiry
	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("forever")
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	c := New(4, 0)

	c.Set("k", 1, 0)
	c.Get("k")
	c.Get("k")
	c.Get("nope")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 66.6, stats.HitRate, 1.0)
	assert.Equal(t, 1, stats.Size)

	c.Clear()
	stats = c.Stats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
	assert.Zero(t, stats.Size)
}

func TestManagerNamedInstances(t *testing.T) {
	m := NewManager(8, 0)

	a := m.Get("prices")
	b := m.Get("prices")
	assert.Same(t, a, b)

	m.Get("orders").Set("k", 1, 0)
	a.Set("p", 2, 5*time.Millisecond)

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, 1, m.CleanupAll())

	stats := m.AllStats()
	assert.Len(t, stats, 2)
}
