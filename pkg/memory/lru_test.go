package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUPutGet(t *testing.T) {
	c := newLRU[string, int](2)
	c.Put("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRU[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // touch a, making b the LRU
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUInvalidate(t *testing.T) {
	c := newLRU[string, int](2)
	c.Put("a", 1)
	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRUClear(t *testing.T) {
	c := newLRU[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, _, size := c.Stats()
	assert.Equal(t, 0, size)
}

func TestLRUStatsTracksHitsAndMisses(t *testing.T) {
	c := newLRU[string, int](2)
	c.Put("a", 1)
	c.Get("a")
	c.Get("missing")

	hits, misses, size := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, 1, size)
}

func TestLRUZeroSizeClampedToOne(t *testing.T) {
	c := newLRU[string, int](0)
	c.Put("a", 1)
	c.Put("b", 2)
	_, _, size := c.Stats()
	assert.Equal(t, 1, size)
}
