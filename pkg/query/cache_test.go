package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCacheKeyIsStableAndShapeSensitive(t *testing.T) {
	c := NewPlanCache(4, 0)
	k1 := c.Key("scope=task;sort=priority")
	k2 := c.Key("scope=task;sort=priority")
	k3 := c.Key("scope=epic;sort=priority")
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestPlanCacheMissThenHit(t *testing.T) {
	c := NewPlanCache(4, 0)
	key := c.Key("shape")

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, []uint64{1, 2, 3})
	ids, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestPlanCacheTTLExpiration(t *testing.T) {
	c := NewPlanCache(4, time.Millisecond)
	key := c.Key("shape")
	c.Put(key, []uint64{1})

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(key)
	assert.False(t, ok, "entry should have expired")

	_, misses := c.Stats()
	assert.Equal(t, uint64(1), misses)
}

func TestPlanCacheEvictsLeastRecentlyUsedPastMaxSize(t *testing.T) {
	c := NewPlanCache(2, 0)
	k1, k2, k3 := c.Key("a"), c.Key("b"), c.Key("c")

	c.Put(k1, []uint64{1})
	c.Put(k2, []uint64{2})
	// touch k1 so k2 becomes the least recently used entry
	_, _ = c.Get(k1)
	c.Put(k3, []uint64{3})

	_, ok := c.Get(k2)
	assert.False(t, ok, "k2 should have been evicted")

	_, ok = c.Get(k1)
	assert.True(t, ok)
	_, ok = c.Get(k3)
	assert.True(t, ok)
}

func TestPlanCachePutReplacesExistingEntry(t *testing.T) {
	c := NewPlanCache(4, 0)
	key := c.Key("shape")
	c.Put(key, []uint64{1})
	c.Put(key, []uint64{2, 3})

	ids, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []uint64{2, 3}, ids)
}
