package query

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// PlanCache caches resolved scope id-sets for repeated scope+predicate+sort
// shapes within a transaction's lifetime, avoiding re-walking link-condition
// paths on paginated requests for the same query: a container/list + map
// LRU with TTL eviction, keyed by a hash of the request shape.
type PlanCache struct {
	mu sync.RWMutex

	maxSize int
	ttl     time.Duration

	list  *list.List
	items map[uint64]*list.Element

	hits   uint64
	misses uint64
}

type planCacheEntry struct {
	key       uint64
	ids       []uint64
	expiresAt time.Time
}

// NewPlanCache creates a plan cache bounded by maxSize entries with the
// given TTL (0 disables expiration).
func NewPlanCache(maxSize int, ttl time.Duration) *PlanCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &PlanCache{
		maxSize: maxSize,
		ttl:     ttl,
		list:    list.New(),
		items:   make(map[uint64]*list.Element, maxSize),
	}
}

// Key hashes a request's scope+predicate+sort shape into a cache key. The
// caller derives a stable string representation of the shape (e.g. a
// canonical JSON-ish encoding) and passes it here.
func (c *PlanCache) Key(shape string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(shape))
	return h.Sum64()
}

// Get returns the cached id slice for key, if present and unexpired.
func (c *PlanCache) Get(key uint64) ([]uint64, bool) {
	c.mu.RLock()
	elem, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	entry := elem.Value.(*planCacheEntry)
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		c.removeElement(elem)
		c.mu.Unlock()
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	c.mu.Lock()
	c.list.MoveToFront(elem)
	c.mu.Unlock()
	atomic.AddUint64(&c.hits, 1)
	return entry.ids, true
}

// Put inserts or replaces the cached id slice for key.
func (c *PlanCache) Put(key uint64, ids []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	if elem, ok := c.items[key]; ok {
		elem.Value.(*planCacheEntry).ids = ids
		elem.Value.(*planCacheEntry).expiresAt = expiresAt
		c.list.MoveToFront(elem)
		return
	}

	entry := &planCacheEntry{key: key, ids: ids, expiresAt: expiresAt}
	elem := c.list.PushFront(entry)
	c.items[key] = elem

	if c.list.Len() > c.maxSize {
		c.removeElement(c.list.Back())
	}
}

func (c *PlanCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*planCacheEntry)
	delete(c.items, entry.key)
	c.list.Remove(elem)
}

// Stats returns cache hit/miss counters.
func (c *PlanCache) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}
