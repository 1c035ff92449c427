package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry is one cached key/value pair. A zero expiresAt means no expiry.
type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

// Cache is a bounded key/value store with least-recently-used eviction and
// optional per-entry TTL. All operations are safe for concurrent use.
type Cache struct {
	maxSize    int
	defaultTTL time.Duration

	mu     sync.Mutex
	items  map[string]*list.Element
	order  *list.List // front = most recently used
	hits   uint64
	misses uint64
}

// New creates a cache holding at most maxSize entries. A zero defaultTTL
// means entries do not expire unless Set is given an explicit TTL.
func New(maxSize int, defaultTTL time.Duration) *Cache {
	return &Cache{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the value for key. An expired entry behaves exactly like a
// miss and is removed as a side effect. A hit promotes the entry to most
// recently used.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	ent := elem.Value.(*entry)
	if !ent.expiresAt.IsZero() && time.Now().After(ent.expiresAt) {
		c.removeLocked(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return ent.value, true
}

// Set stores value under key. An existing key is updated and promoted.
// Inserting beyond maxSize evicts the single least-recently-used entry
// first. A zero ttl applies the cache default; a negative ttl stores the
// entry without expiry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	if len(c.items) >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}

	elem := c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem
}

// Delete removes key, reporting whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

// CleanupExpired removes every expired entry and returns how many were
// removed.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		ent := elem.Value.(*entry)
		if !ent.expiresAt.IsZero() && now.After(ent.expiresAt) {
			c.removeLocked(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Clear removes all entries and resets the hit/miss counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.hits = 0
	c.misses = 0
}

// Len returns the number of entries, including any not yet swept expired
// ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns running cache statistics. Counters reset only on Clear.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}

	return Stats{
		Size:        len(c.items),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		HitRate:     hitRate,
		Utilization: float64(len(c.items)) / float64(c.maxSize) * 100,
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.order.Remove(elem)
}

// Stats holds cache statistics.
type Stats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}
