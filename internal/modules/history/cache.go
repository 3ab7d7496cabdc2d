package history

import (
	"container/list"
	"sync"
	"time"
)

// CacheKey builds the cache key for a symbol and output size.
func CacheKey(symbol, outputSize string) string {
	return symbol + "-" + outputSize
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type cacheItem struct {
	key      string
	series   PriceSeries
	storedAt time.Time
}

// Cache is a bounded LRU of price series with a time-to-live.
// An entry is fresh while its age is strictly below the TTL.
// Series are copied on the way in and out.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	ll       *list.List
	items    map[string]*list.Element

	hits, misses, evictions uint64
}

// NewCache creates a cache. A nil now uses time.Now.
func NewCache(capacity int, ttl time.Duration, now func() time.Time) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns a fresh entry and marks it most recently used.
func (c *Cache) Get(key string) (PriceSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	item := el.Value.(*cacheItem)
	if c.now().Sub(item.storedAt) >= c.ttl {
		c.removeElement(el)
		c.misses++
		return nil, false
	}

	c.ll.MoveToFront(el)
	c.hits++
	return item.series.Clone(), true
}

// Set stores a series, evicting the least recently used entry when full.
func (c *Cache) Set(key string, series PriceSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		item := el.Value.(*cacheItem)
		item.series = series.Clone()
		item.storedAt = c.now()
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheItem{key: key, series: series.Clone(), storedAt: c.now()})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
		c.evictions++
	}
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.mu.Unlock()
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   c.ll.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*cacheItem).key)
}
