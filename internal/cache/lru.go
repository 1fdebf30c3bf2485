package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictFunc is called with every value that leaves the cache: expiry,
// capacity eviction, replacement, Delete or Purge. It runs without the cache
// lock held.
type EvictFunc[T any] func(key string, value T)

// LRU cache with TTL and size-based eviction
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	onEvict EvictFunc[T]
	now     func() time.Time
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

// OnEvict registers the eviction callback.
func (c *LRUCache[T]) OnEvict(fn EvictFunc[T]) *LRUCache[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
	return c
}

// Get retrieves a value from the cache
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])

	// Check if expired
	if c.now().After(item.expiresAt) {
		c.removeElement(elem)
		c.mu.Unlock()
		c.evicted(item)
		return zero, false
	}

	// Move to front (most recently used)
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	return item.data, true
}

// Set stores a value in the cache
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()

	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}

	var gone []*cacheItem[T]

	// Check if key already exists
	if elem, exists := c.items[key]; exists {
		gone = append(gone, elem.Value.(*cacheItem[T]))
		elem.Value = item
		c.lru.MoveToFront(elem)
	} else {
		elem := c.lru.PushFront(item)
		c.items[key] = elem

		// Evict if over capacity
		for c.lru.Len() > c.maxSize {
			oldest := c.lru.Back()
			gone = append(gone, oldest.Value.(*cacheItem[T]))
			c.removeElement(oldest)
		}
	}
	c.mu.Unlock()

	c.evicted(gone...)
}

// Delete removes a key from the cache
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return
	}
	item := elem.Value.(*cacheItem[T])
	c.removeElement(elem)
	c.mu.Unlock()

	c.evicted(item)
}

// DeleteIf removes key only while its value satisfies match, so a caller
// holding a stale value cannot drop a newer one stored under the same key.
func (c *LRUCache[T]) DeleteIf(key string, match func(T) bool) bool {
	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists || !match(elem.Value.(*cacheItem[T]).data) {
		c.mu.Unlock()
		return false
	}
	item := elem.Value.(*cacheItem[T])
	c.removeElement(elem)
	c.mu.Unlock()

	c.evicted(item)
	return true
}

// Purge removes every entry.
func (c *LRUCache[T]) Purge() int {
	c.mu.Lock()
	gone := make([]*cacheItem[T], 0, c.lru.Len())
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		gone = append(gone, elem.Value.(*cacheItem[T]))
	}
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.mu.Unlock()

	c.evicted(gone...)
	return len(gone)
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

func (c *LRUCache[T]) evicted(items ...*cacheItem[T]) {
	c.mu.Lock()
	fn := c.onEvict
	c.mu.Unlock()
	if fn == nil {
		return
	}
	for _, item := range items {
		fn(item.key, item.data)
	}
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()

	now := c.now()
	var gone []*cacheItem[T]
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		item := elem.Value.(*cacheItem[T])
		if now.After(item.expiresAt) {
			gone = append(gone, item)
			c.removeElement(elem)
		}
		elem = next
	}
	c.mu.Unlock()

	c.evicted(gone...)
	return len(gone)
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
