package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/lists/doublylinkedlist"

	ports "github.com/ZanzyTHEbar/promptkit/promptkit/harness/ports"
)

// LRUCache is a bounded in-memory media cache with per-entry expiry.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*cacheEntry
	order    *doublylinkedlist.List // keys, most recently used first
	now      func() time.Time
}

type cacheEntry struct {
	value   []byte
	expires time.Time // zero means never
}

// NewLRUCache creates a cache holding at most capacity entries. A capacity
// below one is treated as one.
func NewLRUCache(capacity int) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache{
		capacity: capacity,
		items:    make(map[string]*cacheEntry),
		order:    doublylinkedlist.New(),
		now:      time.Now,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.remove(key)
		return nil, false
	}
	c.touch(key)
	return e.value, true
}

// Set stores value under key. ttlSeconds <= 0 keeps the entry until evicted.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttlSeconds > 0 {
		expires = c.now().Add(time.Duration(ttlSeconds) * time.Second)
	}

	if e, ok := c.items[key]; ok {
		e.value, e.expires = value, expires
		c.touch(key)
		return nil
	}

	c.items[key] = &cacheEntry{value: value, expires: expires}
	c.order.Prepend(key)

	for len(c.items) > c.capacity {
		oldest, ok := c.order.Get(c.order.Size() - 1)
		if !ok {
			break
		}
		c.remove(oldest.(string))
	}
	return nil
}

// Delete removes key if present.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
	return nil
}

// Len reports the number of live or not yet collected entries.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache) touch(key string) {
	if i := c.order.IndexOf(key); i > 0 {
		c.order.Remove(i)
		c.order.Prepend(key)
	}
}

func (c *LRUCache) remove(key string) {
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	if i := c.order.IndexOf(key); i >= 0 {
		c.order.Remove(i)
	}
}

var _ ports.Cache = (*LRUCache)(nil)
