// Package cache provides a TTL+LRU read-through layer in front of the
// message and task stores. Entries are keyed by entity id or by coarse
// query key (e.g. "bot_tasks:<agent>"); any write invalidates the direct
// key and every derived key containing the entity identifier.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultTTL is how long a cached read stays fresh.
	DefaultTTL = 30 * time.Second
	// DefaultCapacity bounds the number of cached entries.
	DefaultCapacity = 100
)

// Stats is an observable snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// Cache is a TTL+LRU map of string keys to arbitrary values.
type Cache struct {
	mu        sync.Mutex
	lru       *expirable.LRU[string, any]
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a cache. Zero ttl or capacity select the defaults.
func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{}
	c.lru = expirable.NewLRU[string, any](capacity, func(string, any) {
		c.evictions.Add(1)
	}, ttl)
	return c
}

// Get returns the cached value for key, counting a hit or miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	v, ok := c.lru.Get(key)
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores a value under key.
func (c *Cache) Set(key string, v any) {
	c.mu.Lock()
	c.lru.Add(key, v)
	c.mu.Unlock()
}

// Invalidate drops the direct key and every derived key containing id.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
	if id == "" {
		return
	}
	for _, key := range c.lru.Keys() {
		if strings.Contains(key, id) {
			c.lru.Remove(key)
		}
	}
}

// InvalidatePrefix drops every key with the given prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Purge drops everything.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := c.lru.Len()
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   entries,
	}
}
