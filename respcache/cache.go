/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package respcache provides an in-memory LRU cache with TTL for full HTTP responses.
package respcache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Defaults of the cache.
const (
	DefaultMaxEntries = 1024
	DefaultTTL        = 30 * time.Second
)

// X-Cache header reports whether a response was served from the cache.
const (
	HeaderXCache = "X-Cache"
	CacheHit     = "HIT"
	CacheMiss    = "MISS"
)

type cacheElem struct {
	key   string
	entry Entry
}

// Cache is a size-bounded LRU cache of responses with a fixed TTL.
// All operations take a single mutex and never perform I/O while holding it.
// Entries are copied on Put and on Get, so callers can never alias cached bytes.
type Cache struct {
	maxEntries int
	ttl        time.Duration

	mu      sync.Mutex
	lruList *list.List
	items   map[string]*list.Element

	metricsCollector MetricsCollector
	now              func() time.Time
}

// New creates a new Cache. Metrics collector can be nil, in this case metrics are disabled.
func New(maxEntries int, ttl time.Duration, metricsCollector MetricsCollector) (*Cache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be greater than 0")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	return &Cache{
		maxEntries:       maxEntries,
		ttl:              ttl,
		lruList:          list.New(),
		items:            make(map[string]*list.Element),
		metricsCollector: metricsCollector,
		now:              time.Now,
	}, nil
}

// Get returns a copy of the entry. An expired entry is removed and reported as absent.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.metricsCollector.IncMisses()
		return Entry{}, false
	}
	ce := elem.Value.(*cacheElem)
	if !c.now().Before(ce.entry.ExpiresAt) {
		c.removeElement(elem)
		c.metricsCollector.SetAmount(len(c.items))
		c.metricsCollector.IncMisses()
		return Entry{}, false
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return ce.entry.clone(), true
}

// Put stores a copy of the entry with expiry now+TTL, replacing any entry under the same key.
// When the cache is full, the least recently used entry is evicted.
func (c *Cache) Put(key string, entry Entry) {
	stored := entry.clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	stored.ExpiresAt = c.now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheElem).entry = stored
		c.lruList.MoveToFront(elem)
		return
	}
	c.items[key] = c.lruList.PushFront(&cacheElem{key: key, entry: stored})
	if len(c.items) > c.maxEntries {
		c.removeElement(c.lruList.Back())
		c.metricsCollector.AddEvictions(1)
	}
	c.metricsCollector.SetAmount(len(c.items))
}

// Remove deletes the entry and reports whether it was present.
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	c.metricsCollector.SetAmount(len(c.items))
	return true
}

// Clear removes all entries. Removed entries are not counted as evictions.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lruList.Init()
	c.metricsCollector.SetAmount(0)
}

// Len returns the number of entries, expired ones not yet removed included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// RemoveExpired removes all expired entries and returns how many were removed.
func (c *Cache) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for elem := c.lruList.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*cacheElem).entry.ExpiresAt) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	c.metricsCollector.SetAmount(len(c.items))
	return removed
}

// Keys returns keys from the most to the least recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*cacheElem).key)
	}
	return keys
}

func (c *Cache) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.items, elem.Value.(*cacheElem).key)
}
