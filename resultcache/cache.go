/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package resultcache

import (
	"container/list"
	"fmt"
	"sync"
)

type cacheEntry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a concurrency-safe map whose entries are immutable once stored.
// With a positive maxEntries the least recently used entry is evicted on overflow,
// with zero the cache grows without bound.
type Cache[K comparable, V any] struct {
	maxEntries int

	mu      sync.Mutex
	lruList *list.List
	entries map[K]*list.Element

	metricsCollector MetricsCollector
}

// New creates a new Cache. Metrics collector may be nil, then metrics are disabled.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*Cache[K, V], error) {
	if maxEntries < 0 {
		return nil, fmt.Errorf("maxEntries must be greater or equal to 0 (unbounded)")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	return &Cache[K, V]{
		maxEntries:       maxEntries,
		lruList:          list.New(),
		entries:          make(map[K]*list.Element),
		metricsCollector: metricsCollector,
	}, nil
}

// Lookup returns the value stored under the key.
func (c *Cache[K, V]) Lookup(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

// Peek is like Lookup but neither counts a hit/miss nor refreshes the entry's recency.
func (c *Cache[K, V]) Peek(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, hit := c.entries[key]
	if !hit {
		return value, false
	}
	return elem.Value.(*cacheEntry[K, V]).value, true
}

// Store saves the value under the key if the key is not present yet.
// It returns false if the key already had a value; the stored value is never replaced.
func (c *Cache[K, V]) Store(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.lruList.MoveToFront(elem)
		return false
	}
	c.addNew(key, value)
	return true
}

// GetOrAdd returns the value stored under the key.
// If there is none, the value returned by valueProvider is stored and returned.
func (c *Cache[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value, exists = c.get(key); exists {
		return value, true
	}
	value = valueProvider()
	c.addNew(key, value)
	return value, false
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxEntries returns the configured bound (0 means unbounded).
func (c *Cache[K, V]) MaxEntries() int {
	return c.maxEntries
}

func (c *Cache[K, V]) get(key K) (value V, ok bool) {
	elem, hit := c.entries[key]
	if !hit {
		c.metricsCollector.IncMisses()
		return value, false
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return elem.Value.(*cacheEntry[K, V]).value, true
}

func (c *Cache[K, V]) addNew(key K, value V) {
	c.entries[key] = c.lruList.PushFront(&cacheEntry[K, V]{key: key, value: value})
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		oldest := c.lruList.Back()
		c.lruList.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry[K, V]).key)
		c.metricsCollector.AddEvictions(1)
	}
	c.metricsCollector.SetAmount(len(c.entries))
}
