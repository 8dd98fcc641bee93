// Package cache provides the process-local cache tier shared by the price
// and symbol resolvers.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a manual clock.
type Clock func() time.Time

// TTL is a bounded LRU map whose entries are fresh for a fixed duration.
// Expired entries are retained until evicted so callers can fall back to the
// last known value when a refresh fails.
type TTL[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      Clock
	items    map[K]*list.Element
	order    *list.List

	hits   int64
	misses int64
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

// New creates a cache holding at most capacity entries. A nil clock uses time.Now.
func New[K comparable, V any](capacity int, ttl time.Duration, now Clock) *TTL[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	if now == nil {
		now = time.Now
	}
	return &TTL[K, V]{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the value if present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}

	e := elem.Value.(*entry[K, V])
	if !c.now().Before(e.expiresAt) {
		c.misses++
		var zero V
		return zero, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// GetStale returns the last stored value regardless of expiry.
func (c *TTL[K, V]) GetStale(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(*entry[K, V]).value, true
}

// Put stores value as fresh from now.
func (c *TTL[K, V]) Put(key K, value V) {
	c.PutAt(key, value, c.now())
}

// PutAt stores value as if it was fetched at storedAt. Used when a value is
// copied from a slower tier that carries its own timestamp.
func (c *TTL[K, V]) PutAt(key K, value V, storedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.storedAt = storedAt
		e.expiresAt = storedAt.Add(c.ttl)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry[K, V]).key)
		}
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{
		key:       key,
		value:     value,
		storedAt:  storedAt,
		expiresAt: storedAt.Add(c.ttl),
	})
}

// Fresh reports whether a value stored at t is still within the TTL.
func (c *TTL[K, V]) Fresh(t time.Time) bool {
	return c.now().Before(t.Add(c.ttl))
}

// Now returns the cache clock reading.
func (c *TTL[K, V]) Now() time.Time {
	return c.now()
}

// Len returns the number of entries, expired ones included.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counts of Get.
func (c *TTL[K, V]) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
