// Package scdedup provides a time-bounded set,
// used by the engine to remember finalized messages
// long enough to drop their late shards cheaply.
package scdedup

import "time"

// Cache is a set of keys that each expire
// a fixed duration after their insertion.
//
// Expired entries are removed lazily by [*Cache.Contains]
// and [*Cache.InsertIfAbsent], and in bulk by [*Cache.Evict].
//
// Cache is not safe for concurrent use.
// The engine's main loop is its only owner.
type Cache[K comparable] struct {
	ttl time.Duration
	now func() time.Time

	entries map[K]time.Time

	// Insertion-ordered record of (key, time) pairs.
	// Timestamps are non-decreasing,
	// so eviction only ever needs to inspect the front.
	// A key re-inserted after expiry appears more than once;
	// only the element whose timestamp matches entries is authoritative.
	order []entry[K]
	head  int
}

type entry[K comparable] struct {
	Key K
	At  time.Time
}

// New returns a cache whose entries expire ttl after insertion.
// If now is nil, [time.Now] is used.
func New[K comparable](ttl time.Duration, now func() time.Time) *Cache[K] {
	if ttl <= 0 {
		panic("scdedup: ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}

	return &Cache[K]{
		ttl: ttl,
		now: now,

		entries: make(map[K]time.Time),
	}
}

// TTL reports the configured time-to-live.
func (c *Cache[K]) TTL() time.Duration {
	return c.ttl
}

// expired reports whether an entry inserted at t
// has outlived the TTL as of now.
// An entry is live strictly before t+ttl.
func (c *Cache[K]) expired(t, now time.Time) bool {
	return !now.Before(t.Add(c.ttl))
}

// InsertIfAbsent adds k with the current time
// and reports whether it was added.
// It returns false without touching the existing timestamp
// if k is already present and unexpired.
func (c *Cache[K]) InsertIfAbsent(k K) bool {
	now := c.now()

	if t, ok := c.entries[k]; ok && !c.expired(t, now) {
		return false
	}

	c.entries[k] = now
	c.order = append(c.order, entry[K]{Key: k, At: now})
	return true
}

// Contains reports whether k is present and unexpired.
// An expired k is removed.
func (c *Cache[K]) Contains(k K) bool {
	t, ok := c.entries[k]
	if !ok {
		return false
	}

	if c.expired(t, c.now()) {
		delete(c.entries, k)
		return false
	}
	return true
}

// Evict removes every expired entry and returns how many keys were removed.
func (c *Cache[K]) Evict() int {
	now := c.now()
	n := 0

	for c.head < len(c.order) {
		e := c.order[c.head]
		if !c.expired(e.At, now) {
			break
		}

		// Skip stale order records for keys that were
		// already removed lazily or re-inserted later.
		if t, ok := c.entries[e.Key]; ok && t.Equal(e.At) {
			delete(c.entries, e.Key)
			n++
		}

		var zero entry[K]
		c.order[c.head] = zero
		c.head++
	}

	c.compact()
	return n
}

// compact reclaims the consumed front of the order slice
// once it makes up most of the backing array.
func (c *Cache[K]) compact() {
	if c.head == len(c.order) {
		c.order = c.order[:0]
		c.head = 0
		return
	}

	if c.head > len(c.order)/2 {
		n := copy(c.order, c.order[c.head:])
		clear(c.order[n:])
		c.order = c.order[:n]
		c.head = 0
	}
}

// Len reports the number of entries held,
// which may include expired entries not yet evicted.
func (c *Cache[K]) Len() int {
	return len(c.entries)
}
