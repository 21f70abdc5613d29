// Package dedup suppresses repeat notifications for a slot that stays
// visible across poll cycles.
package dedup

import (
	"sync"
	"time"

	"burgerbot/internal/slots"
)

const DefaultTTL = 300 * time.Second

// Cache remembers when each slot identifier was last let through. An entry
// is live while now - insertedAt < TTL. It is a TTL set, not an LRU: there
// is no capacity bound beyond expiry.
type Cache struct {
	ttl time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, seen: map[string]time.Time{}}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// FilterAndRecord returns the slots whose identifier has no live entry, in
// input order, and stamps each of them with now. A repeated identifier
// within the batch passes only once. Expired entries are evicted once per
// call, after the batch.
func (c *Cache) FilterAndRecord(in []slots.Slot, now time.Time) []slots.Slot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []slots.Slot
	for _, s := range in {
		if at, ok := c.seen[s.ID]; ok && now.Sub(at) < c.ttl {
			continue
		}
		c.seen[s.ID] = now
		out = append(out, s)
	}
	for id, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, id)
		}
	}
	return out
}

// Len reports the number of live entries as of the last call.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
