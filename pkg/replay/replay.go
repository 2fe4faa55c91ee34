// Package replay implements the bounded replay-digest cache (C5): a
// capacity-limited set of recently-seen message digests with FIFO
// eviction and lazy TTL expiry.
package replay

import (
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCapacity and DefaultTTLMs are the spec §4.5 defaults.
const (
	DefaultCapacity = 65536
	DefaultTTLMs    = 120_000
)

// Verdict is the result of Observe.
type Verdict int

const (
	// Fresh means the digest had not been seen within its TTL; it is now
	// recorded.
	Fresh Verdict = iota
	// Replayed means the digest is already recorded and unexpired.
	Replayed
)

// Cache is a bounded FIFO set of (digest, expiry) pairs. It wraps
// hashicorp/golang-lru's Cache, relying on the fact that this package's
// only access pattern — Peek to check presence, Add exactly once per new
// digest, never re-Add an existing one — makes golang-lru's
// least-recently-used eviction coincide with first-in-first-out eviction:
// every live entry was touched exactly once, at insertion.
type Cache struct {
	lru   *lru.Cache
	nowMs func() uint64
	ttl   uint64
}

// New constructs a Cache with the given capacity and TTL in milliseconds.
// nowMs supplies the current time; tests pass a deterministic clock.
func New(capacity int, ttlMs uint64, nowMs func() uint64) *Cache {
	c, err := lru.New(capacity)
	if err != nil {
		// Only possible if capacity <= 0, a programmer error, not a
		// runtime condition callers need to handle.
		panic(err)
	}
	return &Cache{lru: c, nowMs: nowMs, ttl: ttlMs}
}

// Observe records digest if unseen-or-expired and reports the verdict.
func (c *Cache) Observe(digest [32]byte) Verdict {
	now := c.nowMs()

	if v, ok := c.lru.Peek(digest); ok {
		expiry := v.(uint64)
		if now < expiry {
			return Replayed
		}
		// Lazily expired: fall through and treat as unseen.
		c.lru.Remove(digest)
	}

	c.lru.Add(digest, now+c.ttl)
	return Fresh
}

// Len returns the number of entries currently tracked, including any
// that are expired but not yet lazily evicted.
func (c *Cache) Len() int {
	return c.lru.Len()
}
