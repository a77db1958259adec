package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/probegate/probegate/internal/guard/repos/allowlist"
)

// membershipCache is an LRU-backed implementation of allowlist.MembershipCache.
// It tracks basic metrics: hits, misses, and evictions.
type membershipCache struct {
	lru       *lru.Cache[string, bool]
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op MembershipCache used when size <= 0.
type disabledCache struct{}

// New creates a new MembershipCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses and tracks no metrics.
func New(size int) (allowlist.MembershipCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var mc membershipCache
	// Use NewWithEvict to observe evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(string, bool) {
		atomic.AddUint64(&mc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	mc.lru = cache
	return &mc, nil
}

// Get looks up a membership answer by host. When found, increments hits;
// otherwise increments misses.
func (c *membershipCache) Get(host string) (bool, bool) {
	if val, ok := c.lru.Get(host); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return false, false
}

// Put stores a membership answer by host.
func (c *membershipCache) Put(host string, allowed bool) {
	c.lru.Add(host, allowed)
}

// Len returns the number of entries in the cache.
func (c *membershipCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *membershipCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit/miss/eviction counters.
func (c *membershipCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

// disabledCache implementation

func (d *disabledCache) Get(string) (bool, bool) { return false, false }

func (d *disabledCache) Put(string, bool) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ allowlist.MembershipCache = (*membershipCache)(nil)
var _ allowlist.MembershipCache = (*disabledCache)(nil)
