package allowlist

import (
	"strings"
	"sync"

	"github.com/probegate/probegate/internal/guard/repos/kvstore"
)

// snapshotKey is the kvstore key the UI layer reads the allowlist from.
const snapshotKey = "allowed_domain_list"

// repository implements Repository by composing a Store, a Bloom filter
// (via factory), and a MembershipCache. It applies a cache → bloom → store
// pipeline on reads and rebuilds the bloom snapshot on writes.
type repository struct {
	mu      sync.RWMutex
	store   Store
	cache   MembershipCache
	bloom   BloomFilter
	factory BloomFactory
	fpRate  float64
	kv      kvstore.Store // optional snapshot write-through for the UI
}

// NewRepository constructs a Repository and seeds the Bloom filter from the
// persistent store. fpRate is the target false-positive rate when rebuilding.
// kv may be nil; when set, every mutation writes the full entry list under
// "allowed_domain_list" for the external rendering layer.
func NewRepository(store Store, cache MembershipCache, factory BloomFactory, fpRate float64, kv kvstore.Store) (Repository, error) {
	r := &repository{store: store, cache: cache, factory: factory, fpRate: fpRate, kv: kv}
	if err := r.rebuild(); err != nil {
		return nil, err
	}
	return r, nil
}

// canonicalHost normalizes an allowlist entry. Entries are host values (port
// included when non-default), compared by exact equality.
func canonicalHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

// IsAllowed returns whether host is an exact allowlist member.
// Policy: on internal errors, answer false (the non-exempting answer);
// errors never propagate into the verdict path.
func (r *repository) IsAllowed(host string) bool {
	ch := canonicalHost(host)
	if ch == "" {
		return false
	}
	// 1) bloom: early-deny membership if definitively negative
	if !r.checkBloom(ch) {
		return false
	}
	// 2) cache
	if allowed, ok := r.checkCache(ch); ok {
		return allowed
	}
	// 3) store
	allowed := r.checkStore(ch)
	// 4) update cache
	r.updateCache(ch, allowed)
	return allowed
}

// Add inserts host into the allowlist.
func (r *repository) Add(host string) error {
	ch := canonicalHost(host)
	if ch == "" {
		return nil
	}
	if err := r.store.Put(ch); err != nil {
		return err
	}
	r.mu.Lock()
	if r.bloom != nil {
		r.bloom.Add([]byte(ch))
	}
	r.cache.Put(ch, true)
	r.mu.Unlock()
	return r.snapshot()
}

// Remove deletes host from the allowlist. Bloom filters cannot unlearn a
// key, so removal rebuilds the filter from the store.
func (r *repository) Remove(host string) error {
	ch := canonicalHost(host)
	if ch == "" {
		return nil
	}
	if err := r.store.Delete(ch); err != nil {
		return err
	}
	if err := r.rebuild(); err != nil {
		return err
	}
	return r.snapshot()
}

// Entries lists the current allowlist for the UI layer.
func (r *repository) Entries() ([]string, error) {
	return r.store.All()
}

// rebuild swaps in a fresh Bloom filter sized for the store contents and
// purges the membership cache, both under the repo lock.
func (r *repository) rebuild() error {
	hosts, err := r.store.All()
	if err != nil {
		return err
	}
	n := uint64(len(hosts))
	bf := r.factory.New(n, r.fpRate)
	for _, h := range hosts {
		bf.Add([]byte(h))
	}
	r.mu.Lock()
	r.bloom = bf
	r.cache.Purge()
	r.mu.Unlock()
	return nil
}

// snapshot persists the full entry list for the external popup/options
// reader. Snapshot failures do not fail the mutation that triggered them.
func (r *repository) snapshot() error {
	if r.kv == nil {
		return nil
	}
	hosts, err := r.store.All()
	if err != nil {
		return nil
	}
	_ = kvstore.SetJSON(r.kv, snapshotKey, hosts)
	return nil
}

// checkBloom returns true if we should consult the store (maybe-positive),
// or false if we can early-deny membership (definitely negative). If no
// bloom is loaded, returns true to allow authoritative checking.
func (r *repository) checkBloom(ch string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	return bf.MightContain([]byte(ch))
}

// checkCache returns a cached membership answer when present.
func (r *repository) checkCache(ch string) (bool, bool) {
	r.mu.RLock()
	allowed, ok := r.cache.Get(ch)
	r.mu.RUnlock()
	return allowed, ok
}

// checkStore consults the authoritative store. On any error, answers false.
func (r *repository) checkStore(ch string) bool {
	present, err := r.store.Exists(ch)
	if err != nil {
		return false
	}
	return present
}

// updateCache writes the final membership answer.
func (r *repository) updateCache(ch string, allowed bool) {
	r.mu.Lock()
	r.cache.Put(ch, allowed)
	r.mu.Unlock()
}
