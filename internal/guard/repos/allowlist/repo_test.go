package allowlist

import (
	"errors"
	"sort"
	"sync"
	"testing"
)

// memStore is an in-memory allowlist.Store for repository tests.
type memStore struct {
	mu    sync.Mutex
	hosts map[string]struct{}
	err   error // when set, all operations fail with this error
}

func newMemStore(hosts ...string) *memStore {
	m := &memStore{hosts: map[string]struct{}{}}
	for _, h := range hosts {
		m.hosts[h] = struct{}{}
	}
	return m
}

func (m *memStore) Exists(host string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.hosts[host]
	return ok, nil
}

func (m *memStore) Put(host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.hosts[host] = struct{}{}
	return nil
}

func (m *memStore) Delete(host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.hosts, host)
	return nil
}

func (m *memStore) All() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]string, 0, len(m.hosts))
	for h := range m.hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) Count() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.hosts)), nil
}

func (m *memStore) Close() error { return nil }

// mapCache is a trivial MembershipCache.
type mapCache struct {
	m map[string]bool
}

func newMapCache() *mapCache { return &mapCache{m: map[string]bool{}} }

func (c *mapCache) Get(host string) (bool, bool) {
	v, ok := c.m[host]
	return v, ok
}
func (c *mapCache) Put(host string, allowed bool)  { c.m[host] = allowed }
func (c *mapCache) Len() int                       { return len(c.m) }
func (c *mapCache) Purge()                         { c.m = map[string]bool{} }
func (c *mapCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

// passBloom is a BloomFilter that remembers keys exactly (no false positives).
type passBloom struct {
	keys map[string]struct{}
}

func (b *passBloom) Add(key []byte) { b.keys[string(key)] = struct{}{} }
func (b *passBloom) MightContain(key []byte) bool {
	_, ok := b.keys[string(key)]
	return ok
}
func (b *passBloom) Clear() { b.keys = map[string]struct{}{} }

type passFactory struct{}

func (passFactory) New(uint64, float64) BloomFilter {
	return &passBloom{keys: map[string]struct{}{}}
}

func newTestRepo(t *testing.T, store Store) Repository {
	t.Helper()
	repo, err := NewRepository(store, newMapCache(), passFactory{}, 0.01, nil)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	return repo
}

func TestRepository_IsAllowed_ExactMembership(t *testing.T) {
	repo := newTestRepo(t, newMemStore("example.com", "intranet.local:8443"))

	if !repo.IsAllowed("example.com") {
		t.Error("example.com should be allowed")
	}
	if !repo.IsAllowed("EXAMPLE.COM") {
		t.Error("membership must be case-insensitive after canonicalization")
	}
	if repo.IsAllowed("sub.example.com") {
		t.Error("no subdomain inference")
	}
	if repo.IsAllowed("example.com:8080") {
		t.Error("membership is port-sensitive")
	}
	if !repo.IsAllowed("intranet.local:8443") {
		t.Error("host with port should match exactly")
	}
}

func TestRepository_AddRemove(t *testing.T) {
	store := newMemStore()
	repo := newTestRepo(t, store)

	if repo.IsAllowed("new.example") {
		t.Error("should not be allowed before Add")
	}
	if err := repo.Add("New.Example"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !repo.IsAllowed("new.example") {
		t.Error("should be allowed after Add")
	}

	if err := repo.Remove("new.example"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if repo.IsAllowed("new.example") {
		t.Error("should not be allowed after Remove")
	}
}

func TestRepository_Entries(t *testing.T) {
	repo := newTestRepo(t, newMemStore("a.example", "b.example"))

	entries, err := repo.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 || entries[0] != "a.example" || entries[1] != "b.example" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestRepository_StoreError_AnswersNotAllowed(t *testing.T) {
	store := newMemStore("example.com")
	repo := newTestRepo(t, store)

	store.err = errors.New("store down")
	// Bloom still says maybe, cache is cold, store errors: fail to the
	// non-exempting answer without propagating.
	if repo.IsAllowed("example.com") {
		t.Error("store error must answer not-allowed")
	}
}

func TestRepository_EmptyHost(t *testing.T) {
	repo := newTestRepo(t, newMemStore())
	if repo.IsAllowed("") || repo.IsAllowed("   ") {
		t.Error("empty host can never be allowed")
	}
}
