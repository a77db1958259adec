package allowlist

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface the repository needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
	Clear()
}

// BloomFactory constructs BloomFilter instances sized for a dataset.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// MembershipCache caches allowlist membership answers by host with basic metrics.
type MembershipCache interface {
	Get(host string) (allowed bool, ok bool)
	Put(host string, allowed bool)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// Store abstracts the persistent allowlist index.
type Store interface {
	Exists(host string) (bool, error)
	Put(host string) error
	Delete(host string) error
	All() ([]string, error)
	Count() (uint64, error)
	Close() error
}

// Repository is the composition layer that wires cache → bloom → store.
// IsAllowed is the hot-path membership test used by the decision engine;
// membership is exact host equality, port included, no subdomain inference.
type Repository interface {
	IsAllowed(host string) bool
	Add(host string) error
	Remove(host string) error
	Entries() ([]string, error)
}
