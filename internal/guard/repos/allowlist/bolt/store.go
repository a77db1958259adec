package bolt

import (
	"encoding/binary"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/probegate/probegate/internal/guard/repos/allowlist"
)

var bucketAllow = []byte("allow")

// boltStore implements allowlist.Store using bbolt. Keys are canonical host
// strings; values record the insertion time (seconds since epoch).
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures the bucket exists.
func New(path string) (allowlist.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAllow)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Exists(host string) (bool, error) {
	var present bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAllow)
		if b == nil {
			return nil
		}
		present = b.Get([]byte(host)) != nil
		return nil
	})
	return present, err
}

func (s *boltStore) Put(host string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(time.Now().Unix()))
		return tx.Bucket(bucketAllow).Put([]byte(host), val)
	})
}

func (s *boltStore) Delete(host string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAllow).Delete([]byte(host))
	})
}

func (s *boltStore) All() ([]string, error) {
	var hosts []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAllow)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			hosts = append(hosts, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return hosts, nil
}

func (s *boltStore) Count() (uint64, error) {
	var n uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketAllow); b != nil {
			n = uint64(b.Stats().KeyN)
		}
		return nil
	})
	return n, err
}

var _ allowlist.Store = (*boltStore)(nil)
