// Package kvstore provides the process-durable key-value persistence the
// guard components share: settings flags, the allowlist snapshot the UI
// reads, and the per-tab ledger snapshots the popup renders.
package kvstore

import (
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var bucketKV = []byte("kv")

// Store exposes get/set/modify semantics over durable storage.
// Modify runs its update function atomically within one write transaction.
type Store interface {
	Get(key string, def []byte) ([]byte, error)
	Set(key string, val []byte) error
	Modify(key string, def []byte, fn func([]byte) ([]byte, error)) error
	Close() error
}

// boltStore implements Store using bbolt.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures the bucket exists.
func New(path string) (Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// Get returns the stored value for key, or def when the key is absent.
func (s *boltStore) Get(key string, def []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKV)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			out = make([]byte, len(v))
			copy(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return def, nil
	}
	return out, nil
}

// Set stores val under key.
func (s *boltStore) Set(key string, val []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), val)
	})
}

// Modify applies fn to the current value (or def when absent) and writes the
// result back, all inside a single write transaction.
func (s *boltStore) Modify(key string, def []byte, fn func([]byte) ([]byte, error)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKV)
		cur := b.Get([]byte(key))
		if cur == nil {
			cur = def
		} else {
			cp := make([]byte, len(cur))
			copy(cp, cur)
			cur = cp
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), next)
	})
}

// GetJSON unmarshals the stored value for key into out; when the key is
// absent, out is left at the caller-provided default and no error is returned.
func GetJSON(s Store, key string, out any) error {
	raw, err := s.Get(key, nil)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("kvstore: decode %q: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under key.
func SetJSON(s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kvstore: encode %q: %w", key, err)
	}
	return s.Set(key, raw)
}

// GetBool reads a boolean setting, returning def when the key is absent or
// the stored value does not decode.
func GetBool(s Store, key string, def bool) bool {
	raw, err := s.Get(key, nil)
	if err != nil || raw == nil {
		return def
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}

// SetBool stores a boolean setting.
func SetBool(s Store, key string, v bool) error {
	return SetJSON(s, key, v)
}
