package kv

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// Tier selects a durability bucket. The original platform distinguished
// syncable and device-local storage; here both live in the same bbolt file
// but remain separate namespaces so callers keep the distinction.
type Tier string

const (
	// TierSync holds state that would roam with the user (reputation,
	// verification levels).
	TierSync Tier = "sync"
	// TierLocal holds device-local state (clusters, key material fallback,
	// rate bookkeeping).
	TierLocal Tier = "local"
)

// Store is a two-tier key-value store with get/set/remove semantics,
// backed by bbolt. Single-key writes serialize through bbolt's
// transaction lock, which the pipeline's read-modify-write updates rely on.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the bbolt database at path and ensures
// both tier buckets exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create kv directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, tier := range []Tier{TierSync, TierLocal} {
			if _, err := tx.CreateBucketIfNotExists([]byte(tier)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init kv buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the value for key in the tier, or nil if absent.
func (s *Store) Get(tier Tier, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(tier))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		if data := bucket.Get([]byte(key)); data != nil {
			value = make([]byte, len(data))
			copy(value, data)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key in the tier.
func (s *Store) Set(tier Tier, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(tier))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		return bucket.Put([]byte(key), value)
	})
}

// Remove deletes key from the tier. Removing an absent key is not an error.
func (s *Store) Remove(tier Tier, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(tier))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		return bucket.Delete([]byte(key))
	})
}

// ForEach visits every key with the given prefix in the tier. The value
// slice is only valid during the callback.
func (s *Store) ForEach(tier Tier, prefix string, fn func(key string, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(tier))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		cursor := bucket.Cursor()
		p := []byte(prefix)
		for k, v := cursor.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = cursor.Next() {
			if err := fn(string(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Size returns the on-disk size of the store in bytes.
func (s *Store) Size() (int64, error) {
	info, err := os.Stat(s.db.Path())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
