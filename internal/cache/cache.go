package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps every generation in its own top-level Bolt bucket.
// It is safe for concurrent use by multiple goroutines.
type BoltStore struct {
	db    *bolt.DB
	codec Codec
	mu    sync.RWMutex
}

var _ Store = (*BoltStore)(nil)

type Options struct {
	// Codec encodes entries; nil means CBOR.
	Codec Codec
	// Timeout bounds waiting for the file lock held by another process.
	Timeout time.Duration
}

// Open initializes or opens a BoltStore at the given path.
func Open(path string, opts Options) (*BoltStore, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	codec := opts.Codec
	if codec == nil {
		c, err := NewCBOR()
		if err != nil {
			return nil, err
		}
		codec = c
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db, codec: codec}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) Open(_ context.Context, generation string) error {
	if err := checkGeneration(generation); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(generation))
		return err
	})
}

// Get returns the entry for fingerprint, or ErrNotFound when either the
// generation or the fingerprint is absent.
func (s *BoltStore) Get(_ context.Context, generation, fingerprint string) (Entry, error) {
	if err := checkGeneration(generation); err != nil {
		return Entry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(generation))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(fingerprint)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return Entry{}, err
	}
	if raw == nil {
		return Entry{}, ErrNotFound
	}
	return s.codec.Decode(raw)
}

// Put stores entry, replacing any prior value under the same fingerprint.
func (s *BoltStore) Put(_ context.Context, generation, fingerprint string, entry Entry) error {
	if err := checkGeneration(generation); err != nil {
		return err
	}
	buf, err := s.codec.Encode(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(generation))
		if err != nil {
			return err
		}
		return b.Put([]byte(fingerprint), buf)
	})
}

// DeleteGeneration drops the whole bucket. A missing bucket is not an error.
func (s *BoltStore) DeleteGeneration(_ context.Context, generation string) error {
	if err := checkGeneration(generation); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(generation))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// ListGenerations returns the bucket names in lexical order.
func (s *BoltStore) ListGenerations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
