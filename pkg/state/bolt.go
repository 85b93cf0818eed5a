package state

import (
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/emberchain/ember/pkg/vm/bridge"
)

// bucketContract holds contract key/value data.
var bucketContract = []byte("contract_kv")

// BoltConfig holds BoltDB store configuration.
type BoltConfig struct {
	// Path is the database file path.
	Path string

	// NoSync disables fsync after each write (faster but less durable).
	NoSync bool

	// Timeout bounds the wait for the file lock.
	Timeout time.Duration
}

// DefaultBoltConfig returns the default configuration.
func DefaultBoltConfig(path string) BoltConfig {
	return BoltConfig{
		Path:    path,
		NoSync:  false,
		Timeout: 5 * time.Second,
	}
}

// BoltStore is the BoltDB-backed contract storage.
type BoltStore struct {
	db     *bolt.DB
	closed atomic.Bool
}

// OpenBolt opens or creates the store at the configured path.
func OpenBolt(cfg BoltConfig) (*BoltStore, error) {
	opts := &bolt.Options{
		Timeout: cfg.Timeout,
		NoSync:  cfg.NoSync,
	}
	db, err := bolt.Open(cfg.Path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketContract)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Get returns the value for key, or empty bytes when absent.
func (s *BoltStore) Get(key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketContract).Get(key); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

// Set writes a value. An empty value deletes the key.
func (s *BoltStore) Set(key, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putOrDelete(tx.Bucket(bucketContract), key, value)
	})
}

// ApplyWrites applies a journal's surviving writes in one transaction.
func (s *BoltStore) ApplyWrites(writes []bridge.Write) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContract)
		for _, w := range writes {
			if err := putOrDelete(b, w.Key, w.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func putOrDelete(b *bolt.Bucket, key, value []byte) error {
	if len(value) == 0 {
		return b.Delete(key)
	}
	return b.Put(key, value)
}

// Close releases the store.
func (s *BoltStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
