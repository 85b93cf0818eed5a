// Package modstore provides content-addressed persistent storage for
// encoded modules, backed by BadgerDB with zstd compression.
//
// Modules are keyed by the blake3 digest of their canonical encoding. Put
// refuses bytes that do not decode; Get re-verifies the digest after
// decompression, so storage corruption surfaces as an error instead of as
// a different module.
package modstore

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"github.com/emberchain/ember/internal/types"
	"github.com/emberchain/ember/pkg/vm/codec"
	"github.com/emberchain/ember/pkg/vm/ir"
)

var (
	// ErrNotFound is returned when no module has the given digest.
	ErrNotFound = errors.New("module not found")

	// ErrCorrupt is returned when stored bytes no longer match their
	// digest.
	ErrCorrupt = errors.New("stored module corrupt")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("module store closed")

	// ErrNotCanonical is returned by Put when the bytes decode but are
	// not the canonical encoding of the module they describe.
	ErrNotCanonical = errors.New("module encoding not canonical")
)

// prefixModule is the key prefix for module blobs.
// Key format: prefixModule + digest (32 bytes)
var prefixModule = []byte{0x01}

// Config contains configuration for the module store.
type Config struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	SyncWrites bool

	// Logger is an optional badger logger. Nil disables logging.
	Logger badger.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		Logger:     nil,
	}
}

// Store is the content-addressed module store.
type Store struct {
	db     *badger.DB
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	closed atomic.Bool
}

// Open opens or creates a store.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(cfg.Logger)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

func moduleKey(d types.Digest) []byte {
	return append(append([]byte(nil), prefixModule...), d[:]...)
}

// Put stores an encoded module and returns its digest. The bytes must be
// the canonical encoding: they have to decode cleanly and re-encode to the
// same bytes, so one module has exactly one digest.
func (s *Store) Put(raw []byte) (types.Digest, error) {
	if s.closed.Load() {
		return types.Digest{}, ErrClosed
	}
	m, err := codec.Decode(raw)
	if err != nil {
		return types.Digest{}, fmt.Errorf("refusing undecodable module: %w", err)
	}
	reenc, err := codec.Encode(m)
	if err != nil {
		return types.Digest{}, fmt.Errorf("re-encode module: %w", err)
	}
	if !bytes.Equal(reenc, raw) {
		return types.Digest{}, ErrNotCanonical
	}
	d := types.DigestOf(raw)
	compressed := s.enc.EncodeAll(raw, nil)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(moduleKey(d), compressed)
	})
	if err != nil {
		return types.Digest{}, fmt.Errorf("store module: %w", err)
	}
	return d, nil
}

// Raw returns the encoded bytes of a stored module after verifying the
// digest.
func (s *Store) Raw(d types.Digest) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var compressed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(moduleKey(d))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %x", ErrNotFound, d[:8])
			}
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	raw, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if types.DigestOf(raw) != d {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	return raw, nil
}

// Get loads and decodes a stored module.
func (s *Store) Get(d types.Digest) (*ir.Module, error) {
	raw, err := s.Raw(d)
	if err != nil {
		return nil, err
	}
	m, err := codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return m, nil
}

// Has reports whether a module with the given digest is stored.
func (s *Store) Has(d types.Digest) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(moduleKey(d))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	return found, err
}

// List returns the digests of every stored module in key order.
func (s *Store) List() ([]types.Digest, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var out []types.Digest
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefixModule
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			d, err := types.DigestFromBytes(key[len(prefixModule):])
			if err != nil {
				return fmt.Errorf("malformed store key: %w", err)
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a stored module. Deleting an absent digest is a no-op.
func (s *Store) Delete(d types.Digest) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(moduleKey(d))
	})
}

// Close releases the store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}
