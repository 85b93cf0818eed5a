// Package state provides persistent contract key/value storage. The
// BoltDB-backed store is the production implementation; the in-memory
// store serves tests and ephemeral hosts.
//
// Both implement the read interface the execution bridge needs and the
// write interface the host uses to apply a successful run's journal.
package state

import (
	"errors"

	"github.com/emberchain/ember/pkg/vm/bridge"
)

// ErrClosed is returned when operating on a closed store.
var ErrClosed = errors.New("state store closed")

// Store is a contract storage backend. Absent keys read as empty bytes;
// setting an empty value deletes the key, so the two are indistinguishable
// to contracts.
type Store interface {
	bridge.Backend

	// Set writes a value. An empty value deletes the key.
	Set(key, value []byte) error

	// ApplyWrites applies a journal's surviving writes atomically.
	ApplyWrites(writes []bridge.Write) error

	// Close releases the store.
	Close() error
}
