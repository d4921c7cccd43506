package kv

import (
	"context"
	"errors"
	"fmt"
)

// Tx is the view of the store inside one transaction.
// Reads observe writes made earlier in the same transaction.
type Tx interface {
	// Get returns the value at key and whether it exists.
	Get(key Key) ([]byte, bool, error)

	// Set stores value at key. Set fails inside a read-only transaction.
	Set(key Key, value []byte) error

	// Scan calls fn for every key in region in ascending id order.
	// Returning ErrStopScan from fn ends the scan without error.
	Scan(region Region, fn func(key Key, value []byte) error) error
}

// Store is a transactional key/value store.
type Store interface {
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn in a read-write transaction. If fn returns an error
	// nothing it wrote is kept.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the store.
	Close() error
}

var (
	// ErrReadOnly is returned by Tx.Set inside View.
	ErrReadOnly = errors.New("kv: write in read-only transaction")

	// ErrStopScan ends a Scan early.
	ErrStopScan = errors.New("kv: stop scan")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("kv: store closed")
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// Backends lists the valid backend names.
var Backends = []string{BackendSQLite, BackendPebble, BackendMemory}

// Open opens a store of the named backend at path.
// The memory backend ignores path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendPebble:
		return OpenPebble(path)
	default:
		return nil, fmt.Errorf("unknown backend %q: must be one of %v", backend, Backends)
	}
}
