package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Pebble is a Store backed by a Pebble LSM database.
// Each Update runs in an indexed batch committed with fsync.
type Pebble struct {
	mu      sync.RWMutex // guards db; held for reading by View and Update
	writeMu sync.Mutex   // serializes Update
	db      *pebble.DB
}

// OpenPebble creates or opens a Pebble database in dir.
func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dir, err)
	}
	return &Pebble{db: db}, nil
}

// Close flushes and closes the database.
func (p *Pebble) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// View runs fn against a consistent snapshot.
func (p *Pebble) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return ErrClosed
	}
	snap := p.db.NewSnapshot()
	defer snap.Close()

	return fn(&pebbleTx{reader: snap, readOnly: true})
}

// Update runs fn in an indexed batch and commits it if fn succeeds.
func (p *Pebble) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return ErrClosed
	}

	batch := p.db.NewIndexedBatch()
	defer batch.Close()

	if err := fn(&pebbleTx{reader: batch, batch: batch}); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("update: commit: %w", err)
	}
	return nil
}

// pebbleReader is the read surface shared by snapshots and indexed batches.
type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type pebbleTx struct {
	reader   pebbleReader
	batch    *pebble.Batch
	readOnly bool
}

func (t *pebbleTx) Get(key Key) ([]byte, bool, error) {
	v, closer, err := t.reader.Get(key.Bytes())
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	value := bytes.Clone(v)
	if err := closer.Close(); err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (t *pebbleTx) Set(key Key, value []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if err := t.batch.Set(key.Bytes(), value, nil); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (t *pebbleTx) Scan(region Region, fn func(key Key, value []byte) error) error {
	lower, upper := regionBounds(region)
	iter, err := t.reader.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return fmt.Errorf("scan %s: %w", region, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key, err := ParseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(key, bytes.Clone(iter.Value())); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterate %s: %w", region, err)
	}
	return nil
}
