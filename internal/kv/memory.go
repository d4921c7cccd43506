package kv

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
)

// Memory is an in-process Store. Update transactions are serialized by a
// mutex and buffer their writes until fn returns nil.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// View runs fn against a read-only snapshot of the committed data.
func (m *Memory) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn(&memoryTx{store: m, readOnly: true})
}

// Update runs fn and applies its writes only if fn succeeds.
func (m *Memory) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	tx := &memoryTx{store: m, pending: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.pending {
		m.data[k] = v
	}
	return nil
}

// Close drops all data.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of stored keys. Used by tests.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

type memoryTx struct {
	store    *Memory
	pending  map[string][]byte
	readOnly bool
}

func (tx *memoryTx) Get(key Key) ([]byte, bool, error) {
	k := string(key.Bytes())
	if v, ok := tx.pending[k]; ok {
		return bytes.Clone(v), true, nil
	}
	v, ok := tx.store.data[k]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (tx *memoryTx) Set(key Key, value []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	tx.pending[string(key.Bytes())] = bytes.Clone(value)
	return nil
}

func (tx *memoryTx) Scan(region Region, fn func(key Key, value []byte) error) error {
	lower, upper := regionBounds(region)
	inRange := func(k string) bool {
		return k >= string(lower) && k < string(upper)
	}

	seen := make(map[string]struct{})
	var keys []string
	for k := range tx.store.data {
		if inRange(k) {
			keys = append(keys, k)
			seen[k] = struct{}{}
		}
	}
	for k := range tx.pending {
		if _, dup := seen[k]; !dup && inRange(k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	for _, k := range keys {
		key, err := ParseKey([]byte(k))
		if err != nil {
			return err
		}
		v, _, err := tx.Get(key)
		if err != nil {
			return err
		}
		if err := fn(key, v); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}
