// Package kv provides the key/value store the flyter ledger persists into.
//
// The ledger consumes only two primitives from its host, get(key) and
// set(key, value). This package exposes them inside transactions so that a
// whole ledger call either commits all of its writes or none of them:
//
//	err := st.Update(ctx, func(tx kv.Tx) error {
//	    v, ok, err := tx.Get(kv.SequenceKey)
//	    ...
//	    return tx.Set(kv.MessageKey(id), data)
//	})
//
// # Key Layout
//
// One key space is split into regions by a leading tag byte:
//
//	0x00/ sequence  -> [0] ledger counter, [1] journal head
//	0x01/ message   -> [id] canonical JSON message
//	0x02/ stats     -> [id] canonical JSON stats
//	0x03/ journal   -> [seq] canonical JSON journal entry
//
// Ids are written big-endian so byte order equals numeric order within a
// region and a region can be scanned with a simple [lower, upper) range.
//
// # Backends
//
//   - memory: maps guarded by a mutex (tests, replay)
//   - sqlite: single kv table, WAL mode (github.com/mattn/go-sqlite3)
//   - pebble: LSM store (github.com/cockroachdb/pebble)
//
// Stores serialize Update calls. Callers that need a total order across
// processes must provide it themselves.
package kv
