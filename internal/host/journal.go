package host

import (
	"context"
	"fmt"

	"github.com/roach88/flyter/internal/ir"
	"github.com/roach88/flyter/internal/kv"
)

// appendJournal writes one journal entry in tx and advances the journal
// head. Returns the stored entry.
func appendJournal(tx kv.Tx, token string, call ir.Call, outcome string, resultID ir.MessageID) (ir.JournalEntry, error) {
	head, err := readJournalHead(tx)
	if err != nil {
		return ir.JournalEntry{}, err
	}
	seq := head + 1

	id, err := ir.CallID(token, call, seq)
	if err != nil {
		return ir.JournalEntry{}, fmt.Errorf("journal call id: %w", err)
	}
	entry := ir.JournalEntry{
		ID:        id,
		Seq:       seq,
		CallToken: token,
		Call:      call,
		Outcome:   outcome,
		ResultID:  resultID,
	}

	data, err := ir.EncodeJournalEntry(entry)
	if err != nil {
		return ir.JournalEntry{}, fmt.Errorf("encode journal entry %d: %w", seq, err)
	}
	if err := tx.Set(kv.JournalKey(seq), data); err != nil {
		return ir.JournalEntry{}, fmt.Errorf("write journal entry %d: %w", seq, err)
	}
	if err := tx.Set(kv.JournalHeadKey, ir.EncodeCounter(seq)); err != nil {
		return ir.JournalEntry{}, fmt.Errorf("write journal head: %w", err)
	}
	return entry, nil
}

func readJournalHead(tx kv.Tx) (int64, error) {
	data, ok, err := tx.Get(kv.JournalHeadKey)
	if err != nil {
		return 0, fmt.Errorf("read journal head: %w", err)
	}
	if !ok {
		return 0, nil
	}
	head, err := ir.DecodeCounter(data)
	if err != nil {
		return 0, fmt.Errorf("read journal head: %w", err)
	}
	return head, nil
}

// ReadJournal returns every journal entry in store, ordered by seq.
func ReadJournal(ctx context.Context, store kv.Store) ([]ir.JournalEntry, error) {
	var entries []ir.JournalEntry
	err := store.View(ctx, func(tx kv.Tx) error {
		return tx.Scan(kv.RegionJournal, func(key kv.Key, value []byte) error {
			e, err := ir.DecodeJournalEntry(value)
			if err != nil {
				return fmt.Errorf("decode journal entry %d: %w", key.ID, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}
