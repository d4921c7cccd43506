package ledger

import (
	"context"

	"github.com/roach88/flyter/internal/ir"
	"github.com/roach88/flyter/internal/kv"
)

// Ledger runs each operation in its own store transaction.
// Concurrent callers must be serialized; see package internal/host.
type Ledger struct {
	store kv.Store
}

// New creates a ledger over store.
func New(store kv.Store) *Ledger {
	return &Ledger{store: store}
}

// Store returns the underlying store.
func (l *Ledger) Store() kv.Store {
	return l.store
}

// NextID returns the id the next post or reply will receive.
func (l *Ledger) NextID(ctx context.Context) (ir.MessageID, error) {
	var id ir.MessageID
	err := l.store.View(ctx, func(tx kv.Tx) error {
		var err error
		id, err = Within(tx).NextID()
		return err
	})
	return id, err
}

// Count returns the highest assigned id.
func (l *Ledger) Count(ctx context.Context) (ir.MessageID, error) {
	var n ir.MessageID
	err := l.store.View(ctx, func(tx kv.Tx) error {
		var err error
		n, err = Within(tx).Count()
		return err
	})
	return n, err
}

// Post stores a message from caller to recipient.
func (l *Ledger) Post(ctx context.Context, caller, recipient ir.Identity, content []byte, nickname *string) (ir.MessageID, error) {
	var id ir.MessageID
	err := l.store.Update(ctx, func(tx kv.Tx) error {
		var err error
		id, err = Within(tx).Post(caller, recipient, content, nickname)
		return err
	})
	return id, err
}

// Reply answers message respondTo on behalf of its recipient.
func (l *Ledger) Reply(ctx context.Context, caller ir.Identity, respondTo ir.MessageID, content []byte, nickname *string) (ir.MessageID, error) {
	var id ir.MessageID
	err := l.store.Update(ctx, func(tx kv.Tx) error {
		var err error
		id, err = Within(tx).Reply(caller, respondTo, content, nickname)
		return err
	})
	return id, err
}

// Get returns message id.
func (l *Ledger) Get(ctx context.Context, id ir.MessageID) (ir.Message, error) {
	var m ir.Message
	err := l.store.View(ctx, func(tx kv.Tx) error {
		var err error
		m, err = Within(tx).Get(id)
		return err
	})
	return m, err
}

// Stats returns the counters of message id.
func (l *Ledger) Stats(ctx context.Context, id ir.MessageID) (ir.Stats, error) {
	var s ir.Stats
	err := l.store.View(ctx, func(tx kv.Tx) error {
		var err error
		s, err = Within(tx).Stats(id)
		return err
	})
	return s, err
}

// Like increments the like count of message id.
func (l *Ledger) Like(ctx context.Context, id ir.MessageID) (ir.Stats, error) {
	var s ir.Stats
	err := l.store.Update(ctx, func(tx kv.Tx) error {
		var err error
		s, err = Within(tx).Like(id)
		return err
	})
	return s, err
}

// Tip adds amount to the tip total of message id.
func (l *Ledger) Tip(ctx context.Context, id ir.MessageID, amount int64) (ir.Stats, error) {
	var s ir.Stats
	err := l.store.Update(ctx, func(tx kv.Tx) error {
		var err error
		s, err = Within(tx).Tip(id, amount)
		return err
	})
	return s, err
}

// Exec runs call in one transaction, read-only for ops that do not mutate.
func (l *Ledger) Exec(ctx context.Context, call ir.Call) (ir.Result, error) {
	run := l.store.View
	if call.Op.Mutates() {
		run = l.store.Update
	}
	var res ir.Result
	err := run(ctx, func(tx kv.Tx) error {
		var err error
		res, err = Within(tx).Exec(call)
		return err
	})
	return res, err
}
