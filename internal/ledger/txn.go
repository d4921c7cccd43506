package ledger

import (
	"fmt"
	"math"

	"github.com/roach88/flyter/internal/ir"
	"github.com/roach88/flyter/internal/kv"
)

// Txn runs ledger operations against one open store transaction.
// It does not commit; the caller owns the transaction boundary.
type Txn struct {
	tx kv.Tx
}

// Within binds the ledger operations to tx.
func Within(tx kv.Tx) *Txn {
	return &Txn{tx: tx}
}

// Count returns the highest assigned id, or 0 on an empty ledger.
func (t *Txn) Count() (ir.MessageID, error) {
	data, ok, err := t.tx.Get(kv.SequenceKey)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := ir.DecodeCounter(data)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return ir.MessageID(n), nil
}

// NextID returns the id the next post or reply will receive. Pure read.
func (t *Txn) NextID() (ir.MessageID, error) {
	n, err := t.Count()
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

// Post stores a new message from caller to recipient and returns its id.
func (t *Txn) Post(caller, recipient ir.Identity, content []byte, nickname *string) (ir.MessageID, error) {
	return t.allocateAndStore(ir.Message{
		Sender:    caller,
		Nickname:  nickname,
		Recipient: recipient,
		Content:   content,
		InReplyTo: ir.NoReply,
	})
}

// Reply answers message respondTo. Only its recipient may reply; the new
// message goes from that recipient back to the original sender.
func (t *Txn) Reply(caller ir.Identity, respondTo ir.MessageID, content []byte, nickname *string) (ir.MessageID, error) {
	target, ok, err := t.readMessage(respondTo)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, noSuchMessage(respondTo)
	}
	if target.Recipient != caller {
		return 0, notAddressee(respondTo, caller)
	}

	return t.allocateAndStore(ir.Message{
		Sender:    target.Recipient,
		Nickname:  nickname,
		Recipient: target.Sender,
		Content:   content,
		InReplyTo: respondTo,
	})
}

// Get returns the message stored at id.
func (t *Txn) Get(id ir.MessageID) (ir.Message, error) {
	m, ok, err := t.readMessage(id)
	if err != nil {
		return ir.Message{}, err
	}
	if !ok {
		return ir.Message{}, notFound(id)
	}
	return m, nil
}

// Stats returns the stats record paired with message id.
func (t *Txn) Stats(id ir.MessageID) (ir.Stats, error) {
	s, ok, err := t.readStats(id)
	if err != nil {
		return ir.Stats{}, err
	}
	if !ok {
		return ir.Stats{}, notFound(id)
	}
	return s, nil
}

// Like adds one to the like count of message id. Any caller may like any
// message any number of times.
func (t *Txn) Like(id ir.MessageID) (ir.Stats, error) {
	s, err := t.Stats(id)
	if err != nil {
		return ir.Stats{}, err
	}
	if s.LikeCount == math.MaxInt64 {
		return ir.Stats{}, fmt.Errorf("like %d: like count overflow", id)
	}
	s.LikeCount++
	if err := t.writeStats(id, s); err != nil {
		return ir.Stats{}, err
	}
	return s, nil
}

// Tip adds amount to the tip total of message id.
func (t *Txn) Tip(id ir.MessageID, amount int64) (ir.Stats, error) {
	if amount <= 0 {
		return ir.Stats{}, invalidAmount(id, "tip amount must be positive")
	}
	s, err := t.Stats(id)
	if err != nil {
		return ir.Stats{}, err
	}
	if s.TipTotal > math.MaxInt64-amount {
		return ir.Stats{}, invalidAmount(id, "tip would overflow the total")
	}
	s.TipTotal += amount
	if err := t.writeStats(id, s); err != nil {
		return ir.Stats{}, err
	}
	return s, nil
}

// Exec dispatches call to the matching operation. Result.Count is always
// filled with the counter as seen after the call.
func (t *Txn) Exec(call ir.Call) (ir.Result, error) {
	var res ir.Result
	var err error

	switch call.Op {
	case ir.OpPost:
		res.ID, err = t.Post(call.Caller, call.Recipient, call.Content, call.Nickname)
	case ir.OpReply:
		res.ID, err = t.Reply(call.Caller, call.Target, call.Content, call.Nickname)
	case ir.OpGet:
		var m ir.Message
		if m, err = t.Get(call.Target); err == nil {
			res.Message = &m
		}
	case ir.OpStats:
		var s ir.Stats
		if s, err = t.Stats(call.Target); err == nil {
			res.Stats = &s
		}
	case ir.OpLike:
		var s ir.Stats
		if s, err = t.Like(call.Target); err == nil {
			res.Stats = &s
		}
	case ir.OpTip:
		var s ir.Stats
		if s, err = t.Tip(call.Target, call.Amount); err == nil {
			res.Stats = &s
		}
	case ir.OpCount:
	default:
		return ir.Result{}, fmt.Errorf("unknown op %q", call.Op)
	}
	if err != nil {
		return ir.Result{}, err
	}

	if res.Count, err = t.Count(); err != nil {
		return ir.Result{}, err
	}
	return res, nil
}

// allocateAndStore is the shared tail of post and reply.
func (t *Txn) allocateAndStore(m ir.Message) (ir.MessageID, error) {
	id, err := t.allocateID()
	if err != nil {
		return 0, err
	}
	if err := t.storePair(id, m); err != nil {
		return 0, err
	}
	return id, nil
}

// allocateID advances the counter and returns the new id.
func (t *Txn) allocateID() (ir.MessageID, error) {
	id, err := t.NextID()
	if err != nil {
		return 0, err
	}
	if err := t.tx.Set(kv.SequenceKey, ir.EncodeCounter(int64(id))); err != nil {
		return 0, fmt.Errorf("write counter: %w", err)
	}
	return id, nil
}

// storePair writes message m and a zeroed stats record at id.
func (t *Txn) storePair(id ir.MessageID, m ir.Message) error {
	data, err := ir.EncodeMessage(m)
	if err != nil {
		return fmt.Errorf("encode message %d: %w", id, err)
	}
	if err := t.tx.Set(kv.MessageKey(int64(id)), data); err != nil {
		return fmt.Errorf("write message %d: %w", id, err)
	}
	return t.writeStats(id, ir.Stats{})
}

func (t *Txn) readMessage(id ir.MessageID) (ir.Message, bool, error) {
	if !id.Valid() {
		return ir.Message{}, false, nil
	}
	data, ok, err := t.tx.Get(kv.MessageKey(int64(id)))
	if err != nil || !ok {
		if err != nil {
			err = fmt.Errorf("read message %d: %w", id, err)
		}
		return ir.Message{}, false, err
	}
	m, err := ir.DecodeMessage(data)
	if err != nil {
		return ir.Message{}, false, fmt.Errorf("decode message %d: %w", id, err)
	}
	return m, true, nil
}

func (t *Txn) readStats(id ir.MessageID) (ir.Stats, bool, error) {
	if !id.Valid() {
		return ir.Stats{}, false, nil
	}
	data, ok, err := t.tx.Get(kv.StatsKey(int64(id)))
	if err != nil || !ok {
		if err != nil {
			err = fmt.Errorf("read stats %d: %w", id, err)
		}
		return ir.Stats{}, false, err
	}
	s, err := ir.DecodeStats(data)
	if err != nil {
		return ir.Stats{}, false, fmt.Errorf("decode stats %d: %w", id, err)
	}
	return s, true, nil
}

func (t *Txn) writeStats(id ir.MessageID, s ir.Stats) error {
	data, err := ir.EncodeStats(s)
	if err != nil {
		return fmt.Errorf("encode stats %d: %w", id, err)
	}
	if err := t.tx.Set(kv.StatsKey(int64(id)), data); err != nil {
		return fmt.Errorf("write stats %d: %w", id, err)
	}
	return nil
}
