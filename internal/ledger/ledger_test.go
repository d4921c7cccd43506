package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flyter/internal/ir"
	"github.com/roach88/flyter/internal/kv"
)

func newTestLedger(t *testing.T) (*Ledger, *kv.Memory) {
	t.Helper()
	mem := kv.NewMemory()
	t.Cleanup(func() { mem.Close() })
	return New(mem), mem
}

func TestEmptyLedger(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.MessageID(0), n)

	next, err := l.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.MessageID(1), next)
}

func TestIDsAreSequentialAcrossPostAndReply(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	var ids []ir.MessageID
	first, err := l.Post(ctx, "A", "B", []byte("hi"), nil)
	require.NoError(t, err)
	ids = append(ids, first)

	for i := 0; i < 5; i++ {
		var id ir.MessageID
		if i%2 == 0 {
			id, err = l.Post(ctx, "A", "B", []byte(fmt.Sprintf("m%d", i)), nil)
		} else {
			id, err = l.Reply(ctx, "B", first, []byte(fmt.Sprintf("r%d", i)), nil)
		}
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Equal(t, []ir.MessageID{1, 2, 3, 4, 5, 6}, ids)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.MessageID(6), n)
}

func TestNextIDIsPure(t *testing.T) {
	ctx := context.Background()
	l, mem := newTestLedger(t)

	for i := 0; i < 3; i++ {
		id, err := l.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, ir.MessageID(1), id)
	}
	assert.Equal(t, 0, mem.Len())
}

func TestGetReturnsPostedMessage(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	content := []byte{0x00, 0xff, 'h', 'i'}
	id, err := l.Post(ctx, "alice", "bob", content, ir.Nick("al"))
	require.NoError(t, err)

	m, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ir.Identity("alice"), m.Sender)
	assert.Equal(t, ir.Identity("bob"), m.Recipient)
	assert.Equal(t, content, m.Content)
	assert.Equal(t, "al", m.Nick())
	assert.Equal(t, ir.NoReply, m.InReplyTo)
	assert.False(t, m.IsReply())
}

func TestGetWithoutNicknameReadsEmpty(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	id, err := l.Post(ctx, "alice", "bob", []byte("x"), nil)
	require.NoError(t, err)

	m, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, m.Nickname)
	assert.Equal(t, "", m.Nick())
}

func TestPostToSelfAllowed(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	id, err := l.Post(ctx, "A", "A", []byte("note to self"), nil)
	require.NoError(t, err)

	m, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, m.Sender, m.Recipient)
}

func TestPostCreatesZeroedStats(t *testing.T) {
	ctx := context.Background()
	l, mem := newTestLedger(t)

	id, err := l.Post(ctx, "A", "B", []byte("hi"), nil)
	require.NoError(t, err)

	s, err := l.Stats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ir.Stats{}, s)

	// counter + message + stats
	assert.Equal(t, 3, mem.Len())
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.Post(ctx, "A", "B", []byte("hi"), nil)
	require.NoError(t, err)

	for _, id := range []ir.MessageID{0, -1, 2, 1 << 40} {
		_, err := l.Get(ctx, id)
		assert.True(t, IsNotFound(err), "id %d: %v", id, err)

		_, err = l.Stats(ctx, id)
		assert.True(t, IsNotFound(err), "id %d: %v", id, err)
	}
}

func TestLikeCounts(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	id, err := l.Post(ctx, "A", "B", []byte("hi"), nil)
	require.NoError(t, err)

	const k = 7
	for i := 1; i <= k; i++ {
		s, err := l.Like(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(i), s.LikeCount)
	}

	s, err := l.Stats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ir.Stats{LikeCount: k}, s)
}

func TestLikeMissingWritesNothing(t *testing.T) {
	ctx := context.Background()
	l, mem := newTestLedger(t)

	_, err := l.Like(ctx, 1)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, mem.Len())

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.MessageID(0), n)
}

// Likes are not tracked per caller: the same caller may like repeatedly.
func TestLikeIsNotDeduplicatedPerCaller(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	id, err := l.Post(ctx, "A", "B", []byte("hi"), nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.Exec(ctx, ir.Call{Op: ir.OpLike, Caller: "C", Target: id})
		require.NoError(t, err)
	}

	s, err := l.Stats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.LikeCount)
}

func TestReplyByAddressee(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	first, err := l.Post(ctx, "A", "B", []byte("hi"), ir.Nick("alpha"))
	require.NoError(t, err)

	id, err := l.Reply(ctx, "B", first, []byte("hey"), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.MessageID(2), id)

	m, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ir.Identity("B"), m.Sender)
	assert.Equal(t, ir.Identity("A"), m.Recipient)
	assert.Equal(t, first, m.InReplyTo)
	assert.Equal(t, []byte("hey"), m.Content)
	assert.Nil(t, m.Nickname, "reply nickname comes from the reply call only")
	assert.True(t, m.IsReply())
}

func TestReplyByNonAddresseeChangesNothing(t *testing.T) {
	ctx := context.Background()
	l, mem := newTestLedger(t)

	first, err := l.Post(ctx, "A", "B", []byte("hi"), nil)
	require.NoError(t, err)
	before := mem.Len()

	for _, caller := range []ir.Identity{"C", "A"} {
		_, err = l.Reply(ctx, caller, first, []byte("nope"), nil)
		require.Error(t, err)
		assert.True(t, IsNotAddressee(err), "caller %s: %v", caller, err)

		var le *Error
		require.True(t, errors.As(err, &le))
		assert.Equal(t, caller, le.Caller)
		assert.Equal(t, first, le.ID)
	}

	assert.Equal(t, before, mem.Len())
	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.MessageID(1), n)
}

func TestIdentitiesRoundTripByteExact(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	decomposed := ir.Identity("Boe\u0301")
	composed := ir.Identity("Bo\u00e9")
	invalid := ir.Identity("al\xffice")

	first, err := l.Post(ctx, invalid, decomposed, []byte("hi"), ir.Nick("n\xff"))
	require.NoError(t, err)

	m, err := l.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []byte(invalid), []byte(m.Sender))
	assert.Equal(t, []byte(decomposed), []byte(m.Recipient))
	require.NotNil(t, m.Nickname)
	assert.Equal(t, []byte("n\xff"), []byte(*m.Nickname))

	// Identities are opaque: the precomposed spelling is someone else.
	_, err = l.Reply(ctx, composed, first, []byte("hey"), nil)
	assert.True(t, IsNotAddressee(err), "%v", err)

	id, err := l.Reply(ctx, decomposed, first, []byte("hey"), nil)
	require.NoError(t, err)

	r, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, decomposed, r.Sender)
	assert.Equal(t, invalid, r.Recipient)

	_, err = l.Reply(ctx, invalid, id, []byte("back"), nil)
	require.NoError(t, err)
}

func TestReplyToMissing(t *testing.T) {
	ctx := context.Background()
	l, mem := newTestLedger(t)

	for _, target := range []ir.MessageID{0, 1, -5} {
		_, err := l.Reply(ctx, "B", target, []byte("hey"), nil)
		assert.True(t, IsNoSuchMessage(err), "target %d: %v", target, err)
		assert.False(t, IsNotFound(err))
	}
	assert.Equal(t, 0, mem.Len())
}

func TestReplyToReply(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	first, err := l.Post(ctx, "A", "B", []byte("hi"), nil)
	require.NoError(t, err)
	second, err := l.Reply(ctx, "B", first, []byte("hey"), nil)
	require.NoError(t, err)

	// Message 2 is addressed to A, so A answers it.
	third, err := l.Reply(ctx, "A", second, []byte("yo"), nil)
	require.NoError(t, err)

	m, err := l.Get(ctx, third)
	require.NoError(t, err)
	assert.Equal(t, ir.Identity("A"), m.Sender)
	assert.Equal(t, ir.Identity("B"), m.Recipient)
	assert.Equal(t, second, m.InReplyTo)
}

func TestTip(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	id, err := l.Post(ctx, "A", "B", []byte("hi"), nil)
	require.NoError(t, err)

	_, err = l.Tip(ctx, id, 10)
	require.NoError(t, err)
	s, err := l.Tip(ctx, id, 32)
	require.NoError(t, err)
	assert.Equal(t, ir.Stats{TipTotal: 42}, s)
}

func TestTipRejections(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	id, err := l.Post(ctx, "A", "B", []byte("hi"), nil)
	require.NoError(t, err)

	_, err = l.Tip(ctx, id, 0)
	assert.True(t, IsInvalidAmount(err))
	_, err = l.Tip(ctx, id, -3)
	assert.True(t, IsInvalidAmount(err))
	_, err = l.Tip(ctx, 99, 5)
	assert.True(t, IsNotFound(err))

	_, err = l.Tip(ctx, id, math.MaxInt64)
	require.NoError(t, err)
	_, err = l.Tip(ctx, id, 1)
	assert.True(t, IsInvalidAmount(err))

	s, err := l.Stats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), s.TipTotal)
}

func TestExecDispatch(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	res, err := l.Exec(ctx, ir.Call{Op: ir.OpPost, Caller: "A", Recipient: "B", Content: []byte("hi")})
	require.NoError(t, err)
	assert.Equal(t, ir.MessageID(1), res.ID)
	assert.Equal(t, ir.MessageID(1), res.Count)

	res, err = l.Exec(ctx, ir.Call{Op: ir.OpGet, Caller: "Z", Target: 1})
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, ir.Identity("A"), res.Message.Sender)

	res, err = l.Exec(ctx, ir.Call{Op: ir.OpTip, Caller: "Z", Target: 1, Amount: 4})
	require.NoError(t, err)
	require.NotNil(t, res.Stats)
	assert.Equal(t, int64(4), res.Stats.TipTotal)

	res, err = l.Exec(ctx, ir.Call{Op: ir.OpCount, Caller: "Z"})
	require.NoError(t, err)
	assert.Equal(t, ir.MessageID(1), res.Count)
	assert.Nil(t, res.Message)

	_, err = l.Exec(ctx, ir.Call{Op: "delete", Caller: "Z"})
	require.Error(t, err)
	assert.False(t, IsLedgerError(err))
}

// The walkthrough every backend must reproduce.
func TestScenario(t *testing.T) {
	ctx := context.Background()

	sq, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer sq.Close()

	pb, err := kv.OpenPebble(filepath.Join(t.TempDir(), "pebble"))
	require.NoError(t, err)
	defer pb.Close()

	stores := map[string]kv.Store{"memory": kv.NewMemory(), "sqlite": sq, "pebble": pb}
	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			l := New(st)

			n, err := l.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, ir.MessageID(0), n)

			id, err := l.Post(ctx, "A", "B", []byte("hi"), nil)
			require.NoError(t, err)
			assert.Equal(t, ir.MessageID(1), id)

			id, err = l.Reply(ctx, "B", 1, []byte("hey"), nil)
			require.NoError(t, err)
			assert.Equal(t, ir.MessageID(2), id)

			m, err := l.Get(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, ir.Message{Sender: "B", Recipient: "A", Content: []byte("hey"), InReplyTo: 1}, m)

			_, err = l.Reply(ctx, "C", 1, []byte("me too"), nil)
			assert.ErrorIs(t, err, ErrNotAddressee)

			n, err = l.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, ir.MessageID(2), n)

			_, err = l.Like(ctx, 2)
			require.NoError(t, err)
			_, err = l.Like(ctx, 2)
			require.NoError(t, err)

			s, err := l.Stats(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, int64(2), s.LikeCount)
		})
	}
}
