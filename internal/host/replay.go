package host

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/flyter/internal/ir"
	"github.com/roach88/flyter/internal/kv"
	"github.com/roach88/flyter/internal/ledger"
)

// Divergence is one point where a replay disagrees with the journal.
type Divergence struct {
	Seq      int64  `json:"seq"` // 0 for whole-ledger checks
	Field    string `json:"field"`
	Recorded string `json:"recorded"`
	Replayed string `json:"replayed"`
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	Entries     int          `json:"entries"`
	Count       ir.MessageID `json:"count"`
	Divergences []Divergence `json:"divergences,omitempty"`
}

// OK reports whether the replay reproduced every recorded outcome.
func (r ReplayResult) OK() bool {
	return len(r.Divergences) == 0
}

// Replay re-executes entries in order against a fresh in-memory ledger and
// compares each outcome, result id and entry id with what was recorded.
//
// Ledger calls are deterministic given their order, so any divergence means
// the journal or the store was altered outside the host.
func Replay(ctx context.Context, entries []ir.JournalEntry) (ReplayResult, error) {
	mem := kv.NewMemory()
	defer mem.Close()
	l := ledger.New(mem)

	result := ReplayResult{Entries: len(entries)}
	diverge := func(seq int64, field, recorded, replayed string) {
		result.Divergences = append(result.Divergences, Divergence{
			Seq: seq, Field: field, Recorded: recorded, Replayed: replayed,
		})
	}

	for i, e := range entries {
		if want := int64(i + 1); e.Seq != want {
			diverge(e.Seq, "seq", strconv.FormatInt(e.Seq, 10), strconv.FormatInt(want, 10))
		}

		id, err := ir.CallID(e.CallToken, e.Call, e.Seq)
		if err != nil {
			return result, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
		if id != e.ID {
			diverge(e.Seq, "id", e.ID, id)
		}

		res, err := l.Exec(ctx, e.Call)
		if err != nil && !ledger.IsLedgerError(err) {
			return result, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
		if outcome := outcomeOf(err); outcome != e.Outcome {
			diverge(e.Seq, "outcome", e.Outcome, outcome)
		}
		if res.ID != e.ResultID {
			diverge(e.Seq, "result_id",
				strconv.FormatInt(int64(e.ResultID), 10),
				strconv.FormatInt(int64(res.ID), 10))
		}
	}

	count, err := l.Count(ctx)
	if err != nil {
		return result, fmt.Errorf("replay count: %w", err)
	}
	result.Count = count
	return result, nil
}

// Verify replays the host's journal and also checks the replayed counter
// against the live one.
func (h *Host) Verify(ctx context.Context) (ReplayResult, error) {
	entries, err := h.Journal(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	result, err := Replay(ctx, entries)
	if err != nil {
		return result, err
	}

	live, err := ledger.New(h.store).Count(ctx)
	if err != nil {
		return result, fmt.Errorf("verify: %w", err)
	}
	if live != result.Count {
		result.Divergences = append(result.Divergences, Divergence{
			Field:    "count",
			Recorded: strconv.FormatInt(int64(live), 10),
			Replayed: strconv.FormatInt(int64(result.Count), 10),
		})
	}
	return result, nil
}
