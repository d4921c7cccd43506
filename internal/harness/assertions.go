package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/flyter/internal/ir"
	"github.com/roach88/flyter/internal/kv"
	"github.com/roach88/flyter/internal/ledger"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s as %s -> %s\n", event.Seq, event.Op, event.Caller, event.Outcome)
		}
	}

	return buf.String()
}

// AssertionContext provides what assertions read final state from.
type AssertionContext struct {
	Store kv.Store
	Ctx   context.Context

	// Journaled is the number of journal entries written by the run.
	Journaled int
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result.Trace, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertMessage:
		return assertMessage(actx, trace, a)
	case AssertStats:
		return assertStats(actx, trace, a)
	case AssertCount:
		return assertCount(actx, trace, a)
	case AssertJournalCount:
		return assertJournalCount(actx, trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertMessage checks the stored message at a.ID against a.Expect.
func assertMessage(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	m, err := ledger.New(actx.Store).Get(actx.Ctx, ir.MessageID(a.ID))
	if err != nil {
		return &AssertionError{
			Type:     AssertMessage,
			Expected: fmt.Sprintf("message %d", a.ID),
			Actual:   err.Error(),
			Trace:    trace,
		}
	}
	if diffs := matchFields(a.Expect, messageFields(m)); len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertMessage,
			Expected: fmt.Sprintf("message %d with %s", a.ID, formatFields(a.Expect)),
			Actual:   strings.Join(diffs, "; "),
			Trace:    trace,
		}
	}
	return nil
}

// assertStats checks the stats record at a.ID against a.Expect.
func assertStats(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	s, err := ledger.New(actx.Store).Stats(actx.Ctx, ir.MessageID(a.ID))
	if err != nil {
		return &AssertionError{
			Type:     AssertStats,
			Expected: fmt.Sprintf("stats %d", a.ID),
			Actual:   err.Error(),
			Trace:    trace,
		}
	}
	if diffs := matchFields(a.Expect, statsFields(s)); len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertStats,
			Expected: fmt.Sprintf("stats %d with %s", a.ID, formatFields(a.Expect)),
			Actual:   strings.Join(diffs, "; "),
			Trace:    trace,
		}
	}
	return nil
}

// assertCount checks the highest assigned id.
func assertCount(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	n, err := ledger.New(actx.Store).Count(actx.Ctx)
	if err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	if int64(n) != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("count %d", a.Count),
			Actual:   fmt.Sprintf("count %d", n),
			Trace:    trace,
		}
	}
	return nil
}

// assertJournalCount checks how many calls were journaled.
func assertJournalCount(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	if int64(actx.Journaled) != a.Count {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d journal entries", a.Count),
			Actual:   fmt.Sprintf("%d journal entries", actx.Journaled),
			Trace:    trace,
		}
	}
	return nil
}

// messageFields flattens m into the field names used by scenarios.
// sender_nickname is always present and reads "" when none was given.
func messageFields(m ir.Message) map[string]any {
	return map[string]any{
		"sender":          string(m.Sender),
		"sender_nickname": m.Nick(),
		"recipient":       string(m.Recipient),
		"content":         string(m.Content),
		"in_reply_to":     int64(m.InReplyTo),
	}
}

func statsFields(s ir.Stats) map[string]any {
	return map[string]any{
		"like_count": s.LikeCount,
		"tip_total":  s.TipTotal,
	}
}

// resultFields flattens a call result. count is always present; the rest
// depends on which fields the op filled.
func resultFields(res ir.Result) map[string]any {
	fields := map[string]any{"count": int64(res.Count)}
	if res.ID != 0 {
		fields["id"] = int64(res.ID)
	}
	if res.Message != nil {
		for k, v := range messageFields(*res.Message) {
			fields[k] = v
		}
	}
	if res.Stats != nil {
		for k, v := range statsFields(*res.Stats) {
			fields[k] = v
		}
	}
	return fields
}

// matchFields compares expected against actual with subset semantics and
// returns one message per mismatch, sorted by field name.
func matchFields(expected, actual map[string]any) []string {
	var diffs []string
	for _, key := range sortedKeys(expected) {
		want := normalizeValue(expected[key])
		got, ok := actual[key]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: field not present", key))
			continue
		}
		if !reflect.DeepEqual(normalizeValue(got), want) {
			diffs = append(diffs, fmt.Sprintf("%s: expected %v, got %v", key, want, got))
		}
	}
	return diffs
}

// normalizeValue maps the numeric types YAML and the ledger produce onto
// int64 so values compare equal. Other values pass through unchanged.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	case ir.MessageID:
		return int64(n)
	}
	return v
}

func formatFields(m map[string]any) string {
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
