package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/flyter/internal/host"
	"github.com/roach88/flyter/internal/ir"
	"github.com/roach88/flyter/internal/kv"
	"github.com/roach88/flyter/internal/ledger"
	"github.com/roach88/flyter/internal/testutil"
)

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store for isolation, behind a real
// host with deterministic call tokens.
//
// Execution flow:
// 1. Create a fresh memory store and start a host on it
// 2. Submit each call, recording a trace event and checking its expect clause
// 3. Stop the host and evaluate assertions against the final state
// 4. Replay the journal and report any divergence
//
// A ledger rejection is an ordinary outcome. Any other call error aborts the
// run and is returned.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st := kv.NewMemory()
	defer st.Close()

	h := host.New(st, host.WithTokenGenerator(testutil.NewSequentialTokens(scenario.TokenPrefix)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Run(runCtx) }()

	result := NewResult()
	callErr := executeCalls(ctx, h, scenario.Calls, result)

	h.Stop()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("host: %w", err)
	}
	if callErr != nil {
		return nil, fmt.Errorf("failed to execute calls: %w", callErr)
	}

	journal, err := h.Journal(ctx)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	result.Journaled = len(journal)

	actx := &AssertionContext{
		Store:     st,
		Ctx:       ctx,
		Journaled: len(journal),
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	replay, err := h.Verify(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}
	for _, d := range replay.Divergences {
		result.AddError(fmt.Sprintf("replay seq %d: %s recorded %q, replayed %q", d.Seq, d.Field, d.Recorded, d.Replayed))
	}

	return result, nil
}

// executeCalls submits each step in order and records its trace event.
func executeCalls(ctx context.Context, h *host.Host, steps []CallStep, result *Result) error {
	for i, step := range steps {
		call := step.Call()
		res, err := h.Submit(ctx, call)
		if err != nil && !ledger.IsLedgerError(err) {
			return fmt.Errorf("calls[%d] (%s as %s): %w", i, step.Op, step.As, err)
		}

		event := TraceEvent{
			Seq:     i + 1,
			Op:      step.Op,
			Caller:  step.As,
			Args:    stepArgs(step),
			Outcome: outcome(err),
		}
		if err == nil {
			event.Result = resultFields(res)
		}
		result.AddTrace(event)

		checkExpect(i, step, event, result)
	}
	return nil
}

// checkExpect compares a call's outcome with its expect clause.
func checkExpect(index int, step CallStep, event TraceEvent, result *Result) {
	want := ir.OutcomeOK
	if step.Expect != nil {
		want, _ = normalizeCase(step.Expect.Case)
	}
	if event.Outcome != want {
		result.AddError(fmt.Sprintf("calls[%d] (%s as %s): expected case %s, got %s",
			index, step.Op, step.As, want, event.Outcome))
		return
	}
	if step.Expect == nil || len(step.Expect.Result) == 0 {
		return
	}
	for _, diff := range matchFields(step.Expect.Result, event.Result) {
		result.AddError(fmt.Sprintf("calls[%d] (%s as %s): result %s", index, step.Op, step.As, diff))
	}
}

func outcome(err error) string {
	if err == nil {
		return ir.OutcomeOK
	}
	if code, ok := ledger.CodeOf(err); ok {
		return string(code)
	}
	return "error"
}

// stepArgs lists the arguments a step passes, leaving out unset ones.
func stepArgs(s CallStep) map[string]any {
	args := map[string]any{}
	if s.Recipient != "" {
		args["recipient"] = s.Recipient
	}
	if s.Target != 0 {
		args["target"] = s.Target
	}
	if s.Content != "" {
		args["content"] = s.Content
	}
	if s.Nickname != nil {
		args["nickname"] = *s.Nickname
	}
	if s.Amount != 0 {
		args["amount"] = s.Amount
	}
	if len(args) == 0 {
		return nil
	}
	return args
}
