package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/flyter/internal/ir"
	"github.com/roach88/flyter/internal/kv"
	"github.com/roach88/flyter/internal/ledger"
)

var (
	// ErrStopped is returned by Submit once the host has stopped.
	ErrStopped = errors.New("host stopped")

	// ErrNoCaller is returned for a call without an authenticated caller.
	ErrNoCaller = errors.New("call has no caller identity")
)

// Host is the single-writer execution loop around one ledger store.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Journal(), Replay(): safe from any goroutine (read-only)
type Host struct {
	store   kv.Store
	queue   *callQueue
	tokens  TokenGenerator
	metrics *Metrics
}

// Option configures a Host.
type Option func(*Host)

// WithTokenGenerator sets the call token source. Defaults to UUIDv7Generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(h *Host) { h.tokens = g }
}

// WithMetrics records call metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// New creates a host over store. Call Run to start processing.
func New(store kv.Store, opts ...Option) *Host {
	h := &Host{
		store:  store,
		queue:  newCallQueue(),
		tokens: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Store returns the store the host executes against.
func (h *Host) Store() kv.Store {
	return h.store
}

// Submit queues call and waits for its result.
//
// Ledger rejections are returned as *ledger.Error. If ctx ends before Run
// picks the call up, the call is skipped and Submit returns ctx.Err(). Once
// Run has picked it up, Submit waits for the outcome regardless of ctx, so a
// returned error always means nothing was committed.
func (h *Host) Submit(ctx context.Context, call ir.Call) (ir.Result, error) {
	if call.Caller == "" {
		return ir.Result{}, ErrNoCaller
	}
	if !ir.ValidOps[call.Op] {
		return ir.Result{}, fmt.Errorf("unknown op %q", call.Op)
	}

	req := &request{ctx: ctx, call: call, done: make(chan response, 1)}
	if !h.queue.Enqueue(req) {
		return ir.Result{}, ErrStopped
	}

	select {
	case resp := <-req.done:
		return resp.result, resp.err
	case <-ctx.Done():
		if req.abandon() {
			return ir.Result{}, ctx.Err()
		}
		resp := <-req.done
		return resp.result, resp.err
	}
}

// Run executes submitted calls one at a time until ctx is cancelled or Stop
// is called. Requests still queued when Run returns fail with ErrStopped.
//
// A failed call is logged and reported to its submitter; the loop continues.
func (h *Host) Run(ctx context.Context) error {
	slog.Info("host starting")
	defer h.drain()

	for {
		req, ok := h.queue.TryDequeue()
		if ok {
			h.process(ctx, req)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("host stopping: context cancelled")
			h.queue.Close()
			return ctx.Err()

		case <-h.queue.Wait():
			// The signal channel is closed by Stop, which makes this case
			// fire on every iteration until the queue is drained.
			if h.queue.Len() == 0 && h.queue.Closed() {
				slog.Info("host stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the queue is empty.
func (h *Host) Stop() {
	h.queue.Close()
}

func (h *Host) drain() {
	for {
		req, ok := h.queue.TryDequeue()
		if !ok {
			return
		}
		req.done <- response{err: ErrStopped}
	}
}

// process runs one request. Called only from Run.
func (h *Host) process(ctx context.Context, req *request) {
	if !req.claim() {
		return
	}
	if err := req.ctx.Err(); err != nil {
		req.done <- response{err: err}
		return
	}

	res, err := h.execute(ctx, req.call)
	if err != nil && !ledger.IsLedgerError(err) {
		slog.Error("call failed",
			"error", err,
			"op", req.call.Op,
			"caller", req.call.Caller,
			"target", req.call.Target,
		)
	}
	req.done <- response{result: res, err: err}
}

// execute runs call in one store transaction. Mutating calls are journaled
// in the same transaction whether the ledger accepts or rejects them.
func (h *Host) execute(ctx context.Context, call ir.Call) (ir.Result, error) {
	start := time.Now()

	if !call.Op.Mutates() {
		var res ir.Result
		err := h.store.View(ctx, func(tx kv.Tx) error {
			var err error
			res, err = ledger.Within(tx).Exec(call)
			return err
		})
		h.metrics.observe(call.Op, outcomeOf(err), time.Since(start), res.Count)
		return res, err
	}

	token := h.tokens.Generate()
	var (
		res       ir.Result
		ledgerErr error
		entry     ir.JournalEntry
	)
	err := h.store.Update(ctx, func(tx kv.Tx) error {
		var err error
		res, err = ledger.Within(tx).Exec(call)
		if err != nil {
			if !ledger.IsLedgerError(err) {
				return err
			}
			// Ledger rejections happen before any write, so the journal
			// entry is the only thing this transaction stores.
			ledgerErr = err
			res = ir.Result{}
		}
		entry, err = appendJournal(tx, token, call, outcomeOf(ledgerErr), res.ID)
		return err
	})
	if err != nil {
		h.metrics.observe(call.Op, "error", time.Since(start), 0)
		return ir.Result{}, fmt.Errorf("%s: %w", call.Op, err)
	}
	h.metrics.observe(call.Op, entry.Outcome, time.Since(start), res.Count)

	slog.Debug("call journaled",
		"seq", entry.Seq,
		"op", call.Op,
		"caller", call.Caller,
		"outcome", entry.Outcome,
		"call_token", token,
	)
	if ledgerErr != nil {
		return ir.Result{}, ledgerErr
	}
	slog.Info("call committed", "op", call.Op, "caller", call.Caller, "id", res.ID, "count", res.Count)
	return res, nil
}

// outcomeOf maps a call error to its journal outcome string.
func outcomeOf(err error) string {
	if err == nil {
		return ir.OutcomeOK
	}
	if code, ok := ledger.CodeOf(err); ok {
		return string(code)
	}
	return "error"
}

// Journal returns every journaled call, ordered by seq.
func (h *Host) Journal(ctx context.Context) ([]ir.JournalEntry, error) {
	return ReadJournal(ctx, h.store)
}
