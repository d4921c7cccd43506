package host

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/roach88/flyter/internal/ir"
)

// request is one submitted call waiting for the Run loop.
type request struct {
	ctx   context.Context
	call  ir.Call
	done  chan response // buffered, size 1
	state atomic.Int32
}

// Request states. A request moves from pending to exactly one of running
// (claimed by Run) or abandoned (given up by Submit).
const (
	requestPending int32 = iota
	requestRunning
	requestAbandoned
)

// claim marks r as running. It reports false if Submit already gave up on r.
func (r *request) claim() bool {
	return r.state.CompareAndSwap(requestPending, requestRunning)
}

// abandon marks r as abandoned. It reports false if Run already claimed r.
func (r *request) abandon() bool {
	return r.state.CompareAndSwap(requestPending, requestAbandoned)
}

type response struct {
	result ir.Result
	err    error
}

// callQueue is a thread-safe FIFO of pending requests.
//
// Submit may be called from any goroutine while Run dequeues. The signal
// channel enables context-aware waiting in the Run loop.
type callQueue struct {
	mu       sync.Mutex
	requests []*request
	closed   bool
	signal   chan struct{} // Signals request availability (buffered, size 1)
}

func newCallQueue() *callQueue {
	return &callQueue{
		requests: make([]*request, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds r to the back of the queue.
// Returns false if the queue is closed.
func (q *callQueue) Enqueue(r *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.requests = append(q.requests, r)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front request without blocking.
func (q *callQueue) TryDequeue() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return nil, false
	}

	r := q.requests[0]
	q.requests[0] = nil // release for GC

	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}

	return r, true
}

// Wait returns a channel that signals when requests may be available.
// The channel is closed when the queue is closed.
func (q *callQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending requests.
func (q *callQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Closed reports whether Close has been called.
func (q *callQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further Enqueue calls and wakes waiters.
func (q *callQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
