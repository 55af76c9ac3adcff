package engine

import (
	"context"
	"io"
	"sync"

	"github.com/roach88/stackline/internal/graphsync"
)

// updateQueue is an unbounded FIFO of updates for one subscriber.
//
// The edit path enqueues and never blocks; the subscriber dequeues at its
// own pace. A buffered signal channel of size 1 lets the consumer wait with
// a context.
type updateQueue struct {
	mu      sync.Mutex
	updates []Update
	closed  bool
	signal  chan struct{}
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{
		updates: make([]Update, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends u. It returns false once the queue is closed.
func (q *updateQueue) Enqueue(u Update) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.updates = append(q.updates, u)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front update without blocking.
func (q *updateQueue) TryDequeue() (Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.updates) == 0 {
		return Update{}, false
	}
	u := q.updates[0]
	// Release the snapshot pointer held by the backing array.
	q.updates[0] = Update{}
	if len(q.updates) == 1 {
		q.updates = q.updates[:0]
	} else {
		q.updates = q.updates[1:]
	}
	return u, true
}

// Wait returns the signal channel. It is closed with the queue.
func (q *updateQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.updates)
}

// Close stops further enqueues. Queued updates can still be drained.
func (q *updateQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Subscription delivers every Update published after it was created, in
// version order. It implements graphsync.BatchSource.
type Subscription struct {
	q      *updateQueue
	cancel func()
}

// Next blocks until the next update is available. It returns io.EOF once
// the subscription is closed and drained.
func (s *Subscription) Next(ctx context.Context) (Update, error) {
	for {
		if u, ok := s.q.TryDequeue(); ok {
			return u, nil
		}
		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case _, open := <-s.q.Wait():
			if !open && s.q.Len() == 0 {
				return Update{}, io.EOF
			}
		}
	}
}

// NextBatch returns the graph batch of the next update that changed the
// graph, skipping updates that did not.
func (s *Subscription) NextBatch(ctx context.Context) (graphsync.Batch, error) {
	for {
		u, err := s.Next(ctx)
		if err != nil {
			return graphsync.Batch{}, err
		}
		if u.Batch != nil {
			return *u.Batch, nil
		}
	}
}

// Pending returns the number of queued updates.
func (s *Subscription) Pending() int {
	return s.q.Len()
}

// Close unsubscribes. Updates already queued can still be read.
func (s *Subscription) Close() {
	s.cancel()
	s.q.Close()
}
