package audiocore

import (
	"context"
	"sync"
	"sync/atomic"
)

// FrameQueue is the bounded hand-off between a source and its consumer.
// Offer never blocks; Send blocks and is meant for offline replay where
// dropping input would be wrong.
type FrameQueue struct {
	ch      chan Frame
	dropped atomic.Uint64
	mu      sync.RWMutex
	closed  bool
}

// NewFrameQueue creates a queue holding up to size frames.
func NewFrameQueue(size int) *FrameQueue {
	if size < 1 {
		size = 1
	}
	return &FrameQueue{ch: make(chan Frame, size)}
}

// Offer enqueues f if there is room. It returns false and counts a drop
// when the queue is full or closed.
func (q *FrameQueue) Offer(f Frame) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.ch <- f:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Send enqueues f, waiting for room until ctx is done.
func (q *FrameQueue) Send(ctx context.Context, f Frame) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrSourceNotRunning
	}
	select {
	case q.ch <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Frames returns the receive side of the queue.
func (q *FrameQueue) Frames() <-chan Frame {
	return q.ch
}

// Dropped returns the number of frames discarded by Offer.
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	return len(q.ch)
}

// Close closes the receive channel. Safe to call more than once.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
