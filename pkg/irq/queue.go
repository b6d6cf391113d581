package irq

import (
	"context"
	"sync/atomic"
)

// ByteQueue is a bounded queue of bytes posted from interrupt context and
// consumed by a single task.
type ByteQueue struct {
	ch      chan byte
	dropped uint64
	waiting int32
}

// NewByteQueue creates a ByteQueue holding at most depth bytes.
func NewByteQueue(depth int) *ByteQueue {
	if depth <= 0 {
		depth = 1
	}
	return &ByteQueue{ch: make(chan byte, depth)}
}

// SendFromISR posts b without blocking. A byte that does not fit is dropped
// and counted.
func (q *ByteQueue) SendFromISR(b byte) bool {
	select {
	case q.ch <- b:
		return true
	default:
		atomic.AddUint64(&q.dropped, 1)
		return false
	}
}

// Send posts b from task context, blocking while the queue is full.
func (q *ByteQueue) Send(ctx context.Context, b byte) error {
	select {
	case q.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a byte is available.
func (q *ByteQueue) Receive(ctx context.Context) (byte, error) {
	select {
	case b := <-q.ch:
		return b, nil
	default:
	}
	atomic.AddInt32(&q.waiting, 1)
	defer atomic.AddInt32(&q.waiting, -1)
	select {
	case b := <-q.ch:
		return b, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Waiting tells whether a task is blocked in Receive.
func (q *ByteQueue) Waiting() bool {
	return atomic.LoadInt32(&q.waiting) > 0
}

// Len returns the number of queued bytes.
func (q *ByteQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue depth.
func (q *ByteQueue) Cap() int {
	return cap(q.ch)
}

// Dropped returns the number of bytes dropped by SendFromISR.
func (q *ByteQueue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}
