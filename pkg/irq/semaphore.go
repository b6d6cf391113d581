// Package irq provides the primitives interrupt context may use to hand work
// to tasks. Everything callable from interrupt context never blocks.
package irq

import (
	"context"
	"runtime"
)

// Semaphore is a binary semaphore.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore creates a Semaphore in the taken state.
func NewSemaphore() *Semaphore {
	return &Semaphore{ch: make(chan struct{}, 1)}
}

// GiveFromISR gives the semaphore without blocking. It returns true if the
// semaphore was taken before, i.e. a waiting task may now be woken.
func (s *Semaphore) GiveFromISR() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Take blocks until the semaphore is given or ctx is done.
func (s *Semaphore) Take(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryTake takes the semaphore if it is given.
func (s *Semaphore) TryTake() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Drain resets the semaphore to the taken state.
func (s *Semaphore) Drain() {
	s.TryTake()
}

// YieldFromISR lets a task woken by interrupt context run before the
// interrupted code resumes.
func YieldFromISR(woken bool) {
	if woken {
		runtime.Gosched()
	}
}
