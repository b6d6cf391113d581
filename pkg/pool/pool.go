// Package pool implements the fixed arena of transmit buffers shared by all
// producers and the transmit gatekeeper.
//
// Every buffer circulates Available -> Owned -> Ready -> InFlight -> Available.
// Ownership moves only by passing handles through bounded channels, so at any
// time each buffer has exactly one holder.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

const (
	// DefaultCount is the number of buffers in a default pool.
	DefaultCount = 8
	// DefaultSize is the capacity of each buffer in a default pool.
	DefaultSize = 2048
	// MaxCount is the largest pool a Handle can address.
	MaxCount = 256
)

// Entry is a Ready queue item.
type Entry struct {
	Handle Handle
	Len    int
}

// FaultHandler is called on a broken ownership invariant.
type FaultHandler func(error)

// Census counts buffers per state.
type Census struct {
	Available int `json:"available"`
	Owned     int `json:"owned"`
	Ready     int `json:"ready"`
	InFlight  int `json:"in-flight"`
}

// Total returns the sum of all states.
func (c Census) Total() int {
	return c.Available + c.Owned + c.Ready + c.InFlight
}

// String implements fmt.Stringer.
func (c Census) String() string {
	return fmt.Sprintf("available=%d owned=%d ready=%d in-flight=%d",
		c.Available, c.Owned, c.Ready, c.InFlight)
}

// Pool is the buffer pool.
type Pool struct {
	// OnFault is invoked when an invariant is broken.
	// The default handler logs and panics.
	OnFault FaultHandler

	size   int
	arena  []byte
	bufs   []Buffer
	states []int32

	available chan Handle
	ready     chan Entry
	inflight  chan Handle

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a pool of count buffers of size bytes each.
// All buffers start Available.
func New(count, size int) (*Pool, error) {
	if count <= 0 || count > MaxCount {
		return nil, fmt.Errorf("invalid buffer count %d", count)
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	p := &Pool{
		size:      size,
		arena:     make([]byte, count*size),
		bufs:      make([]Buffer, count),
		states:    make([]int32, count),
		available: make(chan Handle, count),
		ready:     make(chan Entry, count),
		inflight:  make(chan Handle, 1),
		done:      make(chan struct{}),
	}
	for n := range p.bufs {
		off := n * size
		p.bufs[n] = Buffer{
			handle: Handle(n),
			data:   p.arena[off : off+size : off+size],
		}
		p.available <- Handle(n)
	}
	return p, nil
}

// MustNew creates a pool and panics on error.
func MustNew(count, size int) *Pool {
	p, err := New(count, size)
	if err != nil {
		panic(err)
	}
	return p
}

// Count returns the number of buffers.
func (p *Pool) Count() int {
	return len(p.bufs)
}

// Size returns the capacity of each buffer.
func (p *Pool) Size() int {
	return p.size
}

// State returns the current state of a buffer.
func (p *Pool) State(h Handle) State {
	return State(atomic.LoadInt32(&p.states[h]))
}

// Census counts the buffers in each state.
func (p *Pool) Census() (c Census) {
	for n := range p.states {
		switch State(atomic.LoadInt32(&p.states[n])) {
		case Available:
			c.Available++
		case Owned:
			c.Owned++
		case Ready:
			c.Ready++
		case InFlight:
			c.InFlight++
		}
	}
	return
}

// Close tears down the pool. Blocked callers return ErrClosed.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}

// Acquire takes an Available buffer, blocking until one is returned.
// It fails only when ctx is done or the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (*Buffer, error) {
	select {
	case h := <-p.available:
		return p.take(h)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}

// TryAcquire takes an Available buffer without blocking.
func (p *Pool) TryAcquire() (*Buffer, bool) {
	select {
	case h := <-p.available:
		b, err := p.take(h)
		return b, err == nil
	default:
		return nil, false
	}
}

func (p *Pool) take(h Handle) (*Buffer, error) {
	if err := p.transition(h, "acquire", Available, Owned); err != nil {
		return nil, err
	}
	b := &p.bufs[h]
	b.Reset()
	return b, nil
}

// Submit queues an owned buffer for transmission with its current length.
// The caller gives up the buffer.
func (p *Pool) Submit(b *Buffer) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	if err := p.transition(b.handle, "submit", Owned, Ready); err != nil {
		return err
	}
	select {
	case p.ready <- Entry{Handle: b.handle, Len: b.n}:
		return nil
	default:
		return p.faultf(b.handle, "submit", "ready queue full")
	}
}

// Discard returns an owned buffer straight to Available.
func (p *Pool) Discard(b *Buffer) error {
	if err := p.transition(b.handle, "discard", Owned, Available); err != nil {
		return err
	}
	b.Reset()
	return p.putAvailable(b.handle, "discard")
}

// Dispatch takes the oldest Ready buffer and marks it in flight.
// Only the transmit gatekeeper calls it.
func (p *Pool) Dispatch(ctx context.Context) (*Buffer, error) {
	var e Entry
	select {
	case e = <-p.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
	if err := p.transition(e.Handle, "dispatch", Ready, InFlight); err != nil {
		return nil, err
	}
	select {
	case p.inflight <- e.Handle:
	default:
		return nil, p.faultf(e.Handle, "dispatch", "another buffer is in flight")
	}
	b := &p.bufs[e.Handle]
	b.n = e.Len
	return b, nil
}

// Release returns the in-flight buffer to Available once the hardware has
// drained it.
func (p *Pool) Release(b *Buffer) error {
	select {
	case h := <-p.inflight:
		if h != b.handle {
			return p.faultf(b.handle, "release", fmt.Sprintf("buffer %d is in flight", h))
		}
	default:
		return p.faultf(b.handle, "release", "no buffer in flight")
	}
	if err := p.transition(b.handle, "release", InFlight, Available); err != nil {
		return err
	}
	b.Reset()
	return p.putAvailable(b.handle, "release")
}

// Send copies data into as many buffers as needed and submits them in order.
func (p *Pool) Send(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		b, err := p.Acquire(ctx)
		if err != nil {
			return err
		}
		n, _ := b.Write(data)
		if err = p.Submit(b); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// SendString is Send for strings.
func (p *Pool) SendString(ctx context.Context, s string) error {
	for len(s) > 0 {
		b, err := p.Acquire(ctx)
		if err != nil {
			return err
		}
		n, _ := b.WriteString(s)
		if err = p.Submit(b); err != nil {
			return err
		}
		s = s[n:]
	}
	return nil
}

func (p *Pool) putAvailable(h Handle, op string) error {
	select {
	case p.available <- h:
		return nil
	default:
		return p.faultf(h, op, "available queue full")
	}
}

func (p *Pool) transition(h Handle, op string, from, to State) error {
	if int(h) >= len(p.states) {
		return p.fault(&FaultError{Handle: h, Op: op, Reason: "unknown handle"})
	}
	if !atomic.CompareAndSwapInt32(&p.states[h], int32(from), int32(to)) {
		return p.fault(&StateError{Handle: h, Op: op, Want: from, Got: p.State(h)})
	}
	return nil
}

func (p *Pool) faultf(h Handle, op, reason string) error {
	return p.fault(&FaultError{Handle: h, Op: op, Reason: reason})
}

func (p *Pool) fault(err error) error {
	if p.OnFault != nil {
		p.OnFault(err)
		return err
	}
	glog.Errorf("buffer pool fault: %v", err)
	panic(err)
}
