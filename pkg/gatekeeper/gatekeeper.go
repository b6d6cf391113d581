// Package gatekeeper implements the single consumer of the buffer pool.
//
// The Gatekeeper is the only caller of UART.StartTransmit. It takes Ready
// buffers in FIFO order, hands each to the hardware, waits for the
// completion signal and returns the buffer to the pool.
package gatekeeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ttyio/pkg/hw"
	"github.com/robotalks/ttyio/pkg/irq"
	"github.com/robotalks/ttyio/pkg/pool"
)

// State is the gatekeeper state.
type State int32

// States.
const (
	Idle State = iota
	Transmitting
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Transmitting:
		return "transmitting"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Policy decides what happens when a buffer cannot be transmitted.
type Policy int

// Policies.
const (
	// PolicyDrop releases the buffer, counts it and continues.
	PolicyDrop Policy = iota
	// PolicyHalt stops the gatekeeper with a TransmitError.
	PolicyHalt
)

// String implements fmt.Stringer.
func (p Policy) String() string {
	if p == PolicyHalt {
		return "halt"
	}
	return "drop"
}

// ParsePolicy parses "drop" or "halt".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "drop":
		return PolicyDrop, nil
	case "halt":
		return PolicyHalt, nil
	}
	return PolicyDrop, fmt.Errorf("unknown transmit failure policy %q", s)
}

// TransmitError reports a buffer given up after all attempts.
type TransmitError struct {
	Handle   pool.Handle
	Attempts int
	Err      error
}

// Error implements error.
func (e *TransmitError) Error() string {
	return fmt.Sprintf("transmit buffer %d failed after %d attempts: %v", e.Handle, e.Attempts, e.Err)
}

// Stats are the gatekeeper counters.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Bytes   uint64 `json:"bytes"`
	Retries uint64 `json:"retries"`
	Errors  uint64 `json:"errors"`
	Dropped uint64 `json:"dropped"`
}

// Gatekeeper owns the transmitter.
type Gatekeeper struct {
	// Retries is the number of extra attempts after a failed transmission.
	Retries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	// Policy applies once all attempts failed.
	Policy Policy

	pool *pool.Pool
	port hw.UART
	done *irq.Semaphore

	state  int32
	status atomic.Value

	sent    uint64
	bytes   uint64
	retries uint64
	errors  uint64
	dropped uint64
}

type txStatus struct {
	err error
}

// New creates a Gatekeeper. TxComplete must be installed as the port's
// completion handler.
func New(p *pool.Pool, port hw.UART) *Gatekeeper {
	g := &Gatekeeper{
		Retries: 3,
		pool:    p,
		port:    port,
		done:    irq.NewSemaphore(),
	}
	g.status.Store(txStatus{})
	return g
}

// Name implements framework.Named.
func (g *Gatekeeper) Name() string {
	return "gatekeeper"
}

// State returns the current state.
func (g *Gatekeeper) State() State {
	return State(atomic.LoadInt32(&g.state))
}

// Stats returns a snapshot of the counters.
func (g *Gatekeeper) Stats() Stats {
	return Stats{
		Sent:    atomic.LoadUint64(&g.sent),
		Bytes:   atomic.LoadUint64(&g.bytes),
		Retries: atomic.LoadUint64(&g.retries),
		Errors:  atomic.LoadUint64(&g.errors),
		Dropped: atomic.LoadUint64(&g.dropped),
	}
}

// TxComplete is the transmission complete interrupt handler.
// It only records the status and signals the gatekeeper task.
func (g *Gatekeeper) TxComplete(err error) {
	g.status.Store(txStatus{err: err})
	irq.YieldFromISR(g.done.GiveFromISR())
}

// Run implements framework.Runnable.
func (g *Gatekeeper) Run(ctx context.Context) error {
	g.done.Drain()
	for {
		b, err := g.pool.Dispatch(ctx)
		if err != nil {
			return err
		}
		err = g.transmit(ctx, b)
		if err == ctx.Err() && err != nil {
			// the hardware may still own the buffer
			return err
		}
		if relErr := g.pool.Release(b); relErr != nil {
			return relErr
		}
		if err != nil {
			atomic.AddUint64(&g.dropped, 1)
			if g.Policy == PolicyHalt {
				glog.Errorf("gatekeeper halted: %v", err)
				return err
			}
			glog.Warningf("dropped: %v", err)
		}
	}
}

func (g *Gatekeeper) transmit(ctx context.Context, b *pool.Buffer) error {
	var lastErr error
	attempts := g.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	for n := 0; n < attempts; n++ {
		if n > 0 {
			atomic.AddUint64(&g.retries, 1)
			if err := g.pause(ctx); err != nil {
				return err
			}
		}
		atomic.StoreInt32(&g.state, int32(Transmitting))
		if err := g.port.StartTransmit(b.Bytes()); err != nil {
			atomic.StoreInt32(&g.state, int32(Idle))
			atomic.AddUint64(&g.errors, 1)
			lastErr = err
			continue
		}
		if err := g.done.Take(ctx); err != nil {
			return err
		}
		atomic.StoreInt32(&g.state, int32(Idle))
		if st := g.status.Load().(txStatus); st.err != nil {
			atomic.AddUint64(&g.errors, 1)
			lastErr = st.err
			continue
		}
		atomic.AddUint64(&g.sent, 1)
		atomic.AddUint64(&g.bytes, uint64(b.Len()))
		return nil
	}
	return &TransmitError{Handle: b.Handle(), Attempts: attempts, Err: lastErr}
}

func (g *Gatekeeper) pause(ctx context.Context) error {
	if g.RetryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
