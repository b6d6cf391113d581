// Package rx implements the receive path from the UART to the CLI task.
package rx

import (
	"context"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/ttyio/pkg/hw"
	"github.com/robotalks/ttyio/pkg/irq"
)

// DefaultDepth is the default Receive Channel depth.
const DefaultDepth = 8

// Stats are the receive counters.
type Stats struct {
	Received    uint64 `json:"received"`
	Overruns    uint64 `json:"overruns"`
	Injected    uint64 `json:"injected"`
	RearmErrors uint64 `json:"rearm-errors"`
}

// Receiver moves bytes from the receive interrupt to the reading task.
type Receiver struct {
	port  hw.UART
	queue *irq.ByteQueue

	received    uint64
	injected    uint64
	rearmErrors uint64
}

// New creates a Receiver. RxComplete must be installed as the port's
// receive handler.
func New(port hw.UART, depth int) *Receiver {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Receiver{port: port, queue: irq.NewByteQueue(depth)}
}

// Start arms the first reception.
func (r *Receiver) Start() error {
	return r.port.StartReceive()
}

// RxComplete is the receive interrupt handler: it posts the byte without
// blocking and re-arms the receiver.
func (r *Receiver) RxComplete(b byte) {
	atomic.AddUint64(&r.received, 1)
	woken := r.queue.Waiting()
	if !r.queue.SendFromISR(b) {
		woken = false
	}
	if err := r.port.StartReceive(); err != nil {
		atomic.AddUint64(&r.rearmErrors, 1)
		glog.V(2).Infof("re-arm receiver: %v", err)
	}
	irq.YieldFromISR(woken)
}

// ReadByte blocks until a byte is received.
func (r *Receiver) ReadByte(ctx context.Context) (byte, error) {
	return r.queue.Receive(ctx)
}

// Inject feeds bytes from task context as if they were received.
// It blocks while the Receive Channel is full.
func (r *Receiver) Inject(ctx context.Context, data []byte) error {
	for _, b := range data {
		if err := r.queue.Send(ctx, b); err != nil {
			return err
		}
		atomic.AddUint64(&r.injected, 1)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Received:    atomic.LoadUint64(&r.received),
		Overruns:    r.queue.Dropped(),
		Injected:    atomic.LoadUint64(&r.injected),
		RearmErrors: atomic.LoadUint64(&r.rearmErrors),
	}
}
