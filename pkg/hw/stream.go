package hw

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// StreamPort emulates a UART on top of an io.ReadWriter.
// A writer goroutine plays the DMA transmitter and a reader goroutine
// delivers one byte per armed reception.
type StreamPort struct {
	ReadWriter io.ReadWriter
	// IdleEOF reports whether an empty read with io.EOF only means the read
	// timed out, as tarm/serial does with a read timeout.
	IdleEOF bool

	handlers atomic.Value
	busy     int32
	txCh     chan []byte
	armCh    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStreamPort creates a StreamPort and starts its goroutines.
func NewStreamPort(rw io.ReadWriter) *StreamPort {
	return newStreamPort(rw, false)
}

// NewTimeoutStreamPort is NewStreamPort for a ReadWriter whose reads return
// (0, io.EOF) on timeout. Those reads are retried.
func NewTimeoutStreamPort(rw io.ReadWriter) *StreamPort {
	return newStreamPort(rw, true)
}

func newStreamPort(rw io.ReadWriter, idleEOF bool) *StreamPort {
	p := &StreamPort{
		ReadWriter: rw,
		IdleEOF:    idleEOF,
		txCh:       make(chan []byte, 1),
		armCh:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	p.handlers.Store(Handlers{})
	p.wg.Add(2)
	go p.txLoop()
	go p.rxLoop()
	return p
}

// SetHandlers implements UART.
func (p *StreamPort) SetHandlers(h Handlers) {
	p.handlers.Store(h)
}

func (p *StreamPort) isr() Handlers {
	return p.handlers.Load().(Handlers)
}

// StartTransmit implements UART.
func (p *StreamPort) StartTransmit(data []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	if !atomic.CompareAndSwapInt32(&p.busy, 0, 1) {
		return ErrBusy
	}
	p.txCh <- data
	return nil
}

// StartReceive implements UART.
func (p *StreamPort) StartReceive() error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.armCh <- struct{}{}:
	default:
	}
	return nil
}

// Close implements UART. The underlying ReadWriter is closed if it is an
// io.Closer.
func (p *StreamPort) Close() (err error) {
	p.closeOnce.Do(func() {
		close(p.done)
		if closer, ok := p.ReadWriter.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return
}

// Wait waits for the port goroutines to exit after Close.
func (p *StreamPort) Wait() {
	p.wg.Wait()
}

func (p *StreamPort) txLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case data := <-p.txCh:
			_, err := p.ReadWriter.Write(data)
			if err != nil {
				err = errors.Wrap(err, "uart write")
			}
			atomic.StoreInt32(&p.busy, 0)
			p.isr().txComplete(err)
		}
	}
}

func (p *StreamPort) rxLoop() {
	defer p.wg.Done()
	buf := make([]byte, 1)
	for {
		select {
		case <-p.done:
			return
		case <-p.armCh:
		}
		for {
			n, err := p.ReadWriter.Read(buf)
			if n == 0 && err == io.EOF && p.IdleEOF {
				select {
				case <-p.done:
					return
				default:
				}
				continue
			}
			if err != nil {
				select {
				case <-p.done:
				default:
					glog.V(2).Infof("uart receiver stopped: %v", err)
					p.isr().rxError(errors.Wrap(err, "uart read"))
				}
				return
			}
			if n > 0 {
				p.isr().rxComplete(buf[0])
				break
			}
		}
	}
}
