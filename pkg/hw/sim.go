package hw

import (
	"bytes"
	"sync"
)

// SimPort is an in-memory UART.
//
// With AutoComplete set, each transmission completes asynchronously right
// away; otherwise Complete must be called to finish it, which makes a stalled
// transmitter easy to reproduce.
type SimPort struct {
	// Tap receives a copy of every successfully transmitted chunk.
	Tap func([]byte)

	lock      sync.Mutex
	rxLock    sync.Mutex
	handlers  Handlers
	auto      bool
	closed    bool
	busy      bool
	pending   []byte
	out       bytes.Buffer
	transmits int
	failures  int
	failErr   error
	armed     bool
	rxPending []byte
}

// NewSimPort creates a SimPort.
func NewSimPort(autoComplete bool) *SimPort {
	return &SimPort{auto: autoComplete}
}

// SetHandlers implements UART.
func (p *SimPort) SetHandlers(h Handlers) {
	p.lock.Lock()
	p.handlers = h
	p.lock.Unlock()
}

// SetAutoComplete switches automatic completion. Enabling it completes a
// pending transmission.
func (p *SimPort) SetAutoComplete(auto bool) {
	p.lock.Lock()
	p.auto = auto
	busy := p.busy
	p.lock.Unlock()
	if auto && busy {
		go p.Complete()
	}
}

// FailNext makes the next n transmissions complete with err.
func (p *SimPort) FailNext(n int, err error) {
	p.lock.Lock()
	p.failures, p.failErr = n, err
	p.lock.Unlock()
}

// StartTransmit implements UART.
func (p *SimPort) StartTransmit(data []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.busy {
		return ErrBusy
	}
	p.busy = true
	p.pending = append(p.pending[:0], data...)
	if p.auto {
		go p.Complete()
	}
	return nil
}

// Complete finishes the pending transmission, invoking TxComplete.
// It returns false if nothing is being transmitted.
func (p *SimPort) Complete() bool {
	p.lock.Lock()
	if !p.busy {
		p.lock.Unlock()
		return false
	}
	p.busy = false
	var err error
	if p.failures > 0 {
		p.failures--
		err = p.failErr
	} else {
		p.transmits++
		p.out.Write(p.pending)
	}
	var chunk []byte
	if tap := p.Tap; tap != nil && err == nil {
		chunk = append([]byte(nil), p.pending...)
		defer tap(chunk)
	}
	h := p.handlers
	p.lock.Unlock()
	h.txComplete(err)
	return true
}

// Busy tells whether a transmission is pending.
func (p *SimPort) Busy() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.busy
}

// Transmits returns the number of successful transmissions.
func (p *SimPort) Transmits() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.transmits
}

// Output returns everything transmitted so far.
func (p *SimPort) Output() string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.out.String()
}

// TakeOutput returns and clears the transmitted data.
func (p *SimPort) TakeOutput() string {
	p.lock.Lock()
	defer p.lock.Unlock()
	s := p.out.String()
	p.out.Reset()
	return s
}

// Inject simulates bytes arriving on the wire. Bytes are delivered one per
// armed reception, in order.
func (p *SimPort) Inject(data ...byte) {
	p.lock.Lock()
	p.rxPending = append(p.rxPending, data...)
	p.lock.Unlock()
	p.deliver()
}

// StartReceive implements UART.
func (p *SimPort) StartReceive() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return ErrClosed
	}
	p.armed = true
	pending := len(p.rxPending) > 0
	p.lock.Unlock()
	if pending {
		go p.deliver()
	}
	return nil
}

// Close implements UART.
func (p *SimPort) Close() error {
	p.lock.Lock()
	p.closed = true
	p.lock.Unlock()
	return nil
}

func (p *SimPort) deliver() {
	p.rxLock.Lock()
	defer p.rxLock.Unlock()
	for {
		p.lock.Lock()
		if !p.armed || p.closed || len(p.rxPending) == 0 {
			p.lock.Unlock()
			return
		}
		b := p.rxPending[0]
		p.rxPending = p.rxPending[1:]
		p.armed = false
		h := p.handlers
		p.lock.Unlock()
		h.rxComplete(b)
	}
}
