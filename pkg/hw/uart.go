// Package hw abstracts the serial transmitter/receiver pair.
//
// A UART accepts one asynchronous transmission at a time and one armed
// single-byte reception at a time. Completion and reception are reported
// through Handlers, which run in interrupt context: they must not block.
package hw

import (
	"errors"
)

var (
	// ErrBusy indicates a transmission is already in progress.
	ErrBusy = errors.New("transmitter busy")
	// ErrClosed indicates the port has been closed.
	ErrClosed = errors.New("port closed")
)

// Handlers are the interrupt service routines of a port.
type Handlers struct {
	// TxComplete is called once per accepted StartTransmit.
	// err is non-nil if the hardware failed to send the data.
	TxComplete func(err error)
	// RxComplete is called with one received byte after StartReceive.
	// The receiver stays disarmed until StartReceive is called again.
	RxComplete func(b byte)
	// RxError is called when the receiver stops on an error.
	RxError func(err error)
}

// UART is the serial channel hardware.
type UART interface {
	// SetHandlers installs the interrupt handlers. It must be called
	// before the first StartTransmit or StartReceive.
	SetHandlers(Handlers)
	// StartTransmit starts sending p. The caller must not modify p until
	// TxComplete is called.
	StartTransmit(p []byte) error
	// StartReceive arms reception of a single byte.
	StartReceive() error
	// Close stops the port.
	Close() error
}

func (h Handlers) txComplete(err error) {
	if fn := h.TxComplete; fn != nil {
		fn(err)
	}
}

func (h Handlers) rxComplete(b byte) {
	if fn := h.RxComplete; fn != nil {
		fn(b)
	}
}

func (h Handlers) rxError(err error) {
	if fn := h.RxError; fn != nil {
		fn(err)
	}
}
