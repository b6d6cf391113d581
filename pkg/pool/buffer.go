package pool

import (
	"fmt"
	"io"
)

// Handle identifies a buffer slot in the pool.
type Handle uint8

// State is the ownership state of a buffer.
type State int32

// Buffer states.
const (
	// Available buffers wait in the Available channel.
	Available State = iota
	// Owned buffers are held by exactly one producer.
	Owned
	// Ready buffers are queued for transmission.
	Ready
	// InFlight is the single buffer handed to the hardware.
	InFlight
)

var stateNames = [...]string{"available", "owned", "ready", "in-flight"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Buffer is a fixed-capacity slot of the pool arena.
// Only the current owner may touch it.
type Buffer struct {
	handle Handle
	data   []byte
	n      int
}

// Handle returns the slot handle.
func (b *Buffer) Handle() Handle {
	return b.handle
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len returns the number of bytes filled.
func (b *Buffer) Len() int {
	return b.n
}

// Bytes returns the filled portion.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Space returns the unfilled portion, to be followed by Grow.
func (b *Buffer) Space() []byte {
	return b.data[b.n:]
}

// Grow marks n more bytes of Space as filled.
func (b *Buffer) Grow(n int) {
	if n < 0 || b.n+n > len(b.data) {
		panic(fmt.Sprintf("pool: buffer %d grow %d out of range", b.handle, n))
	}
	b.n += n
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.n = 0
}

// Write implements io.Writer. Bytes past capacity are dropped and
// ErrBufferFull is returned.
func (b *Buffer) Write(p []byte) (int, error) {
	n := copy(b.data[b.n:], p)
	b.n += n
	if n < len(p) {
		return n, ErrBufferFull
	}
	return n, nil
}

// WriteString implements io.StringWriter.
func (b *Buffer) WriteString(s string) (int, error) {
	n := copy(b.data[b.n:], s)
	b.n += n
	if n < len(s) {
		return n, ErrBufferFull
	}
	return n, nil
}

// WriteByte implements io.ByteWriter.
func (b *Buffer) WriteByte(c byte) error {
	if b.n >= len(b.data) {
		return ErrBufferFull
	}
	b.data[b.n] = c
	b.n++
	return nil
}

var (
	_ io.Writer       = (*Buffer)(nil)
	_ io.StringWriter = (*Buffer)(nil)
	_ io.ByteWriter   = (*Buffer)(nil)
)
