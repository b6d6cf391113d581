package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the pool has been torn down.
	ErrClosed = errors.New("pool closed")
	// ErrBufferFull is returned by Buffer.Write when data is truncated at
	// buffer capacity.
	ErrBufferFull = errors.New("buffer full")
)

// StateError reports an ownership transition that is not allowed.
// It always indicates a logic error in the caller.
type StateError struct {
	Handle Handle
	Op     string
	Want   State
	Got    State
}

// Error implements error.
func (e *StateError) Error() string {
	return fmt.Sprintf("%s: buffer %d is %s, expect %s", e.Op, e.Handle, e.Got, e.Want)
}

// FaultError reports a broken pool invariant other than a per-buffer state
// mismatch, e.g. the in-flight marker being occupied twice.
type FaultError struct {
	Handle Handle
	Op     string
	Reason string
}

// Error implements error.
func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: buffer %d: %s", e.Op, e.Handle, e.Reason)
}
