// Package cli implements the interactive command line on the serial console:
// line editing, echo, dispatch to an Interpreter and output pumping through
// the buffer pool.
package cli

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/ttyio/pkg/pool"
)

const (
	// DefaultBanner is written once when the session starts.
	DefaultBanner = "\r\n\r\nCommand server ready.\r\nType help to view a list of registered commands.\r\n\r\n>"
	// DefaultPrompt is written after each command's output.
	DefaultPrompt = "\r\n[Press ENTER to execute the previous command again]\r\n>"

	separator = "\r\n"
)

// Cursor carries the state of one command invocation across successive
// Process calls for the same line.
type Cursor struct {
	// Step is the number of Process calls already made for the line.
	Step int
	// Value is owned by the interpreter.
	Value interface{}
}

// Interpreter executes command lines.
type Interpreter interface {
	// Process writes the next chunk of output for line into w and reports
	// whether more chunks follow. w holds one pool buffer; output past its
	// capacity is truncated.
	Process(line string, w io.Writer, cur *Cursor) (more bool)
}

// InterpretFunc is func type of Interpreter.
type InterpretFunc func(line string, w io.Writer, cur *Cursor) bool

// Process implements Interpreter.
func (f InterpretFunc) Process(line string, w io.Writer, cur *Cursor) bool {
	return f(line, w, cur)
}

// ByteReader is the input side of the session.
type ByteReader interface {
	ReadByte(ctx context.Context) (byte, error)
}

// State is the session state.
type State int32

// States.
const (
	Collecting State = iota
	Dispatching
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Dispatching {
		return "dispatching"
	}
	return "collecting"
}

// Session is the CLI task.
type Session struct {
	Pool        *pool.Pool
	Input       ByteReader
	Interpreter Interpreter
	// Echo sends every received byte back.
	Echo   bool
	Banner string
	Prompt string

	editor     *Editor
	state      int32
	dispatched uint64
}

// NewSession creates a Session with echo on and the default banner/prompt.
func NewSession(p *pool.Pool, in ByteReader, interp Interpreter, maxLine int) *Session {
	return &Session{
		Pool:        p,
		Input:       in,
		Interpreter: interp,
		Echo:        true,
		Banner:      DefaultBanner,
		Prompt:      DefaultPrompt,
		editor:      NewEditor(maxLine),
	}
}

// Name implements framework.Named.
func (s *Session) Name() string {
	return "cli"
}

// State returns the current state.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Dispatched returns the number of lines dispatched.
func (s *Session) Dispatched() uint64 {
	return atomic.LoadUint64(&s.dispatched)
}

// Run implements framework.Runnable.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Pool.SendString(ctx, s.Banner); err != nil {
		return err
	}
	for {
		b, err := s.Input.ReadByte(ctx)
		if err != nil {
			return err
		}
		if s.Echo {
			if err = s.echo(ctx, b); err != nil {
				return err
			}
		}
		if s.editor.Feed(b) != ActionDispatch {
			continue
		}
		if err = s.dispatch(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) echo(ctx context.Context, c byte) error {
	b, err := s.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	b.WriteByte(c)
	return s.Pool.Submit(b)
}

func (s *Session) dispatch(ctx context.Context) error {
	atomic.StoreInt32(&s.state, int32(Dispatching))
	defer atomic.StoreInt32(&s.state, int32(Collecting))

	if err := s.Pool.SendString(ctx, separator); err != nil {
		return err
	}
	line := s.editor.Pending()
	glog.V(2).Infof("cli: dispatch %q", line)
	var cur Cursor
	for more := true; more; cur.Step++ {
		b, err := s.Pool.Acquire(ctx)
		if err != nil {
			return err
		}
		more = s.Interpreter.Process(line, b, &cur)
		if b.Len() == 0 {
			err = s.Pool.Discard(b)
		} else {
			err = s.Pool.Submit(b)
		}
		if err != nil {
			return err
		}
	}
	s.editor.Commit(line)
	atomic.AddUint64(&s.dispatched, 1)
	return s.Pool.SendString(ctx, s.Prompt)
}
