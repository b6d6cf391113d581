package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ttyio/pkg/pool"
)

type chanReader chan byte

func (r chanReader) ReadByte(ctx context.Context) (byte, error) {
	select {
	case b, ok := <-r:
		if !ok {
			return 0, io.EOF
		}
		return b, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type sessionTestCtx struct {
	t       *testing.T
	pool    *pool.Pool
	input   chanReader
	session *Session
	lines   []string

	outLock sync.Mutex
	out     strings.Builder
	chunks  int

	cancel func()
	errCh  chan error
}

func newSessionTestCtx(t *testing.T) *sessionTestCtx {
	c := &sessionTestCtx{
		t:     t,
		pool:  pool.MustNew(pool.DefaultCount, 64),
		input: make(chanReader),
		errCh: make(chan error, 1),
	}
	c.session = NewSession(c.pool, c.input, InterpretFunc(c.interpret), DefaultMaxLine)
	c.session.Banner = "\r\n>"
	return c
}

func (c *sessionTestCtx) interpret(line string, w io.Writer, cur *Cursor) bool {
	if cur.Step == 0 {
		c.lines = append(c.lines, line)
	}
	if line == "three" {
		fmt.Fprintf(w, "<%d>", cur.Step)
		return cur.Step < 2
	}
	if line == "" || line == "quiet" {
		return false
	}
	fmt.Fprintf(w, "ran %s", line)
	return false
}

func (c *sessionTestCtx) start() *sessionTestCtx {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.drain(ctx)
	go func() { c.errCh <- c.session.Run(ctx) }()
	return c
}

func (c *sessionTestCtx) drain(ctx context.Context) {
	for {
		b, err := c.pool.Dispatch(ctx)
		if err != nil {
			return
		}
		c.outLock.Lock()
		c.out.Write(b.Bytes())
		c.chunks++
		c.outLock.Unlock()
		c.pool.Release(b)
	}
}

func (c *sessionTestCtx) stop() {
	c.cancel()
	require.Equal(c.t, context.Canceled, <-c.errCh)
}

func (c *sessionTestCtx) typeString(s string) {
	for n := 0; n < len(s); n++ {
		c.input <- s[n]
	}
}

func (c *sessionTestCtx) expectOutput(want string) {
	require.Eventually(c.t, func() bool {
		c.outLock.Lock()
		defer c.outLock.Unlock()
		return c.out.String() == want
	}, time.Second, time.Millisecond, "want %q", want)
	c.outLock.Lock()
	c.out.Reset()
	c.outLock.Unlock()
}

func TestSessionDispatch(t *testing.T) {
	c := newSessionTestCtx(t).start()
	defer c.stop()
	c.expectOutput("\r\n>")
	c.typeString("date\r")
	c.expectOutput("date\r" + separator + "ran date" + DefaultPrompt)
	require.Equal(t, []string{"date"}, c.lines)
	require.Equal(t, Collecting, c.session.State())
	require.Equal(t, uint64(1), c.session.Dispatched())
}

func TestSessionRepeatLast(t *testing.T) {
	c := newSessionTestCtx(t).start()
	defer c.stop()
	c.expectOutput("\r\n>")
	c.typeString("time\r")
	c.expectOutput("time\r" + separator + "ran time" + DefaultPrompt)
	c.typeString("\r")
	c.expectOutput("\r" + separator + "ran time" + DefaultPrompt)
	require.Equal(t, []string{"time", "time"}, c.lines)
}

func TestSessionFirstEmptyLine(t *testing.T) {
	c := newSessionTestCtx(t).start()
	defer c.stop()
	c.expectOutput("\r\n>")
	c.typeString("\n")
	c.expectOutput("\n" + separator + DefaultPrompt)
	require.Equal(t, []string{""}, c.lines)
}

func TestSessionMultiChunk(t *testing.T) {
	c := newSessionTestCtx(t).start()
	defer c.stop()
	c.expectOutput("\r\n>")
	c.typeString("three\r\n")
	c.expectOutput("three\r\n" + separator + "<0><1><2>" + DefaultPrompt)
	require.Equal(t, []string{"three"}, c.lines)
}

func TestSessionEmptyChunkNotTransmitted(t *testing.T) {
	c := newSessionTestCtx(t).start()
	defer c.stop()
	c.expectOutput("\r\n>")
	c.outLock.Lock()
	c.chunks = 0
	c.outLock.Unlock()
	c.typeString("quiet\r")
	c.expectOutput("quiet\r" + separator + DefaultPrompt)
	c.outLock.Lock()
	defer c.outLock.Unlock()
	// 6 echoed bytes, separator, prompt
	require.Equal(t, 8, c.chunks)
	require.Equal(t, pool.DefaultCount, c.pool.Census().Total())
}

func TestSessionEditing(t *testing.T) {
	c := newSessionTestCtx(t).start()
	defer c.stop()
	c.expectOutput("\r\n>")
	c.typeString("dx\x7fate\r")
	c.expectOutput("dx\x7fate\r" + separator + "ran date" + DefaultPrompt)
}

func TestSessionNoEcho(t *testing.T) {
	c := newSessionTestCtx(t)
	c.session.Echo = false
	c.start()
	defer c.stop()
	c.expectOutput("\r\n>")
	c.typeString("date\r")
	c.expectOutput(separator + "ran date" + DefaultPrompt)
}

func TestSessionInputClosed(t *testing.T) {
	c := newSessionTestCtx(t).start()
	defer c.cancel()
	c.expectOutput("\r\n>")
	close(c.input)
	require.Equal(t, io.EOF, <-c.errCh)
}
