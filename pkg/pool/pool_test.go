package pool

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, count, size int) (*Pool, *[]error) {
	p, err := New(count, size)
	require.NoError(t, err)
	var faults []error
	p.OnFault = func(err error) { faults = append(faults, err) }
	return p, &faults
}

func TestNewInvalid(t *testing.T) {
	_, err := New(0, 16)
	require.Error(t, err)
	_, err = New(MaxCount+1, 16)
	require.Error(t, err)
	_, err = New(4, 0)
	require.Error(t, err)
}

func TestAllAvailableAfterInit(t *testing.T) {
	p, _ := newTestPool(t, DefaultCount, DefaultSize)
	c := p.Census()
	require.Equal(t, Census{Available: DefaultCount}, c)
	require.Equal(t, DefaultCount, c.Total())
}

func TestBufferLifecycle(t *testing.T) {
	p, faults := newTestPool(t, 2, 8)
	ctx := context.Background()

	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, Owned, p.State(b.Handle()))
	_, err = b.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, p.Submit(b))
	require.Equal(t, Census{Available: 1, Ready: 1}, p.Census())

	d, err := p.Dispatch(ctx)
	require.NoError(t, err)
	require.Equal(t, b.Handle(), d.Handle())
	require.Equal(t, "hello", string(d.Bytes()))
	require.Equal(t, Census{Available: 1, InFlight: 1}, p.Census())

	require.NoError(t, p.Release(d))
	require.Equal(t, Census{Available: 2}, p.Census())
	require.Empty(t, *faults)
}

func TestWriteTruncates(t *testing.T) {
	p, _ := newTestPool(t, 1, 4)
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)
	n, err := b.Write([]byte("abcdef"))
	require.Equal(t, ErrBufferFull, err)
	require.Equal(t, 4, n)
	require.Equal(t, "abcd", string(b.Bytes()))
	require.Equal(t, ErrBufferFull, b.WriteByte('x'))
	n, err = b.WriteString("y")
	require.Equal(t, ErrBufferFull, err)
	require.Zero(t, n)
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	p, _ := newTestPool(t, 1, 8)
	ctx := context.Background()
	b, err := p.Acquire(ctx)
	require.NoError(t, err)

	got := make(chan *Buffer, 1)
	go func() {
		b, err := p.Acquire(ctx)
		if err == nil {
			got <- b
		}
	}()
	select {
	case <-got:
		t.Fatal("acquire must block while pool is exhausted")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, p.Discard(b))
	select {
	case b := <-got:
		require.Equal(t, Handle(0), b.Handle())
	case <-time.After(time.Second):
		t.Fatal("acquire not unblocked")
	}
}

func TestBlockedAcquireGetsReleasedHandle(t *testing.T) {
	p, faults := newTestPool(t, DefaultCount, 16)
	ctx := context.Background()
	for n := 0; n < DefaultCount; n++ {
		b, err := p.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, p.Submit(b))
	}
	d, err := p.Dispatch(ctx)
	require.NoError(t, err)
	require.Equal(t, Census{Ready: DefaultCount - 1, InFlight: 1}, p.Census())

	got := make(chan *Buffer, 1)
	go func() {
		b, err := p.Acquire(ctx)
		if err == nil {
			got <- b
		}
	}()
	select {
	case <-got:
		t.Fatal("acquire must block while every buffer is ready or in flight")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, p.Release(d))
	select {
	case b := <-got:
		require.Equal(t, d.Handle(), b.Handle())
		require.Equal(t, Owned, p.State(b.Handle()))
	case <-time.After(time.Second):
		t.Fatal("acquire not unblocked")
	}
	require.Equal(t, Census{Owned: 1, Ready: DefaultCount - 1}, p.Census())
	require.Empty(t, *faults)
}

func TestTryAcquire(t *testing.T) {
	p, _ := newTestPool(t, 1, 8)
	b, ok := p.TryAcquire()
	require.True(t, ok)
	_, ok = p.TryAcquire()
	require.False(t, ok)
	require.NoError(t, p.Discard(b))
	_, ok = p.TryAcquire()
	require.True(t, ok)
}

func TestCloseUnblocks(t *testing.T) {
	p, _ := newTestPool(t, 1, 8)
	_, err := p.Acquire(context.Background())
	require.NoError(t, err)
	errCh := make(chan error, 2)
	go func() {
		_, err := p.Acquire(context.Background())
		errCh <- err
	}()
	go func() {
		_, err := p.Dispatch(context.Background())
		errCh <- err
	}()
	require.NoError(t, p.Close())
	require.Equal(t, ErrClosed, <-errCh)
	require.Equal(t, ErrClosed, <-errCh)
}

func TestContextCancelUnblocks(t *testing.T) {
	p, _ := newTestPool(t, 1, 8)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := p.Acquire(ctx)
	require.NoError(t, err)
	cancel()
	_, err = p.Acquire(ctx)
	require.Equal(t, context.Canceled, err)
}

func TestFIFOOrder(t *testing.T) {
	p, _ := newTestPool(t, 4, 8)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c", "d"} {
		b, err := p.Acquire(ctx)
		require.NoError(t, err)
		b.WriteString(s)
		require.NoError(t, p.Submit(b))
	}
	for _, s := range []string{"a", "b", "c", "d"} {
		b, err := p.Dispatch(ctx)
		require.NoError(t, err)
		require.Equal(t, s, string(b.Bytes()))
		require.NoError(t, p.Release(b))
	}
}

func TestSendSplitsAcrossBuffers(t *testing.T) {
	p, _ := newTestPool(t, 4, 4)
	ctx := context.Background()
	require.NoError(t, p.SendString(ctx, "0123456789"))
	require.Equal(t, 3, p.Census().Ready)
	var out []byte
	for i := 0; i < 3; i++ {
		b, err := p.Dispatch(ctx)
		require.NoError(t, err)
		out = append(out, b.Bytes()...)
		require.NoError(t, p.Release(b))
	}
	require.Equal(t, "0123456789", string(out))
	require.NoError(t, p.Send(ctx, nil))
	require.Equal(t, Census{Available: 4}, p.Census())
}

func TestInvariantViolations(t *testing.T) {
	p, faults := newTestPool(t, 2, 8)
	ctx := context.Background()
	b, err := p.Acquire(ctx)
	require.NoError(t, err)

	// releasing a buffer that is not in flight
	require.Error(t, p.Release(b))
	require.Len(t, *faults, 1)

	require.NoError(t, p.Submit(b))
	// double submit
	err = p.Submit(b)
	require.IsType(t, &StateError{}, err)
	require.Len(t, *faults, 2)

	// discard a buffer owned by the ready queue
	require.IsType(t, &StateError{}, p.Discard(b))
	require.Equal(t, 2, p.Census().Total())
}

func TestDefaultFaultPanics(t *testing.T) {
	p := MustNew(1, 8)
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Panics(t, func() { p.Release(b) })
}

func TestCensusInvariantUnderRandomOps(t *testing.T) {
	p, faults := newTestPool(t, DefaultCount, 16)
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(1))
	var owned []*Buffer
	var inflight *Buffer
	for i := 0; i < 2000; i++ {
		switch rnd.Intn(4) {
		case 0:
			if b, ok := p.TryAcquire(); ok {
				owned = append(owned, b)
			}
		case 1:
			if len(owned) > 0 {
				require.NoError(t, p.Submit(owned[0]))
				owned = owned[1:]
			}
		case 2:
			if inflight == nil && p.Census().Ready > 0 {
				b, err := p.Dispatch(ctx)
				require.NoError(t, err)
				inflight = b
			}
		case 3:
			if inflight != nil {
				require.NoError(t, p.Release(inflight))
				inflight = nil
			}
		}
		c := p.Census()
		require.Equal(t, DefaultCount, c.Total())
		require.True(t, c.InFlight <= 1)
	}
	require.Empty(t, *faults)
}
