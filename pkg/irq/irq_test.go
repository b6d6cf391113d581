package irq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSemaphoreBinary(t *testing.T) {
	s := NewSemaphore()
	require.False(t, s.TryTake())
	require.True(t, s.GiveFromISR())
	require.False(t, s.GiveFromISR())
	require.True(t, s.TryTake())
	require.False(t, s.TryTake())
}

func TestSemaphoreTakeWaits(t *testing.T) {
	s := NewSemaphore()
	done := make(chan error, 1)
	go func() { done <- s.Take(context.Background()) }()
	select {
	case <-done:
		t.Fatal("take must wait for give")
	case <-time.After(10 * time.Millisecond):
	}
	YieldFromISR(s.GiveFromISR())
	require.NoError(t, <-done)
}

func TestSemaphoreTakeCanceled(t *testing.T) {
	s := NewSemaphore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, s.Take(ctx))
}

func TestSemaphoreDrain(t *testing.T) {
	s := NewSemaphore()
	s.GiveFromISR()
	s.Drain()
	require.False(t, s.TryTake())
}

func TestByteQueueOverrun(t *testing.T) {
	q := NewByteQueue(2)
	require.True(t, q.SendFromISR('a'))
	require.True(t, q.SendFromISR('b'))
	require.False(t, q.SendFromISR('c'))
	require.Equal(t, uint64(1), q.Dropped())
	require.Equal(t, 2, q.Len())

	ctx := context.Background()
	b, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, byte('a'), b)
	b, err = q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, byte('b'), b)
}

func TestByteQueueSendBlocks(t *testing.T) {
	q := NewByteQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, 'x'))
	sent := make(chan error, 1)
	go func() { sent <- q.Send(ctx, 'y') }()
	select {
	case <-sent:
		t.Fatal("send must block on a full queue")
	case <-time.After(10 * time.Millisecond):
	}
	b, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, byte('x'), b)
	require.NoError(t, <-sent)
	require.Zero(t, q.Dropped())
}

func TestByteQueueWaiting(t *testing.T) {
	q := NewByteQueue(2)
	require.False(t, q.Waiting())
	got := make(chan byte, 1)
	go func() {
		b, err := q.Receive(context.Background())
		if err == nil {
			got <- b
		}
	}()
	require.Eventually(t, q.Waiting, time.Second, time.Millisecond)
	require.True(t, q.SendFromISR('z'))
	require.Equal(t, byte('z'), <-got)
	require.Eventually(t, func() bool { return !q.Waiting() }, time.Second, time.Millisecond)

	// a queued byte is taken without waiting
	require.True(t, q.SendFromISR('y'))
	b, err := q.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, byte('y'), b)
	require.False(t, q.Waiting())
}
