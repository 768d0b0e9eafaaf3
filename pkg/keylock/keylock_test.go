package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_SerializesSameKey(t *testing.T) {
	l := New()
	ctx := context.Background()

	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "wallet:1")
			require.NoError(t, err)
			defer release()

			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, l.Len(), "all entries should be cleaned up")
}

func TestLock_DifferentKeysDoNotBlock(t *testing.T) {
	l := New()
	ctx := context.Background()

	releaseA, err := l.Lock(ctx, "wallet:a")
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := l.Lock(ctx, "wallet:b")
		assert.NoError(t, err)
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key should not block")
	}
}

func TestLock_ContextTimeout(t *testing.T) {
	l := New()

	release, err := l.Lock(context.Background(), "request:1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "request:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLock_MultiKeyPartialFailureReleases(t *testing.T) {
	l := New()

	releaseB, err := l.Lock(context.Background(), "b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// "a" is acquired first (sorted), then "b" times out; "a" must be freed.
	_, err = l.Lock(ctx, "b", "a")
	require.Error(t, err)

	releaseA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	releaseA()
	releaseB()

	assert.Equal(t, 0, l.Len())
}

func TestLock_ReleaseIsIdempotent(t *testing.T) {
	l := New()

	release, err := l.Lock(context.Background(), "x", "x", "y")
	require.NoError(t, err)
	release()
	release()

	assert.Equal(t, 0, l.Len())
}
