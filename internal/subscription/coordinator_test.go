package subscription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "main/internal/errors"
	"main/pkg/exception"
)

// fakeTransport counts subscribe/unsubscribe calls and can fail or block.
type fakeTransport struct {
	mu           sync.Mutex
	subscribes   map[string]int
	unsubscribes map[string]int
	failWith     error
	gate         chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subscribes:   make(map[string]int),
		unsubscribes: make(map[string]int),
	}
}

func (f *fakeTransport) Subscribe(ctx context.Context, channel string) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.subscribes[channel]++
	err := f.failWith
	f.mu.Unlock()
	return err
}

func (f *fakeTransport) Unsubscribe(ctx context.Context, channel string) error {
	f.mu.Lock()
	f.unsubscribes[channel]++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) counts(channel string) (sub, unsub int) {
	f.mu.Lock()
	sub, unsub = f.subscribes[channel], f.unsubscribes[channel]
	f.mu.Unlock()
	return sub, unsub
}

func noopCallback(channel string, payload []byte) {}

func TestAcquireReleaseRefCount(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	c := NewCoordinator(transport)

	require.NoError(t, c.Acquire(ctx, "price.updated.AAPL", "watchlist", noopCallback))
	require.NoError(t, c.Acquire(ctx, "price.updated.AAPL", "selected", noopCallback))
	assert.Equal(t, 2, c.OwnerCount("price.updated.AAPL"))

	sub, unsub := transport.counts("price.updated.AAPL")
	assert.Equal(t, 1, sub, "one subscribe per zero-to-one transition")
	assert.Equal(t, 0, unsub)

	require.NoError(t, c.Release(ctx, "price.updated.AAPL", "watchlist"))
	_, unsub = transport.counts("price.updated.AAPL")
	assert.Equal(t, 0, unsub, "unsubscribe only on one-to-zero transition")

	require.NoError(t, c.Release(ctx, "price.updated.AAPL", "selected"))
	sub, unsub = transport.counts("price.updated.AAPL")
	assert.Equal(t, 1, sub)
	assert.Equal(t, 1, unsub)
	assert.Equal(t, 0, c.OwnerCount("price.updated.AAPL"))
}

func TestConcurrentAcquirersShareOneSubscribe(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	transport.gate = make(chan struct{})
	c := NewCoordinator(transport)

	const owners = 8
	var wg sync.WaitGroup
	var failures atomic.Int32
	wg.Add(owners)
	for i := 0; i < owners; i++ {
		go func(i int) {
			defer wg.Done()
			if err := c.Acquire(ctx, "price.updated.TSLA", string(rune('a'+i)), noopCallback); err != nil {
				failures.Add(1)
			}
		}(i)
	}

	// let the acquirers pile onto the shared pending future
	time.Sleep(20 * time.Millisecond)
	close(transport.gate)
	wg.Wait()

	assert.Equal(t, int32(0), failures.Load())
	sub, _ := transport.counts("price.updated.TSLA")
	assert.Equal(t, 1, sub, "concurrent acquirers must share one in-flight subscribe")
	assert.Equal(t, owners, c.OwnerCount("price.updated.TSLA"))
}

func TestSubscribeFailureRollsBackAllWaiters(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	transport.gate = make(chan struct{})
	transport.failWith = errors.New("broker unavailable")
	c := NewCoordinator(transport)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Acquire(ctx, "positions:u1", string(rune('a'+i)), noopCallback)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(transport.gate)
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err, "every concurrent waiter receives the failure")
		assert.ErrorIs(t, err, exception.ErrSubscribeFailed)
		assert.Equal(t, ierr.KindTransientIO, ierr.KindOf(err))
	}
	assert.Equal(t, 0, c.OwnerCount("positions:u1"), "no owner may believe it is subscribed")
}

func TestCallbackMismatchFailsFast(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(newFakeTransport())

	cb := func(channel string, payload []byte) {}
	other := func(channel string, payload []byte) { _ = channel }

	require.NoError(t, c.Acquire(ctx, "kill_switch:state", "session", cb))
	err := c.Acquire(ctx, "kill_switch:state", "widget", other)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrSubscribeCallbackMismatch)
	assert.Equal(t, ierr.KindInvariant, ierr.KindOf(err))
	assert.Equal(t, 1, c.OwnerCount("kill_switch:state"))
}

func TestReleaseDuringPendingOrphansChannel(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	transport.gate = make(chan struct{})
	c := NewCoordinator(transport)

	done := make(chan error, 1)
	go func() {
		done <- c.Acquire(ctx, "price.updated.NVDA", "selected", noopCallback)
	}()
	time.Sleep(20 * time.Millisecond)

	// owner leaves while the subscribe is still in flight
	require.NoError(t, c.Release(ctx, "price.updated.NVDA", "selected"))
	close(transport.gate)
	require.NoError(t, <-done)

	sub, unsub := transport.counts("price.updated.NVDA")
	assert.Equal(t, 1, sub)
	assert.Equal(t, 1, unsub, "orphaned channel must be unsubscribed immediately")
	assert.Equal(t, 0, c.OwnerCount("price.updated.NVDA"))
}

func TestResubscribeAllAfterReconnect(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	c := NewCoordinator(transport)

	var ticks atomic.Int32
	cb := func(channel string, payload []byte) { ticks.Add(1) }

	require.NoError(t, c.Acquire(ctx, "price.updated.AAPL", "watchlist", cb))
	require.NoError(t, c.Acquire(ctx, "price.updated.AAPL", "selected", cb))

	// simulated disconnect/reconnect
	require.NoError(t, c.ResubscribeAll(ctx))

	sub, _ := transport.counts("price.updated.AAPL")
	assert.Equal(t, 2, sub, "initial subscribe plus one resubscribe")
	assert.Equal(t, 2, c.OwnerCount("price.updated.AAPL"))

	c.Dispatch("price.updated.AAPL", []byte(`{"symbol":"AAPL","price":"1"}`))
	assert.Equal(t, int32(1), ticks.Load(), "callback on record still receives ticks")
}

func TestRetryFailed(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	c := NewCoordinator(transport)

	require.NoError(t, c.Acquire(ctx, "price.updated.AAPL", "watchlist", noopCallback))
	require.NoError(t, c.Acquire(ctx, "positions:u1", "session", noopCallback))

	// reconnect with one channel failing
	transport.mu.Lock()
	transport.failWith = errors.New("subscribe refused")
	transport.mu.Unlock()
	require.NoError(t, c.ResubscribeAll(ctx))

	transport.mu.Lock()
	transport.failWith = nil
	transport.mu.Unlock()
	require.NoError(t, c.RetryFailed(ctx))

	subA, _ := transport.counts("price.updated.AAPL")
	subP, _ := transport.counts("positions:u1")
	assert.Equal(t, 3, subA, "initial + failed resubscribe + retry")
	assert.Equal(t, 3, subP)

	// nothing left to retry
	require.NoError(t, c.RetryFailed(ctx))
	subA2, _ := transport.counts("price.updated.AAPL")
	assert.Equal(t, 3, subA2)
}

func TestDisposeResolvesPendingWaiters(t *testing.T) {
	ctx := context.Background()
	transport := newFakeTransport()
	transport.gate = make(chan struct{})
	c := NewCoordinator(transport)

	done := make(chan error, 1)
	go func() {
		done <- c.Acquire(ctx, "price.updated.AAPL", "selected", noopCallback)
	}()
	time.Sleep(20 * time.Millisecond)

	go c.Dispose(ctx)
	time.Sleep(20 * time.Millisecond)
	close(transport.gate)

	err := <-done
	require.Error(t, err, "no waiter may hang after dispose")
	assert.ErrorIs(t, err, exception.ErrSubscribeCanceled)

	err = c.Acquire(ctx, "price.updated.AAPL", "selected", noopCallback)
	assert.ErrorIs(t, err, exception.ErrDisposed)
}
