package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueTryPublish(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryPublish(Message{Channel: "a"}))
	assert.ErrorIs(t, q.TryPublish(Message{Channel: "b"}), ErrQueueFull)

	q.Close()
	assert.ErrorIs(t, q.TryPublish(Message{Channel: "c"}), ErrQueueClosed)
}

func TestQueueConcurrentPublishAndClose(t *testing.T) {
	// publishers racing Close must get ErrQueueClosed, never panic
	for i := 0; i < 200; i++ {
		q := NewQueue(4)
		var wg sync.WaitGroup
		start := make(chan struct{})
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 8; j++ {
					err := q.TryPublish(Message{Channel: "kill_switch:state"})
					if err != nil {
						assert.True(t, errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed))
					}
				}
			}()
		}
		close(start)
		q.Close()
		wg.Wait()
		assert.ErrorIs(t, q.TryPublish(Message{Channel: "kill_switch:state"}), ErrQueueClosed)
	}
}

func TestDispatcherSequentialPerChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string][]int)
	var wg sync.WaitGroup
	wg.Add(20)
	d := NewDispatcher(ctx, 64, func(m Message) {
		defer wg.Done()
		mu.Lock()
		seen[m.Channel] = append(seen[m.Channel], int(m.Payload[0]))
		mu.Unlock()
	}, nil)

	for i := 0; i < 10; i++ {
		d.Enqueue(Message{Channel: "price.updated.AAPL", Payload: []byte{byte(i)}})
		d.Enqueue(Message{Channel: "price.updated.MSFT", Payload: []byte{byte(i)}})
	}
	wg.Wait()
	d.Close()

	for _, channel := range []string{"price.updated.AAPL", "price.updated.MSFT"} {
		order := seen[channel]
		require.Len(t, order, 10)
		for i, v := range order {
			assert.Equal(t, i, v, "per-channel order must be preserved on %s", channel)
		}
	}
}

func TestDispatcherEnqueueDuringClose(t *testing.T) {
	// messages arriving while the session tears down are discarded, not a panic
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		d := NewDispatcher(ctx, 4, func(Message) {}, func(channel string, err error) {
			assert.True(t, errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed))
		})
		d.Enqueue(Message{Channel: "positions:u1"})

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 100; j++ {
				d.Enqueue(Message{Channel: "positions:u1"})
			}
		}()
		d.Close()
		<-done
		cancel()
	}
}

func TestDispatcherDropsOnOverflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	var drops atomic.Int32
	d := NewDispatcher(ctx, 1, func(m Message) {
		<-block
	}, func(channel string, err error) {
		require.ErrorIs(t, err, ErrQueueFull)
		drops.Add(1)
	})

	for i := 0; i < 5; i++ {
		d.Enqueue(Message{Channel: "positions:u1", Payload: []byte{byte(i)}})
	}
	// worker holds one message, the queue holds one; the rest drop
	assert.Eventually(t, func() bool { return drops.Load() >= 3 }, time.Second, 10*time.Millisecond)

	close(block)
	d.Close()
}
