package bus

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueFull   = errors.New("dispatch queue full")
	ErrQueueClosed = errors.New("dispatch queue closed")
)

// Message is one inbound bus payload.
type Message struct {
	Channel    string
	Payload    []byte
	ReceivedAt time.Time
}

// Queue is a bounded, non-blocking message queue.
type Queue struct {
	// mu serializes sends against close; publishers hold the read side so
	// the channel can never be closed between the closed check and the send
	mu     sync.RWMutex
	ch     chan Message
	closed bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Message, capacity)}
}

// TryPublish enqueues a message without blocking.
func (q *Queue) TryPublish(m Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new messages.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
}

// Run consumes messages until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(Message)) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-q.ch:
			if !ok {
				return
			}
			handler(m)
		}
	}
}

// Dispatcher fans inbound messages into one bounded queue per channel, so
// callbacks run sequentially per channel while distinct channels proceed
// concurrently.
type Dispatcher struct {
	ctx      context.Context
	capacity int
	handler  func(Message)
	onDrop   func(channel string, err error)

	mu     sync.Mutex
	queues map[string]*Queue
	wg     sync.WaitGroup
	closed bool
}

// NewDispatcher creates a dispatcher delivering to handler. onDrop is invoked
// with ErrQueueFull or ErrQueueClosed when a message cannot be enqueued; it
// may be nil.
func NewDispatcher(ctx context.Context, capacity int, handler func(Message), onDrop func(channel string, err error)) *Dispatcher {
	if capacity <= 0 {
		capacity = 64
	}
	return &Dispatcher{
		ctx:      ctx,
		capacity: capacity,
		handler:  handler,
		onDrop:   onDrop,
		queues:   make(map[string]*Queue),
	}
}

// Enqueue routes a message to its channel queue, spawning the queue worker on
// first use. Overflow drops the message rather than queueing unboundedly.
func (d *Dispatcher) Enqueue(m Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	q, ok := d.queues[m.Channel]
	if !ok {
		q = NewQueue(d.capacity)
		d.queues[m.Channel] = q
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			q.Run(d.ctx, d.handler)
		}()
	}
	d.mu.Unlock()

	if err := q.TryPublish(m); err != nil {
		if d.onDrop != nil {
			d.onDrop(m.Channel, err)
		}
	}
}

// Close shuts every channel queue and waits for the workers to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	queues := make([]*Queue, 0, len(d.queues))
	for _, q := range d.queues {
		queues = append(queues, q)
	}
	d.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}
	d.wg.Wait()
}
