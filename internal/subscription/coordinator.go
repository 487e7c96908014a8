package subscription

import (
	"context"
	"reflect"
	"sync"

	"github.com/yanun0323/logs"

	ierr "main/internal/errors"
	"main/pkg/exception"
)

// Callback receives raw payloads for a channel. All owners of one channel
// must register the same function; a mismatch is a caller bug.
type Callback func(channel string, payload []byte)

// Transport performs the underlying bus subscribe/unsubscribe calls.
type Transport interface {
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
}

// Coordinator is the sole owner of bus subscriptions for one session. It
// reference-counts logical owners per channel so that exactly one underlying
// subscription exists per channel, deduplicates concurrent subscribe attempts
// through a shared pending future, and records failed channels for retry.
//
// One mutex guards the ownership, callback, pending and failed maps; all
// transport calls and callback invocations happen outside of it.
type Coordinator struct {
	transport Transport

	mu        sync.Mutex
	owners    map[string]map[string]struct{}
	callbacks map[string]Callback
	pending   map[string]*pendingSubscribe
	failed    map[string]struct{}
	disposed  bool
}

// pendingSubscribe lets concurrent acquirers of a not-yet-subscribed channel
// await the single in-flight subscribe call.
type pendingSubscribe struct {
	done     chan struct{}
	err      error
	finished bool
}

// caller holds Coordinator.mu
func (p *pendingSubscribe) finish(err error) {
	if p.finished {
		return
	}
	p.finished = true
	p.err = err
	close(p.done)
}

// NewCoordinator creates an empty coordinator over the given transport.
func NewCoordinator(transport Transport) *Coordinator {
	return &Coordinator{
		transport: transport,
		owners:    make(map[string]map[string]struct{}),
		callbacks: make(map[string]Callback),
		pending:   make(map[string]*pendingSubscribe),
		failed:    make(map[string]struct{}),
	}
}

// Acquire registers ownerID on channel, subscribing on the zero-to-one owner
// transition. Concurrent acquirers of the same channel all await the single
// in-flight attempt and receive its error. On failure every owner recorded
// for the channel is rolled back, so a caller never believes it is subscribed
// when it is not.
func (c *Coordinator) Acquire(ctx context.Context, channel, ownerID string, cb Callback) error {
	if channel == "" {
		return ierr.Invariant(exception.ErrSubscribeEmptyChannel, "")
	}
	if ownerID == "" {
		return ierr.Invariant(exception.ErrSubscribeEmptyOwner, "channel "+channel)
	}
	if cb == nil {
		return ierr.Invariant(exception.ErrSubscribeNilCallback, "channel "+channel)
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ierr.Invariant(exception.ErrDisposed, "acquire "+channel)
	}

	if registered, ok := c.callbacks[channel]; ok && !sameCallback(registered, cb) {
		c.mu.Unlock()
		return ierr.Invariant(exception.ErrSubscribeCallbackMismatch, "channel "+channel)
	}

	if p := c.pending[channel]; p != nil {
		c.owners[channel][ownerID] = struct{}{}
		c.mu.Unlock()
		return c.await(ctx, channel, ownerID, p)
	}

	if set := c.owners[channel]; len(set) > 0 {
		set[ownerID] = struct{}{}
		c.mu.Unlock()
		return nil
	}

	// zero-to-one transition: this goroutine performs the subscribe
	p := &pendingSubscribe{done: make(chan struct{})}
	c.pending[channel] = p
	c.owners[channel] = map[string]struct{}{ownerID: {}}
	c.callbacks[channel] = cb
	c.mu.Unlock()

	err := c.transport.Subscribe(ctx, channel)

	c.mu.Lock()
	delete(c.pending, channel)
	if c.disposed {
		p.finish(ierr.Transient(exception.ErrSubscribeCanceled, "disposed during subscribe"))
		err := p.err
		c.mu.Unlock()
		return err
	}
	if err != nil {
		delete(c.owners, channel)
		delete(c.callbacks, channel)
		c.failed[channel] = struct{}{}
		p.finish(ierr.Transient(exception.ErrSubscribeFailed, channel+": "+err.Error()))
		err := p.err
		c.mu.Unlock()
		return err
	}

	delete(c.failed, channel)
	orphaned := len(c.owners[channel]) == 0
	if orphaned {
		delete(c.owners, channel)
		delete(c.callbacks, channel)
	}
	p.finish(nil)
	c.mu.Unlock()

	if orphaned {
		// every owner released before the subscribe completed
		if uerr := c.transport.Unsubscribe(ctx, channel); uerr != nil {
			logs.Errorf("unsubscribe orphaned channel %s, err: %+v", channel, uerr)
		}
	}
	return nil
}

// await blocks a concurrent acquirer on the shared in-flight subscribe.
func (c *Coordinator) await(ctx context.Context, channel, ownerID string, p *pendingSubscribe) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		c.mu.Lock()
		if set, ok := c.owners[channel]; ok {
			delete(set, ownerID)
		}
		c.mu.Unlock()
		return ierr.Transient(ctx.Err(), "await subscribe "+channel)
	}
}

// Release drops ownerID from channel and unsubscribes on the one-to-zero
// transition. Releasing while a subscribe is still pending leaves the channel
// to be orphan-cleaned by the subscribing goroutine.
func (c *Coordinator) Release(ctx context.Context, channel, ownerID string) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}

	set, ok := c.owners[channel]
	if !ok {
		c.mu.Unlock()
		return ierr.Invariant(exception.ErrUnsubscribeUnknownOwner, "channel "+channel+" owner "+ownerID)
	}
	if _, ok := set[ownerID]; !ok {
		c.mu.Unlock()
		return ierr.Invariant(exception.ErrUnsubscribeUnknownOwner, "channel "+channel+" owner "+ownerID)
	}
	delete(set, ownerID)

	if len(set) > 0 {
		c.mu.Unlock()
		return nil
	}
	if c.pending[channel] != nil {
		// subscribe still in flight; its goroutine unsubscribes the orphan
		c.mu.Unlock()
		return nil
	}

	delete(c.owners, channel)
	delete(c.callbacks, channel)
	delete(c.failed, channel)
	c.mu.Unlock()

	if err := c.transport.Unsubscribe(ctx, channel); err != nil {
		return ierr.Transient(err, "unsubscribe "+channel)
	}
	return nil
}

// Dispatch invokes the registered callback for channel, if any.
func (c *Coordinator) Dispatch(channel string, payload []byte) {
	c.mu.Lock()
	cb := c.callbacks[channel]
	c.mu.Unlock()
	if cb != nil {
		cb(channel, payload)
	}
}

// ResubscribeAll re-issues the subscription for every channel with at least
// one current owner, using the callback on record. Per-channel failures are
// logged, recorded for retry and skipped so one bad channel cannot block
// recovery of the rest.
func (c *Coordinator) ResubscribeAll(ctx context.Context) error {
	return c.resubscribe(ctx, c.ownedChannels())
}

// RetryFailed re-attempts channels whose subscribe previously failed and that
// still have owners. Failed channels with no remaining owners are dropped.
func (c *Coordinator) RetryFailed(ctx context.Context) error {
	c.mu.Lock()
	channels := make([]string, 0, len(c.failed))
	for ch := range c.failed {
		if len(c.owners[ch]) > 0 {
			channels = append(channels, ch)
		} else {
			delete(c.failed, ch)
		}
	}
	c.mu.Unlock()
	return c.resubscribe(ctx, channels)
}

func (c *Coordinator) resubscribe(ctx context.Context, channels []string) error {
	for _, channel := range channels {
		if err := ctx.Err(); err != nil {
			return ierr.Transient(err, "resubscribe aborted")
		}
		if err := c.transport.Subscribe(ctx, channel); err != nil {
			logs.Errorf("resubscribe channel %s, err: %+v", channel, err)
			c.mu.Lock()
			if !c.disposed {
				c.failed[channel] = struct{}{}
			}
			c.mu.Unlock()
			continue
		}
		c.mu.Lock()
		delete(c.failed, channel)
		c.mu.Unlock()
	}
	return nil
}

// Dispose cancels pending subscribe futures so no waiter hangs, unsubscribes
// every owned channel and marks the coordinator unusable.
func (c *Coordinator) Dispose(ctx context.Context) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	for _, p := range c.pending {
		p.finish(ierr.Transient(exception.ErrSubscribeCanceled, "coordinator disposed"))
	}
	channels := make([]string, 0, len(c.owners))
	for ch := range c.owners {
		channels = append(channels, ch)
	}
	c.owners = make(map[string]map[string]struct{})
	c.callbacks = make(map[string]Callback)
	c.pending = make(map[string]*pendingSubscribe)
	c.failed = make(map[string]struct{})
	c.mu.Unlock()

	for _, channel := range channels {
		if err := c.transport.Unsubscribe(ctx, channel); err != nil {
			logs.Errorf("unsubscribe on dispose channel %s, err: %+v", channel, err)
		}
	}
}

// OwnerCount returns the number of owners currently holding channel.
func (c *Coordinator) OwnerCount(channel string) int {
	c.mu.Lock()
	count := len(c.owners[channel])
	c.mu.Unlock()
	return count
}

// Channels returns every channel with at least one owner.
func (c *Coordinator) Channels() []string {
	return c.ownedChannels()
}

func (c *Coordinator) ownedChannels() []string {
	c.mu.Lock()
	channels := make([]string, 0, len(c.owners))
	for ch, set := range c.owners {
		if len(set) > 0 {
			channels = append(channels, ch)
		}
	}
	c.mu.Unlock()
	return channels
}

func sameCallback(a, b Callback) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
