package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/errors"
	"main/internal/intentstore"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/pipeline"
	"main/internal/safety"
	"main/internal/staleness"
	"main/internal/subscription"
	"main/pkg/exception"
)

const ownerCore = "terminal-core"
const ownerSelector = "symbol-selector"

// Gateway extends the pipeline gateway with the display-only collaborators.
type Gateway interface {
	pipeline.Gateway
	FetchRecentFills(ctx context.Context) (model.FieldSnapshot[[]model.Fill], error)
}

// timedGateway measures the final submission call for the session metrics.
type timedGateway struct {
	Gateway
	metrics *obs.Metrics
}

func (g timedGateway) SubmitOrder(ctx context.Context, intent model.OrderIntent) (pipeline.SubmitReceipt, error) {
	start := time.Now()
	receipt, err := g.Gateway.SubmitOrder(ctx, intent)
	g.metrics.ObserveSubmit(time.Since(start))
	return receipt, err
}

// Options configures the session façade.
type Options struct {
	SessionID          string
	UserID             string
	Policy             staleness.Policy
	QueueCapacity      int
	PositionsRefresh   time.Duration
	BuyingPowerRefresh time.Duration
	EnableFills        bool
}

// Coordinator is the single entry point of one terminal session. It owns the
// market cache, the subscription bookkeeping, the safety tracker and the
// order pipeline, and it is the only component that touches the bus or the
// REST collaborators directly. Messages are dispatched sequentially per
// channel; consumer callbacks observe each channel's events in arrival order.
type Coordinator struct {
	opt       Options
	cache     *marketCache
	subs      *subscription.Coordinator
	tracker   *safety.Tracker
	gateway   Gateway
	store     intentstore.Store
	pipe      *pipeline.Pipeline
	consumers *consumers
	metrics   *obs.Metrics
	selectSeq *obs.Sequence

	dispatchMu sync.Mutex
	dispatcher *bus.Dispatcher

	selectMu        sync.Mutex
	selectedSymbol  string
	selectedVersion uint64

	positionsInflight   uint32
	buyingPowerInflight uint32

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires a session façade. The transport is the live bus connection; the
// gateway serves both the confirm-time fetches and the display pulls.
func New(opt Options, transport subscription.Transport, tracker *safety.Tracker, gateway Gateway, store intentstore.Store, metrics *obs.Metrics) *Coordinator {
	cache := newMarketCache()
	return &Coordinator{
		opt:       opt,
		cache:     cache,
		subs:      subscription.NewCoordinator(transport),
		tracker:   tracker,
		gateway:   gateway,
		store:     store,
		pipe:      pipeline.New(opt.SessionID, cache, tracker, timedGateway{gateway, metrics}, store, opt.Policy),
		consumers: newConsumers(),
		metrics:   metrics,
		selectSeq: obs.NewSequence(0),
	}
}

// Init brings the session up: authoritative safety fetch first, then the
// core channel subscriptions, draft recovery and the periodic refreshes.
// Consumers registered before Init see every event from the first dispatch.
func (c *Coordinator) Init(ctx context.Context) error {
	if c == nil {
		return exception.ErrNilInstance
	}
	if !c.started.CompareAndSwap(false, true) {
		return exception.ErrInternal
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.dispatchMu.Lock()
	c.dispatcher = bus.NewDispatcher(runCtx, c.opt.QueueCapacity, c.route, func(channel string, err error) {
		if errors.Is(err, bus.ErrQueueClosed) {
			c.metrics.IncQueueClosed()
			return
		}
		c.metrics.IncQueueDrop()
		logs.Errorf("dispatch queue full, drop message on %s", channel)
	})
	c.dispatchMu.Unlock()

	// both safety states stay unsafe until this fetch lands
	if err := c.tracker.Init(ctx); err != nil {
		logs.Errorf("initial safety fetch failed, blocking until refreshed, err: %s", err.Error())
	}

	c.acquireCore(ctx)

	c.recoverDraft(ctx)
	c.warmCache(ctx)

	c.wg.Add(2)
	go c.refreshLoop(runCtx, c.opt.PositionsRefresh, c.refreshPositions)
	go c.refreshLoop(runCtx, c.opt.BuyingPowerRefresh, c.refreshBuyingPower)

	return nil
}

// Dispose tears the session down. Pending subscribe waiters are resolved
// with a cancellation error.
func (c *Coordinator) Dispose(ctx context.Context) {
	if c == nil || !c.started.CompareAndSwap(true, false) {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.subs.Dispose(ctx)

	c.dispatchMu.Lock()
	dispatcher := c.dispatcher
	c.dispatcher = nil
	c.dispatchMu.Unlock()
	if dispatcher != nil {
		dispatcher.Close()
	}
}

// HandleMessage accepts one raw bus message. It never blocks the caller;
// when a channel's queue is full the message is dropped and counted.
func (c *Coordinator) HandleMessage(channel string, payload []byte) {
	c.dispatchMu.Lock()
	dispatcher := c.dispatcher
	c.dispatchMu.Unlock()
	if dispatcher == nil {
		return
	}
	dispatcher.Enqueue(bus.Message{Channel: channel, Payload: payload, ReceivedAt: time.Now()})
}

// HandleConnectionState accepts a transport-level connection transition.
// A recovered connection replays every owned subscription and refreshes the
// safety states before the session trusts its cache again.
func (c *Coordinator) HandleConnectionState(state enum.ConnectionState) {
	prev := c.cache.ConnectionState()
	c.cache.SetConnectionState(state)
	c.consumers.notifyConnection(state)

	if state == enum.ConnectionStateConnected && prev != enum.ConnectionStateConnected {
		go c.recover()
	}
}

// SelectSymbol switches the session's active symbol. Rapid successive calls
// are last-wins: a superseded selection abandons its subscription instead of
// racing the newer one.
func (c *Coordinator) SelectSymbol(ctx context.Context, symbol string) error {
	if symbol == "" {
		return errors.Invariant(exception.ErrInvalidArgument, "select empty symbol")
	}

	version := c.selectSeq.Next()
	c.selectMu.Lock()
	if version < c.selectedVersion {
		// a newer selection already landed; abandon this one
		c.selectMu.Unlock()
		return nil
	}
	prev := c.selectedSymbol
	c.selectedSymbol = symbol
	c.selectedVersion = version
	c.selectMu.Unlock()

	if prev != "" && prev != symbol {
		if err := c.subs.Release(ctx, bus.PriceChannel(prev), ownerSelector); err != nil {
			logs.Errorf("release price channel for %s, err: %s", prev, err.Error())
		}
		c.cache.DropPrice(prev)
	}

	err := c.subs.Acquire(ctx, bus.PriceChannel(symbol), ownerSelector, c.handlePrice)

	c.selectMu.Lock()
	superseded := c.selectedVersion != version
	stillSelected := c.selectedSymbol == symbol
	c.selectMu.Unlock()
	if superseded {
		// never release a channel the surviving selection still needs
		if err == nil && !stillSelected {
			if rerr := c.subs.Release(ctx, bus.PriceChannel(symbol), ownerSelector); rerr != nil {
				logs.Errorf("release superseded price channel for %s, err: %s", symbol, rerr.Error())
			}
		}
		return nil
	}
	return err
}

// SelectedSymbol returns the active symbol, empty when none is selected.
func (c *Coordinator) SelectedSymbol() string {
	c.selectMu.Lock()
	defer c.selectMu.Unlock()
	return c.selectedSymbol
}

// Preview validates the form against cached state and arms the pipeline.
func (c *Coordinator) Preview(ctx context.Context, form model.OrderForm) (model.OrderIntent, error) {
	intent, err := c.pipe.Preview(ctx, form)
	if err != nil {
		c.metrics.IncBlock(errors.KindOf(err))
	}
	return intent, err
}

// Confirm re-validates against fresh state and submits exactly once.
func (c *Coordinator) Confirm(ctx context.Context) (pipeline.SubmitReceipt, error) {
	start := time.Now()
	receipt, err := c.pipe.Confirm(ctx)
	c.metrics.ObserveConfirm(time.Since(start))
	c.metrics.IncSubmit(err == nil)
	if err != nil {
		c.metrics.IncBlock(errors.KindOf(err))
	}
	return receipt, err
}

// Reset abandons the pending entry and rotates the intent.
func (c *Coordinator) Reset() {
	c.pipe.Reset()
}

// Phase reports the pipeline phase.
func (c *Coordinator) Phase() pipeline.Phase {
	return c.pipe.Phase()
}

// Intent reports the pending intent, if any.
func (c *Coordinator) Intent() (model.OrderIntent, bool) {
	return c.pipe.Intent()
}

// RecentFills pulls recent executions for display. The pull is behind a
// feature flag so sessions without the fills panel skip the extra traffic.
func (c *Coordinator) RecentFills(ctx context.Context) (model.FieldSnapshot[[]model.Fill], error) {
	if !c.opt.EnableFills {
		return model.FieldSnapshot[[]model.Fill]{}, exception.ErrFillsDisabled
	}
	return c.gateway.FetchRecentFills(ctx)
}

// SafetyStates reports the cached safety states.
func (c *Coordinator) SafetyStates() (ks, cb model.SafetyState, initialized bool) {
	return c.tracker.Cached()
}

// ConnectionState reports the cached connection state.
func (c *Coordinator) ConnectionState() enum.ConnectionState {
	return c.cache.ConnectionState()
}

// Metrics returns a snapshot of the session counters.
func (c *Coordinator) Metrics() obs.Snapshot {
	return c.metrics.Snapshot()
}

// OnPrice registers a price consumer; the returned func removes it.
func (c *Coordinator) OnPrice(fn PriceConsumer) func() {
	return c.consumers.addPrice(fn)
}

// OnPositions registers a positions consumer.
func (c *Coordinator) OnPositions(fn PositionsConsumer) func() {
	return c.consumers.addPositions(fn)
}

// OnSafety registers a safety-state consumer.
func (c *Coordinator) OnSafety(fn SafetyConsumer) func() {
	return c.consumers.addSafety(fn)
}

// OnConnection registers a connection-state consumer.
func (c *Coordinator) OnConnection(fn ConnectionConsumer) func() {
	return c.consumers.addConnection(fn)
}

func (c *Coordinator) route(m bus.Message) {
	c.metrics.ObserveDispatch(m.Channel)
	c.subs.Dispatch(m.Channel, m.Payload)
}

func (c *Coordinator) handlePrice(channel string, payload []byte) {
	symbol, ok := bus.PriceSymbol(channel)
	if !ok {
		return
	}
	tick, ok := parsePriceTick(symbol, payload)
	if !ok {
		// fail closed: a defective tick makes the price unusable
		c.cache.SetPrice(symbol, model.Absent[decimal.Decimal]())
		logs.Errorf("drop defective price tick on %s", channel)
		return
	}
	c.cache.SetPrice(symbol, model.Observed(tick.Price, tick.Timestamp))
	c.consumers.notifyPrice(tick)
}

func (c *Coordinator) handlePositions(channel string, payload []byte) {
	if !bus.IsPositionsChannel(channel) {
		return
	}
	update, ok := parsePositions(payload)
	if !ok {
		c.cache.SetPositions(model.Absent[[]model.Position]())
		logs.Errorf("drop defective positions update")
		return
	}
	c.cache.SetPositions(model.Observed(update.Positions, update.Timestamp))
	c.consumers.notifyPositions(update)
}

func (c *Coordinator) handleKillSwitch(_ string, payload []byte) {
	state := c.tracker.ApplyPush(enum.SafetyKindKillSwitch, payload)
	c.consumers.notifySafety(state)
}

func (c *Coordinator) handleCircuitBreaker(_ string, payload []byte) {
	state := c.tracker.ApplyPush(enum.SafetyKindCircuitBreaker, payload)
	c.consumers.notifySafety(state)
}

func (c *Coordinator) handleConnectionEvent(_ string, payload []byte) {
	state, ok := parseConnectionEvent(payload)
	if !ok {
		logs.Errorf("drop defective connection event")
		return
	}
	c.HandleConnectionState(state)
}

// acquireCore subscribes the channels every session needs. Re-acquiring an
// owned channel is a no-op, so this is safe to repeat after reconnects.
func (c *Coordinator) acquireCore(ctx context.Context) {
	coreChannels := []struct {
		channel string
		cb      subscription.Callback
	}{
		{bus.ChannelKillSwitch, c.handleKillSwitch},
		{bus.ChannelCircuitBreaker, c.handleCircuitBreaker},
		{bus.ChannelConnection, c.handleConnectionEvent},
		{bus.PositionsChannel(c.opt.UserID), c.handlePositions},
	}
	for _, sub := range coreChannels {
		if err := c.subs.Acquire(ctx, sub.channel, ownerCore, sub.cb); err != nil {
			logs.Errorf("acquire %s failed, will retry on reconnect, err: %s", sub.channel, err.Error())
		}
	}
}

// recover runs after a reconnect: replay subscriptions, retry recorded
// failures and refresh the safety cache before trusting it again.
func (c *Coordinator) recover() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.acquireCore(ctx)
	if err := c.subs.ResubscribeAll(ctx); err != nil {
		c.metrics.IncResubscribe(false)
		logs.Errorf("resubscribe after reconnect, err: %s", err.Error())
	} else {
		c.metrics.IncResubscribe(true)
	}
	if err := c.subs.RetryFailed(ctx); err != nil {
		logs.Errorf("retry failed channels, err: %s", err.Error())
	}

	if _, _, err := c.tracker.FetchAuthoritative(ctx); err != nil {
		logs.Errorf("refresh safety after reconnect, err: %s", err.Error())
	}
	c.refreshPositions(ctx)
	c.refreshBuyingPower(ctx)
}

func (c *Coordinator) recoverDraft(ctx context.Context) {
	intent, ok, err := c.store.Load(ctx, c.opt.SessionID)
	if err != nil {
		logs.Errorf("load persisted draft, err: %s", err.Error())
		return
	}
	if !ok {
		return
	}
	c.pipe.RecoverDraft(intent)
	logs.Infof("recovered draft intent %s for %s", intent.ID, intent.Form.Symbol)
}

func (c *Coordinator) warmCache(ctx context.Context) {
	if snap, err := c.gateway.FetchRiskLimits(ctx); err != nil {
		logs.Errorf("warm risk limits, err: %s", err.Error())
	} else {
		c.cache.SetRiskLimits(snap)
	}
	c.refreshPositions(ctx)
	c.refreshBuyingPower(ctx)
}

func (c *Coordinator) refreshLoop(ctx context.Context, interval time.Duration, refresh func(ctx context.Context)) {
	defer c.wg.Done()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh(ctx)
		}
	}
}

// refreshPositions pulls positions unless a previous pull is still in
// flight; a slow collaborator must not stack requests.
func (c *Coordinator) refreshPositions(ctx context.Context) {
	if !atomic.CompareAndSwapUint32(&c.positionsInflight, 0, 1) {
		return
	}
	defer atomic.StoreUint32(&c.positionsInflight, 0)

	snap, err := c.gateway.FetchPositions(ctx)
	if err != nil {
		logs.Errorf("refresh positions, err: %s", err.Error())
		return
	}
	c.cache.SetPositions(snap)
}

func (c *Coordinator) refreshBuyingPower(ctx context.Context) {
	if !atomic.CompareAndSwapUint32(&c.buyingPowerInflight, 0, 1) {
		return
	}
	defer atomic.StoreUint32(&c.buyingPowerInflight, 0)

	snap, err := c.gateway.FetchBuyingPower(ctx)
	if err != nil {
		logs.Errorf("refresh buying power, err: %s", err.Error())
		return
	}
	c.cache.SetBuyingPower(snap)
}
