package coordinator

import (
	"sync"

	"main/internal/model"
	"main/internal/model/enum"
)

// Consumer callbacks. Each is invoked on the dispatch goroutine of the
// channel that produced the event, so callbacks for one channel never run
// concurrently with each other.
type (
	PriceConsumer      func(tick model.PriceTick)
	PositionsConsumer  func(update model.PositionsUpdate)
	SafetyConsumer     func(state model.SafetyState)
	ConnectionConsumer func(state enum.ConnectionState)
)

// consumers is the façade's callback registry. Registered callbacks receive
// a removal func; removing inside a callback is allowed.
type consumers struct {
	mu         sync.RWMutex
	nextID     uint64
	price      map[uint64]PriceConsumer
	positions  map[uint64]PositionsConsumer
	safety     map[uint64]SafetyConsumer
	connection map[uint64]ConnectionConsumer
}

func newConsumers() *consumers {
	return &consumers{
		price:      make(map[uint64]PriceConsumer),
		positions:  make(map[uint64]PositionsConsumer),
		safety:     make(map[uint64]SafetyConsumer),
		connection: make(map[uint64]ConnectionConsumer),
	}
}

func (c *consumers) addPrice(fn PriceConsumer) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.price[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.price, id)
		c.mu.Unlock()
	}
}

func (c *consumers) addPositions(fn PositionsConsumer) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.positions[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.positions, id)
		c.mu.Unlock()
	}
}

func (c *consumers) addSafety(fn SafetyConsumer) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.safety[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.safety, id)
		c.mu.Unlock()
	}
}

func (c *consumers) addConnection(fn ConnectionConsumer) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.connection[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.connection, id)
		c.mu.Unlock()
	}
}

func (c *consumers) notifyPrice(tick model.PriceTick) {
	for _, fn := range c.priceList() {
		fn(tick)
	}
}

func (c *consumers) notifyPositions(update model.PositionsUpdate) {
	for _, fn := range c.positionsList() {
		fn(update)
	}
}

func (c *consumers) notifySafety(state model.SafetyState) {
	for _, fn := range c.safetyList() {
		fn(state)
	}
}

func (c *consumers) notifyConnection(state enum.ConnectionState) {
	for _, fn := range c.connectionList() {
		fn(state)
	}
}

func (c *consumers) priceList() []PriceConsumer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]PriceConsumer, 0, len(c.price))
	for _, fn := range c.price {
		list = append(list, fn)
	}
	return list
}

func (c *consumers) positionsList() []PositionsConsumer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]PositionsConsumer, 0, len(c.positions))
	for _, fn := range c.positions {
		list = append(list, fn)
	}
	return list
}

func (c *consumers) safetyList() []SafetyConsumer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]SafetyConsumer, 0, len(c.safety))
	for _, fn := range c.safety {
		list = append(list, fn)
	}
	return list
}

func (c *consumers) connectionList() []ConnectionConsumer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]ConnectionConsumer, 0, len(c.connection))
	for _, fn := range c.connection {
		list = append(list, fn)
	}
	return list
}
