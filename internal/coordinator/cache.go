package coordinator

import (
	"sync"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

// marketCache holds the session's last observed market fields. It only ever
// stores values together with the server-assigned observation time; a field
// that has never been observed, or whose payload lacked a usable timestamp,
// stays absent and fails the staleness checks downstream.
type marketCache struct {
	mu          sync.RWMutex
	positions   model.FieldSnapshot[[]model.Position]
	prices      map[string]model.FieldSnapshot[decimal.Decimal]
	buyingPower model.FieldSnapshot[decimal.Decimal]
	riskLimits  model.FieldSnapshot[model.RiskLimits]
	connState   enum.ConnectionState
}

func newMarketCache() *marketCache {
	return &marketCache{
		prices:    make(map[string]model.FieldSnapshot[decimal.Decimal]),
		connState: enum.ConnectionStateDisconnected,
	}
}

func (c *marketCache) AllPositions() model.FieldSnapshot[[]model.Position] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positions
}

func (c *marketCache) LastPrice(symbol string) model.FieldSnapshot[decimal.Decimal] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prices[symbol]
}

func (c *marketCache) BuyingPower() model.FieldSnapshot[decimal.Decimal] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buyingPower
}

func (c *marketCache) RiskLimits() model.FieldSnapshot[model.RiskLimits] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.riskLimits
}

func (c *marketCache) ConnectionState() enum.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connState
}

func (c *marketCache) SetPositions(s model.FieldSnapshot[[]model.Position]) {
	c.mu.Lock()
	c.positions = s
	c.mu.Unlock()
}

func (c *marketCache) SetPrice(symbol string, s model.FieldSnapshot[decimal.Decimal]) {
	c.mu.Lock()
	c.prices[symbol] = s
	c.mu.Unlock()
}

func (c *marketCache) DropPrice(symbol string) {
	c.mu.Lock()
	delete(c.prices, symbol)
	c.mu.Unlock()
}

func (c *marketCache) SetBuyingPower(s model.FieldSnapshot[decimal.Decimal]) {
	c.mu.Lock()
	c.buyingPower = s
	c.mu.Unlock()
}

func (c *marketCache) SetRiskLimits(s model.FieldSnapshot[model.RiskLimits]) {
	c.mu.Lock()
	c.riskLimits = s
	c.mu.Unlock()
}

func (c *marketCache) SetConnectionState(state enum.ConnectionState) {
	c.mu.Lock()
	c.connState = state
	c.mu.Unlock()
}
