package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one symbol's holding as reported upstream.
type Position struct {
	Symbol       string
	Qty          decimal.Decimal
	CurrentPrice decimal.Decimal
	UpdatedAt    time.Time
}

// Notional returns |qty| * currentPrice.
func (p Position) Notional() decimal.Decimal {
	return p.Qty.Abs().Mul(p.CurrentPrice)
}

// RiskLimits are the account-level limits applied to every order.
type RiskLimits struct {
	MaxPosition      decimal.Decimal
	MaxOrderNotional decimal.Decimal
	MaxTotalExposure decimal.Decimal
}

// PriceTick is one price.updated.{symbol} message after boundary parsing.
type PriceTick struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
	EventType string
}

// PositionsUpdate is one positions:{userID} message after boundary parsing.
type PositionsUpdate struct {
	Positions []Position
	Timestamp time.Time
}

// Fill is one execution report from the recent-fills collaborator.
type Fill struct {
	Symbol   string
	Side     string
	Qty      decimal.Decimal
	Price    decimal.Decimal
	FilledAt time.Time
}
