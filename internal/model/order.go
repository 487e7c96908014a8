package model

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// OrderForm is the user-entered order as captured at preview time.
type OrderForm struct {
	Symbol      string
	Side        enum.OrderSide
	Qty         decimal.Decimal
	Type        enum.OrderType
	LimitPrice  decimal.Decimal
	StopPrice   decimal.Decimal
	TimeInForce enum.OrderTimeInForce
}

// Equal reports whether two forms describe the same order. Any single-field
// difference makes the forms distinct, which forces a fresh intent.
func (f OrderForm) Equal(other OrderForm) bool {
	return f.Symbol == other.Symbol &&
		f.Side == other.Side &&
		f.Qty.Equal(other.Qty) &&
		f.Type == other.Type &&
		f.LimitPrice.Equal(other.LimitPrice) &&
		f.StopPrice.Equal(other.StopPrice) &&
		f.TimeInForce == other.TimeInForce
}

// OrderIntent is the idempotency key for one distinct order-entry attempt.
// It is reused across retries of an unmodified form and rotated on any edit.
type OrderIntent struct {
	ID        string
	Form      OrderForm
	CreatedAt time.Time
}
