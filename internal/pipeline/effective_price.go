package pipeline

import (
	"github.com/shopspring/decimal"

	ierr "main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

// EffectivePrice computes the conservative price used for limit, notional and
// exposure math in every validation phase.
//
//   - market order: last trade price
//   - limit / stop-limit: limit price
//   - stop: max(stopPrice, lastPrice) for both buy and sell, so notional is
//     never under-counted on a gap-up or a stop-triggered market fill
func EffectivePrice(form model.OrderForm, last model.FieldSnapshot[decimal.Decimal]) (decimal.Decimal, error) {
	switch form.Type {
	case enum.OrderTypeMarket:
		if !last.HasObservation() {
			return decimal.Zero, ierr.Validation(exception.ErrOrderUnusablePrice, "no observed last trade price for market order")
		}
		return last.Value, nil

	case enum.OrderTypeLimit, enum.OrderTypeStopLimit:
		if !form.LimitPrice.IsPositive() {
			return decimal.Zero, ierr.Validation(exception.ErrOrderInvalidForm, "limit price must be positive")
		}
		return form.LimitPrice, nil

	case enum.OrderTypeStop:
		if !form.StopPrice.IsPositive() {
			return decimal.Zero, ierr.Validation(exception.ErrOrderInvalidForm, "stop price must be positive")
		}
		if !last.HasObservation() {
			return decimal.Zero, ierr.Validation(exception.ErrOrderUnusablePrice, "no observed last trade price for stop order")
		}
		if form.StopPrice.GreaterThan(last.Value) {
			return form.StopPrice, nil
		}
		return last.Value, nil

	default:
		return decimal.Zero, ierr.Validation(exception.ErrOrderInvalidForm, "unknown order type")
	}
}
