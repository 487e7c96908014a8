package pipeline

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	ierr "main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/staleness"
	"main/pkg/exception"
)

// validationInput bundles the field snapshots one validation pass runs over.
// The cached phase fills it from the coordinator's market cache; the
// confirm-time phase fills it from freshly fetched data.
type validationInput struct {
	positions   model.FieldSnapshot[[]model.Position]
	lastPrice   model.FieldSnapshot[decimal.Decimal]
	buyingPower model.FieldSnapshot[decimal.Decimal]
	riskLimits  model.FieldSnapshot[model.RiskLimits]
}

// validateForm rejects structurally invalid forms before any data checks.
func validateForm(form model.OrderForm) error {
	if form.Symbol == "" {
		return ierr.Validation(exception.ErrOrderInvalidForm, "symbol is empty")
	}
	if !form.Side.IsAvailable() {
		return ierr.Validation(exception.ErrOrderInvalidForm, "order side is unknown")
	}
	if !form.Type.IsAvailable() {
		return ierr.Validation(exception.ErrOrderInvalidForm, "order type is unknown")
	}
	if !form.TimeInForce.IsAvailable() {
		return ierr.Validation(exception.ErrOrderInvalidForm, "time in force is unknown")
	}
	if !form.Qty.IsPositive() {
		return ierr.Validation(exception.ErrOrderInvalidForm, "quantity must be positive")
	}
	if form.Type.HasLimitPrice() && !form.LimitPrice.IsPositive() {
		return ierr.Validation(exception.ErrOrderInvalidForm, "limit price must be positive for "+form.Type.String())
	}
	if form.Type.HasStopPrice() && !form.StopPrice.IsPositive() {
		return ierr.Validation(exception.ErrOrderInvalidForm, "stop price must be positive for "+form.Type.String())
	}
	return nil
}

// validate runs the staleness and limit checks shared by the cached and the
// confirm-time phases. Any unusable snapshot fails the corresponding check;
// a missing value is never substituted with a default.
func (p *Pipeline) validate(form model.OrderForm, in validationInput, now time.Time) error {
	if err := p.checkFreshness(in, now); err != nil {
		return err
	}

	effPrice, err := EffectivePrice(form, in.lastPrice)
	if err != nil {
		return err
	}

	limits := in.riskLimits.Value
	current := positionQty(in.positions.Value, form.Symbol)
	proposed := proposedQty(current, form)

	if limits.MaxPosition.IsPositive() && proposed.Abs().GreaterThan(limits.MaxPosition) {
		return ierr.Validation(exception.ErrOrderPositionLimit,
			fmt.Sprintf("proposed position %s exceeds limit %s for %s", proposed, limits.MaxPosition, form.Symbol))
	}

	notional := form.Qty.Mul(effPrice)
	if limits.MaxOrderNotional.IsPositive() && notional.GreaterThan(limits.MaxOrderNotional) {
		return ierr.Validation(exception.ErrOrderNotionalLimit,
			fmt.Sprintf("order notional %s exceeds limit %s", notional, limits.MaxOrderNotional))
	}

	if form.Side == enum.OrderSideBuy && notional.GreaterThan(in.buyingPower.Value) {
		return ierr.Validation(exception.ErrOrderBuyingPower,
			fmt.Sprintf("order notional %s exceeds buying power %s", notional, in.buyingPower.Value))
	}

	if limits.MaxTotalExposure.IsPositive() {
		newTotal := ProposedExposure(in.positions.Value, form.Symbol, proposed, effPrice)
		if newTotal.GreaterThan(limits.MaxTotalExposure) {
			return ierr.Validation(exception.ErrOrderExposureLimit,
				fmt.Sprintf("proposed total exposure %s exceeds limit %s", newTotal, limits.MaxTotalExposure))
		}
	}

	return nil
}

func (p *Pipeline) checkFreshness(in validationInput, now time.Time) error {
	checks := []struct {
		name   string
		fresh  bool
		maxAge time.Duration
	}{
		{"positions", staleness.IsFresh(in.positions, p.policy.Position, now), p.policy.Position},
		{"last price", staleness.IsFresh(in.lastPrice, p.policy.Price, now), p.policy.Price},
		{"buying power", staleness.IsFresh(in.buyingPower, p.policy.BuyingPower, now), p.policy.BuyingPower},
		{"risk limits", staleness.IsFresh(in.riskLimits, p.policy.RiskLimits, now), p.policy.RiskLimits},
	}
	for _, c := range checks {
		if !c.fresh {
			return ierr.Validation(exception.ErrOrderStaleField,
				fmt.Sprintf("%s is stale or missing (max age %s); cannot verify safety", c.name, c.maxAge))
		}
	}
	return nil
}

// TotalExposure sums position notionals across the whole set.
func TotalExposure(positions []model.Position) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range positions {
		total = total.Add(pos.Notional())
	}
	return total
}

// ProposedExposure computes the total exposure after a hypothetical order via
// the identity newTotal = currentTotal - currentSymbolNotional +
// proposedSymbolNotional, with the proposed symbol notional valued at the
// order's effective price.
func ProposedExposure(positions []model.Position, symbol string, proposedQty, effPrice decimal.Decimal) decimal.Decimal {
	currentTotal := TotalExposure(positions)
	currentSymbol := decimal.Zero
	for _, pos := range positions {
		if pos.Symbol == symbol {
			currentSymbol = pos.Notional()
			break
		}
	}
	proposedSymbol := proposedQty.Abs().Mul(effPrice)
	return currentTotal.Sub(currentSymbol).Add(proposedSymbol)
}

func positionQty(positions []model.Position, symbol string) decimal.Decimal {
	for _, pos := range positions {
		if pos.Symbol == symbol {
			return pos.Qty
		}
	}
	return decimal.Zero
}

func proposedQty(current decimal.Decimal, form model.OrderForm) decimal.Decimal {
	if form.Side == enum.OrderSideSell {
		return current.Sub(form.Qty)
	}
	return current.Add(form.Qty)
}
