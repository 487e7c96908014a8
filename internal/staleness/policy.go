package staleness

import (
	"time"

	"main/internal/model"
)

// Default max ages per field. Tunable through ops config.
const (
	DefaultPositionMaxAge    = 30 * time.Second
	DefaultPriceMaxAge       = 30 * time.Second
	DefaultBuyingPowerMaxAge = 60 * time.Second
	DefaultRiskLimitsMaxAge  = 300 * time.Second
)

// Policy holds the per-field maximum ages.
type Policy struct {
	Position    time.Duration
	Price       time.Duration
	BuyingPower time.Duration
	RiskLimits  time.Duration
}

// Default returns the stock thresholds.
func Default() Policy {
	return Policy{
		Position:    DefaultPositionMaxAge,
		Price:       DefaultPriceMaxAge,
		BuyingPower: DefaultBuyingPowerMaxAge,
		RiskLimits:  DefaultRiskLimitsMaxAge,
	}
}

// Normalized fills zero thresholds with defaults.
func (p Policy) Normalized() Policy {
	d := Default()
	if p.Position <= 0 {
		p.Position = d.Position
	}
	if p.Price <= 0 {
		p.Price = d.Price
	}
	if p.BuyingPower <= 0 {
		p.BuyingPower = d.BuyingPower
	}
	if p.RiskLimits <= 0 {
		p.RiskLimits = d.RiskLimits
	}
	return p
}

// IsFresh reports whether the snapshot is usable under maxAge at now.
// A snapshot without an observation time is never fresh. Age exactly equal
// to maxAge is still fresh.
func IsFresh[T any](s model.FieldSnapshot[T], maxAge time.Duration, now time.Time) bool {
	if !s.HasObservation() {
		return false
	}
	return now.Sub(s.ObservedAt) <= maxAge
}
