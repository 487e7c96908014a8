package pipeline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEffectivePriceStopIsConservative(t *testing.T) {
	last := model.Observed(d("105"), time.Now())

	for _, side := range []enum.OrderSide{enum.OrderSideBuy, enum.OrderSideSell} {
		form := model.OrderForm{
			Symbol:    "AAPL",
			Side:      side,
			Qty:       d("10"),
			Type:      enum.OrderTypeStop,
			StopPrice: d("100"),
		}
		price, err := EffectivePrice(form, last)
		require.NoError(t, err)
		assert.True(t, price.Equal(d("105")), "stop effective price must be max(stop,last) for %s", side)
	}

	// stop above last wins
	form := model.OrderForm{Symbol: "AAPL", Side: enum.OrderSideBuy, Qty: d("10"), Type: enum.OrderTypeStop, StopPrice: d("110")}
	price, err := EffectivePrice(form, last)
	require.NoError(t, err)
	assert.True(t, price.Equal(d("110")))
}

func TestEffectivePriceByType(t *testing.T) {
	last := model.Observed(d("50"), time.Now())

	limit := model.OrderForm{Type: enum.OrderTypeLimit, LimitPrice: d("49.5")}
	price, err := EffectivePrice(limit, last)
	require.NoError(t, err)
	assert.True(t, price.Equal(d("49.5")))

	stopLimit := model.OrderForm{Type: enum.OrderTypeStopLimit, LimitPrice: d("51"), StopPrice: d("50.5")}
	price, err = EffectivePrice(stopLimit, last)
	require.NoError(t, err)
	assert.True(t, price.Equal(d("51")), "stop-limit uses the limit price")

	market := model.OrderForm{Type: enum.OrderTypeMarket}
	price, err = EffectivePrice(market, last)
	require.NoError(t, err)
	assert.True(t, price.Equal(d("50")))
}

func TestEffectivePriceFailsClosedWithoutLastPrice(t *testing.T) {
	absent := model.Absent[decimal.Decimal]()

	_, err := EffectivePrice(model.OrderForm{Type: enum.OrderTypeMarket}, absent)
	assert.ErrorIs(t, err, exception.ErrOrderUnusablePrice)

	_, err = EffectivePrice(model.OrderForm{Type: enum.OrderTypeStop, StopPrice: d("100")}, absent)
	assert.ErrorIs(t, err, exception.ErrOrderUnusablePrice)

	// limit orders do not need a last price
	_, err = EffectivePrice(model.OrderForm{Type: enum.OrderTypeLimit, LimitPrice: d("10")}, absent)
	assert.NoError(t, err)
}
