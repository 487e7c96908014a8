package enum

// OrderSide buy, sell
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

func ParseOrderSide(s string) (OrderSide, bool) {
	switch s {
	case "BUY":
		return OrderSideBuy, true
	case "SELL":
		return OrderSideSell, true
	default:
		return 0, false
	}
}

// OrderType market, limit, stop, stop limit
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStop
	OrderTypeStopLimit
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeStopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

func ParseOrderType(s string) (OrderType, bool) {
	switch s {
	case "MARKET":
		return OrderTypeMarket, true
	case "LIMIT":
		return OrderTypeLimit, true
	case "STOP":
		return OrderTypeStop, true
	case "STOP_LIMIT":
		return OrderTypeStopLimit, true
	default:
		return 0, false
	}
}

// HasLimitPrice reports whether the order type carries a limit price.
func (t OrderType) HasLimitPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// HasStopPrice reports whether the order type carries a stop price.
func (t OrderType) HasStopPrice() bool {
	return t == OrderTypeStop || t == OrderTypeStopLimit
}

// OrderTimeInForce day, GTC, IOC, FOK
type OrderTimeInForce uint8

const (
	_order_time_in_force_beg OrderTimeInForce = iota
	OrderTimeInForceDay
	OrderTimeInForceGTC
	OrderTimeInForceIOC
	OrderTimeInForceFOK
	_order_time_in_force_end
)

func (f OrderTimeInForce) IsAvailable() bool {
	return f > _order_time_in_force_beg && f < _order_time_in_force_end
}

func (f OrderTimeInForce) String() string {
	switch f {
	case OrderTimeInForceDay:
		return "DAY"
	case OrderTimeInForceGTC:
		return "GTC"
	case OrderTimeInForceIOC:
		return "IOC"
	case OrderTimeInForceFOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

func ParseOrderTimeInForce(s string) (OrderTimeInForce, bool) {
	switch s {
	case "DAY":
		return OrderTimeInForceDay, true
	case "GTC":
		return OrderTimeInForceGTC, true
	case "IOC":
		return OrderTimeInForceIOC, true
	case "FOK":
		return OrderTimeInForceFOK, true
	default:
		return 0, false
	}
}
