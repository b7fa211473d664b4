package market

// OrderType enumerates the order kinds a terminal reports. The numeric
// values follow the venue's wire encoding: 0/1 are market fills, everything
// above is a pending variant.
type OrderType int

const (
	OrderTypeBuy OrderType = iota
	OrderTypeSell
	OrderTypeBuyLimit
	OrderTypeSellLimit
	OrderTypeBuyStop
	OrderTypeSellStop
)

// Side is the direction of an order, independent of whether it is a market
// fill or a pending variant.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// IsMarket reports whether the type is an immediately-filled market order.
func (t OrderType) IsMarket() bool {
	return t == OrderTypeBuy || t == OrderTypeSell
}

// IsPending reports whether the type is a pending variant awaiting trigger.
func (t OrderType) IsPending() bool {
	return !t.IsMarket()
}

// Side maps an order type to its direction.
func (t OrderType) Side() Side {
	switch t {
	case OrderTypeSell, OrderTypeSellLimit, OrderTypeSellStop:
		return SideSell
	default:
		return SideBuy
	}
}

// Opposite returns the market type that closes a position of this type.
func (t OrderType) Opposite() OrderType {
	if t.Side() == SideBuy {
		return OrderTypeSell
	}
	return OrderTypeBuy
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeBuy:
		return "BUY"
	case OrderTypeSell:
		return "SELL"
	case OrderTypeBuyLimit:
		return "BUY_LIMIT"
	case OrderTypeSellLimit:
		return "SELL_LIMIT"
	case OrderTypeBuyStop:
		return "BUY_STOP"
	case OrderTypeSellStop:
		return "SELL_STOP"
	default:
		return "UNKNOWN"
	}
}
