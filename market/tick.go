package market

// Tick is a single bid/ask quote for one symbol.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
}

// Mid returns the midpoint between bid and ask.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread returns the raw ask-bid distance in price terms.
func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// PriceFor returns the execution price for a given side: buys fill at ask,
// sells at bid.
func (t Tick) PriceFor(s Side) float64 {
	if s == SideSell {
		return t.Bid
	}
	return t.Ask
}

// FillingMode is a bitmask of order filling policies a symbol supports.
type FillingMode int

const (
	FillingFOK FillingMode = 1 << iota // fill-or-kill
	FillingIOC                         // immediate-or-cancel
)

func (f FillingMode) String() string {
	switch f {
	case FillingIOC:
		return "IOC"
	case FillingFOK:
		return "FOK"
	default:
		return "NONE"
	}
}

// SymbolInfo carries the venue metadata needed to size and price orders.
type SymbolInfo struct {
	Name         string
	Point        float64 // smallest price increment
	Digits       int
	FillingModes FillingMode // supported modes, bitmask
	ContractSize float64
	VolumeMin    float64
	VolumeMax    float64
	VolumeStep   float64
}

// NegotiateFilling picks an execution policy from the symbol's supported
// modes: immediate-or-cancel when available, fill-or-kill otherwise.
func NegotiateFilling(supported FillingMode) FillingMode {
	if supported&FillingIOC != 0 {
		return FillingIOC
	}
	return FillingFOK
}

// PointsBetween returns the absolute distance between two prices expressed
// in symbol points. A zero or negative point size yields zero so callers can
// treat unusable metadata as "no measurable distance" and reject upstream.
func PointsBetween(a, b, point float64) float64 {
	if point <= 0 {
		return 0
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return d / point
}
