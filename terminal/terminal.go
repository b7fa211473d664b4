package terminal

import (
	"context"
	"time"

	"github.com/rustyeddy/copier/market"
)

// Credentials identify one venue account and how to reach it.
type Credentials struct {
	Login    int64
	Password string
	Server   string
	Path     string // optional terminal install path
}

// Account is the live financial state of the connected account.
type Account struct {
	Login      int64
	Currency   string
	Balance    float64
	Equity     float64
	MarginUsed float64
	MarginFree float64
	Leverage   int64
}

// Gateway is the capability surface of a trading venue terminal. One gateway
// handle is connected to a single account at a time; Connect switches
// accounts, tearing down any previous session.
type Gateway interface {
	Connect(ctx context.Context, creds Credentials) error
	AccountInfo(ctx context.Context) (Account, error)
	Positions(ctx context.Context) ([]Position, error)
	PendingOrders(ctx context.Context) ([]PendingOrder, error)
	HistoryDeals(ctx context.Context, from, to time.Time, symbolFilter string) ([]Deal, error)
	SymbolSelect(ctx context.Context, symbol string) error
	SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error)
	Tick(ctx context.Context, symbol string) (market.Tick, error)
	SendOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	Shutdown(ctx context.Context) error
}

// Position is an open market position on the connected account.
type Position struct {
	Ticket     int64
	Symbol     string
	Type       market.OrderType // always a market type
	Volume     float64
	PriceOpen  float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   time.Time
	Magic      int64
	Comment    string
}

// PendingOrder is an order awaiting its trigger condition.
type PendingOrder struct {
	Ticket     int64
	Symbol     string
	Type       market.OrderType // always a pending variant
	Volume     float64
	PriceOpen  float64
	StopLoss   float64
	TakeProfit float64
	PlacedAt   time.Time
	Magic      int64
	Comment    string
}

// Item is the view shared by positions and pending orders. It exists so the
// reconciliation cleanup can scan one list without sniffing struct fields;
// the concrete kind stays explicit via IsPending.
type Item interface {
	ItemTicket() int64
	ItemSymbol() string
	ItemType() market.OrderType
	ItemVolume() float64
	ItemStopLoss() float64
	ItemTakeProfit() float64
	ItemMagic() int64
	ItemComment() string
	IsPending() bool
}

func (p Position) ItemTicket() int64          { return p.Ticket }
func (p Position) ItemSymbol() string         { return p.Symbol }
func (p Position) ItemType() market.OrderType { return p.Type }
func (p Position) ItemVolume() float64        { return p.Volume }
func (p Position) ItemStopLoss() float64      { return p.StopLoss }
func (p Position) ItemTakeProfit() float64    { return p.TakeProfit }
func (p Position) ItemMagic() int64           { return p.Magic }
func (p Position) ItemComment() string        { return p.Comment }
func (p Position) IsPending() bool            { return false }

func (o PendingOrder) ItemTicket() int64          { return o.Ticket }
func (o PendingOrder) ItemSymbol() string         { return o.Symbol }
func (o PendingOrder) ItemType() market.OrderType { return o.Type }
func (o PendingOrder) ItemVolume() float64        { return o.Volume }
func (o PendingOrder) ItemStopLoss() float64      { return o.StopLoss }
func (o PendingOrder) ItemTakeProfit() float64    { return o.TakeProfit }
func (o PendingOrder) ItemMagic() int64           { return o.Magic }
func (o PendingOrder) ItemComment() string        { return o.Comment }
func (o PendingOrder) IsPending() bool            { return true }

// Items flattens positions and pending orders into one scan list.
func Items(positions []Position, orders []PendingOrder) []Item {
	out := make([]Item, 0, len(positions)+len(orders))
	for _, p := range positions {
		out = append(out, p)
	}
	for _, o := range orders {
		out = append(out, o)
	}
	return out
}

// Deal is a historical execution record, used to confirm broker-side closes.
type Deal struct {
	Ticket   int64
	Order    int64
	Symbol   string
	Type     market.OrderType
	Volume   float64
	Price    float64
	Time     time.Time
	Magic    int64
	Comment  string
}
