package guard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/copier/market"
	"github.com/rustyeddy/copier/terminal"
)

func defaultGuard() *Guard {
	return New(Limits{
		MaxOrdersPerSymbol: 3,
		MaxSlippagePoints:  50,
		MaxSpreadPoints:    20,
		MaxExposureLots:    10,
	}, nil)
}

func items(symbols ...string) []terminal.Item {
	var out []terminal.Item
	for i, s := range symbols {
		out = append(out, terminal.Position{Ticket: int64(i + 1), Symbol: s, Type: market.OrderTypeBuy, Volume: 0.1})
	}
	return out
}

func TestCheckOrderLimit(t *testing.T) {
	t.Parallel()

	g := defaultGuard()

	assert.Nil(t, g.CheckOrderLimit("EURUSD", items("EURUSD", "EURUSD")))
	assert.Nil(t, g.CheckOrderLimit("EURUSD", items("GBPUSD", "GBPUSD", "GBPUSD")))

	v := g.CheckOrderLimit("EURUSD", items("EURUSD", "EURUSD", "EURUSD"))
	if assert.NotNil(t, v) {
		assert.Equal(t, "ORDER_LIMIT", v.Code)
	}

	// Pending orders count toward the cap too.
	mixed := items("EURUSD", "EURUSD")
	mixed = append(mixed, terminal.PendingOrder{Ticket: 9, Symbol: "EURUSD", Type: market.OrderTypeBuyLimit})
	assert.NotNil(t, g.CheckOrderLimit("EURUSD", mixed))
}

func TestCheckSlippage(t *testing.T) {
	t.Parallel()

	g := defaultGuard()
	point := 0.00001
	tick := market.Tick{Symbol: "EURUSD", Bid: 1.10000, Ask: 1.10002}

	// 20 points off the ask: fine.
	assert.Nil(t, g.CheckSlippage(1.10022, "EURUSD", market.SideBuy, tick, point))

	// 100 points off: veto.
	v := g.CheckSlippage(1.10102, "EURUSD", market.SideBuy, tick, point)
	if assert.NotNil(t, v) {
		assert.Equal(t, "SLIPPAGE", v.Code)
	}

	// Sells compare against bid.
	assert.Nil(t, g.CheckSlippage(1.10000, "EURUSD", market.SideSell, tick, point))

	// Missing point size is a rejection, never a pass.
	assert.NotNil(t, g.CheckSlippage(1.10000, "EURUSD", market.SideBuy, tick, 0))
}

func TestCheckSlippageSymbolOverride(t *testing.T) {
	t.Parallel()

	g := New(Limits{MaxSlippagePoints: 50, MaxSpreadPoints: 20}, map[string]SymbolOverride{
		"BTCUSD": {MaxSlippagePoints: 500, MaxSpreadPoints: 300},
	})
	point := 0.01
	tick := market.Tick{Symbol: "BTCUSD.m", Bid: 65000.00, Ask: 65001.00}

	// 300 points of drift passes the override even though the global is 50.
	assert.Nil(t, g.CheckSlippage(65004.00, "BTCUSD.m", market.SideBuy, tick, point))
	assert.NotNil(t, g.CheckSlippage(65011.00, "BTCUSD.m", market.SideBuy, tick, point))

	// Wide crypto spread passes the override.
	wide := market.Tick{Symbol: "BTCUSD.m", Bid: 65000.00, Ask: 65002.50}
	assert.Nil(t, g.CheckSpread("BTCUSD.m", wide, point))
}

func TestCheckSpread(t *testing.T) {
	t.Parallel()

	g := defaultGuard()
	point := 0.00001

	assert.Nil(t, g.CheckSpread("EURUSD", market.Tick{Bid: 1.10000, Ask: 1.10015}, point))

	v := g.CheckSpread("EURUSD", market.Tick{Bid: 1.10000, Ask: 1.10030}, point)
	if assert.NotNil(t, v) {
		assert.Equal(t, "SPREAD", v.Code)
	}
}

func TestCheckMargin(t *testing.T) {
	t.Parallel()

	g := defaultGuard()

	assert.Nil(t, g.CheckMargin(100, 500, nil))
	assert.NotNil(t, g.CheckMargin(600, 500, nil))

	// Calculation failure never trades blind.
	v := g.CheckMargin(0, 500, errors.New("no tick"))
	if assert.NotNil(t, v) {
		assert.Equal(t, "MARGIN", v.Code)
	}
}

func TestCheckExposure(t *testing.T) {
	t.Parallel()

	g := defaultGuard()

	assert.Nil(t, g.CheckExposure(100, 9.99))
	assert.NotNil(t, g.CheckExposure(0, 10.0))

	// Trade-count cap is disabled by default (zero), enabled when set.
	counted := New(Limits{MaxExposureTrades: 5, MaxExposureLots: 10}, nil)
	assert.Nil(t, counted.CheckExposure(4, 1))
	v := counted.CheckExposure(5, 1)
	if assert.NotNil(t, v) {
		assert.Equal(t, "EXPOSURE", v.Code)
	}
}

func TestCheckMandatorySLAlwaysPasses(t *testing.T) {
	t.Parallel()

	g := defaultGuard()
	assert.Nil(t, g.CheckMandatorySL(0))
	assert.Nil(t, g.CheckMandatorySL(1.0950))
}

func TestCheckDrawdown(t *testing.T) {
	t.Parallel()

	// Disabled by default.
	assert.Nil(t, defaultGuard().CheckDrawdown(10000, 1))

	g := New(Limits{MaxDrawdownPercent: 10}, nil)
	assert.Nil(t, g.CheckDrawdown(10000, 9500))
	v := g.CheckDrawdown(10000, 8999)
	if assert.NotNil(t, v) {
		assert.Equal(t, "DRAWDOWN", v.Code)
	}
}
