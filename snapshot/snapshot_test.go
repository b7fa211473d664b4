package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/copier/market"
	"github.com/rustyeddy/copier/terminal"
)

func sampleSnapshot(serverTime int64) Snapshot {
	return Snapshot{
		Positions: []MasterItem{
			{Ticket: 100, Symbol: "EURUSD", Type: market.OrderTypeBuy, Volume: 0.5, PriceOpen: 1.1, StopLoss: 1.09, TakeProfit: 1.12, OpenTimeMillis: 1700000000000},
		},
		Orders: []MasterItem{
			{Ticket: 200, Symbol: "GBPUSD", Type: market.OrderTypeSellLimit, Volume: 0.2, PriceOpen: 1.25},
		},
		ServerTimeMillis: serverTime,
	}
}

func TestContentHashIgnoresServerTime(t *testing.T) {
	t.Parallel()

	a := sampleSnapshot(1000)
	b := sampleSnapshot(2000)
	assert.Equal(t, a.ContentHash(), b.ContentHash())

	b.Positions[0].StopLoss = 1.095
	assert.NotEqual(t, a.ContentHash(), b.ContentHash())
}

func TestValid(t *testing.T) {
	t.Parallel()

	assert.True(t, sampleSnapshot(1).Valid())
	assert.False(t, sampleSnapshot(0).Valid())
}

func TestActiveTickets(t *testing.T) {
	t.Parallel()

	got := sampleSnapshot(1).ActiveTickets()
	require.Len(t, got, 2)
	assert.Equal(t, "EURUSD", got[100].Symbol)
	assert.True(t, got[200].IsPending())
	assert.False(t, got[100].IsPending())
}

func TestCapture(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1700000123456)
	positions := []terminal.Position{
		{Ticket: 1, Symbol: "EURUSD", Type: market.OrderTypeBuy, Volume: 0.1, PriceOpen: 1.1, OpenedAt: time.UnixMilli(1700000000000), Magic: 7},
	}
	orders := []terminal.PendingOrder{
		{Ticket: 2, Symbol: "USDJPY", Type: market.OrderTypeBuyStop, Volume: 0.3, PriceOpen: 150.1, PlacedAt: time.UnixMilli(1700000001000)},
	}

	snap := Capture(positions, orders, now)
	require.Len(t, snap.Positions, 1)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, int64(1700000123456), snap.ServerTimeMillis)
	assert.Equal(t, int64(1700000000000), snap.Positions[0].OpenTimeMillis)
	assert.Equal(t, int64(7), snap.Positions[0].Magic)
	assert.Equal(t, int64(1700000001000), snap.Orders[0].OpenTimeMillis)
	assert.True(t, snap.Valid())
}
