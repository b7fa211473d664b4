// Package snapshot defines the master-state document shared between the
// publisher and the reconciliation engine, and the file transport that
// carries it. The two sides never share memory; the snapshot file is the
// only coupling.
package snapshot

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rustyeddy/copier/market"
	"github.com/rustyeddy/copier/terminal"
)

// MasterItem is one open position or pending order on the master account at
// snapshot time. Identity is the master-assigned ticket; a closed item
// simply disappears from the next snapshot.
type MasterItem struct {
	Ticket         int64            `json:"ticket"`
	Symbol         string           `json:"symbol"`
	Type           market.OrderType `json:"type"`
	Volume         float64          `json:"volume"`
	PriceOpen      float64          `json:"price_open"`
	StopLoss       float64          `json:"sl"`
	TakeProfit     float64          `json:"tp"`
	OpenTimeMillis int64            `json:"time_msc"`
	Magic          int64            `json:"magic"`
}

// IsPending reports whether the item is a pending order, derived from its
// order type.
func (m MasterItem) IsPending() bool {
	return m.Type.IsPending()
}

// Snapshot is the published master state.
type Snapshot struct {
	Positions        []MasterItem `json:"positions"`
	Orders           []MasterItem `json:"orders"`
	ServerTimeMillis int64        `json:"server_time_msc"`
}

// Valid reports whether the snapshot may be acted upon. A zero server time
// marks a bad or partial read; acting on one risks mass-closing every
// follower trade.
func (s Snapshot) Valid() bool {
	return s.ServerTimeMillis != 0
}

// ContentHash fingerprints positions and orders only, excluding the server
// timestamp that changes every publish. Near-identical ticks therefore hash
// equal and real changes hash different.
func (s Snapshot) ContentHash() string {
	base := struct {
		Positions []MasterItem `json:"positions"`
		Orders    []MasterItem `json:"orders"`
	}{s.Positions, s.Orders}

	data, err := json.Marshal(base)
	if err != nil {
		return ""
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ActiveTickets returns every position and pending order keyed by master
// ticket.
func (s Snapshot) ActiveTickets() map[int64]MasterItem {
	m := make(map[int64]MasterItem, len(s.Positions)+len(s.Orders))
	for _, p := range s.Positions {
		m[p.Ticket] = p
	}
	for _, o := range s.Orders {
		m[o.Ticket] = o
	}
	return m
}

// Capture converts live terminal state into a snapshot stamped with the
// current wall clock.
func Capture(positions []terminal.Position, orders []terminal.PendingOrder, now time.Time) Snapshot {
	snap := Snapshot{
		Positions:        make([]MasterItem, 0, len(positions)),
		Orders:           make([]MasterItem, 0, len(orders)),
		ServerTimeMillis: now.UnixMilli(),
	}
	for _, p := range positions {
		snap.Positions = append(snap.Positions, MasterItem{
			Ticket:         p.Ticket,
			Symbol:         p.Symbol,
			Type:           p.Type,
			Volume:         p.Volume,
			PriceOpen:      p.PriceOpen,
			StopLoss:       p.StopLoss,
			TakeProfit:     p.TakeProfit,
			OpenTimeMillis: p.OpenedAt.UnixMilli(),
			Magic:          p.Magic,
		})
	}
	for _, o := range orders {
		snap.Orders = append(snap.Orders, MasterItem{
			Ticket:         o.Ticket,
			Symbol:         o.Symbol,
			Type:           o.Type,
			Volume:         o.Volume,
			PriceOpen:      o.PriceOpen,
			StopLoss:       o.StopLoss,
			TakeProfit:     o.TakeProfit,
			OpenTimeMillis: o.PlacedAt.UnixMilli(),
			Magic:          o.Magic,
		})
	}
	return snap
}
