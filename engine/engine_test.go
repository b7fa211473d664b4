package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/copier/config"
	"github.com/rustyeddy/copier/ledger"
	"github.com/rustyeddy/copier/market"
	"github.com/rustyeddy/copier/snapshot"
	"github.com/rustyeddy/copier/terminal"
	"github.com/rustyeddy/copier/terminal/sim"
)

const (
	followerLogin  = int64(201)
	follower2Login = int64(202)
)

func newTestEngine(t *testing.T, mutate ...func(*config.Config)) (*Engine, *sim.Terminal, *config.Config) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.System.SnapshotPath = filepath.Join(dir, "master_state.json")
	cfg.Ledger.Path = filepath.Join(dir, "copied_trades.json")
	cfg.Master = config.Account{Login: 100, Password: "pw", Server: "sim"}
	cfg.Followers = []config.Follower{
		{Account: config.Account{Login: followerLogin, Password: "pw", Server: "sim"}},
	}
	for _, m := range mutate {
		m(cfg)
	}

	gw := sim.New()
	gw.SetSymbolInfo(market.SymbolInfo{
		Name: "EURUSD", Point: 0.0001, Digits: 5,
		FillingModes: market.FillingIOC | market.FillingFOK,
		ContractSize: 100000, VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01,
	})
	gw.SetTick(market.Tick{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1001})

	led, err := ledger.NewFile(cfg.Ledger.Path)
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })

	return New(cfg, gw, led, snapshot.NewStore(cfg.System.SnapshotPath)), gw, cfg
}

func masterPos(ticket int64, volume float64) snapshot.MasterItem {
	return snapshot.MasterItem{
		Ticket: ticket, Symbol: "EURUSD", Type: market.OrderTypeBuy, Volume: volume,
		PriceOpen: 1.1001, OpenTimeMillis: time.Now().UnixMilli(), Magic: 555,
	}
}

func writeSnap(t *testing.T, e *Engine, snap snapshot.Snapshot) {
	t.Helper()
	if snap.ServerTimeMillis == 0 {
		snap.ServerTimeMillis = time.Now().UnixMilli()
	}
	require.NoError(t, e.store.Write(snap))
}

func copiedPosition(cfg *config.Config, masterTicket int64, volume float64) terminal.Position {
	return terminal.Position{
		Symbol: "EURUSD", Type: market.OrderTypeBuy, Volume: volume, PriceOpen: 1.1001,
		OpenedAt: time.Now(), Magic: cfg.Copy.MagicNumber,
		Comment: fmt.Sprintf("%s%d", cfg.Copy.CommentPrefix, masterTicket),
	}
}

func TestOpenCopiesMasterPosition(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t)
	ctx := context.Background()

	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{masterPos(1, 0.10)}})
	e.RunCycle(ctx)

	positions := gw.PositionsOf(followerLogin)
	require.Len(t, positions, 1)
	assert.Equal(t, "EURUSD", positions[0].Symbol)
	assert.Equal(t, market.OrderTypeBuy, positions[0].Type)
	assert.Equal(t, 0.10, positions[0].Volume)
	assert.Equal(t, cfg.Copy.MagicNumber, positions[0].Magic)
	assert.Equal(t, "COPY_1", positions[0].Comment)

	rec, ok, err := e.ledger.Get(1, followerLogin)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, positions[0].Ticket, rec.FollowerTicket)
	assert.Equal(t, ledger.StatusOpen, rec.Status)
}

func TestOpenIsIdempotentAcrossResyncs(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t)
	ctx := context.Background()

	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{masterPos(1, 0.10)}})
	e.RunCycle(ctx)
	require.Len(t, gw.PositionsOf(followerLogin), 1)

	// Force a timer resync against the unchanged snapshot.
	e.lastSyncTime = time.Time{}
	e.RunCycle(ctx)
	assert.Len(t, gw.PositionsOf(followerLogin), 1)
}

func TestUnchangedSnapshotSkipsSync(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t)
	ctx := context.Background()

	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{masterPos(1, 0.10)}})
	e.RunCycle(ctx)
	sent := len(gw.Requests)

	e.RunCycle(ctx)
	assert.Len(t, gw.Requests, sent, "no gateway traffic without change or timer")
}

func TestZeroServerTimePreventsMassClose(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t)
	ctx := context.Background()

	gw.AddPosition(followerLogin, copiedPosition(cfg, 1, 0.10))

	// A snapshot with zero server time and an empty book is what a dead
	// publisher produces. It must never be treated as "master closed all".
	require.NoError(t, e.store.Write(snapshot.Snapshot{}))

	e.RunCycle(ctx)
	assert.Len(t, gw.PositionsOf(followerLogin), 1)
	assert.Empty(t, gw.Requests)
}

func TestLatencyGuardRejectsStaleMarketFill(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t)
	ctx := context.Background()

	stale := masterPos(1, 0.10)
	stale.OpenTimeMillis = time.Now().Add(-15 * time.Second).UnixMilli()
	fresh := masterPos(2, 0.10)
	fresh.OpenTimeMillis = time.Now().Add(-5 * time.Second).UnixMilli()

	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{stale, fresh}})
	e.RunCycle(ctx)

	positions := gw.PositionsOf(followerLogin)
	require.Len(t, positions, 1)
	assert.Equal(t, "COPY_2", positions[0].Comment)
}

func TestLatencyGuardIgnoresPendingOrders(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t)
	ctx := context.Background()

	limit := snapshot.MasterItem{
		Ticket: 7, Symbol: "EURUSD", Type: market.OrderTypeBuyLimit, Volume: 0.10,
		PriceOpen: 1.0500, OpenTimeMillis: time.Now().Add(-time.Hour).UnixMilli(),
	}
	writeSnap(t, e, snapshot.Snapshot{Orders: []snapshot.MasterItem{limit}})
	e.RunCycle(ctx)

	orders := gw.PendingOf(followerLogin)
	require.Len(t, orders, 1)
	assert.Equal(t, market.OrderTypeBuyLimit, orders[0].Type)
	assert.Equal(t, 1.0500, orders[0].PriceOpen)
}

func TestOrderLimitBlocksFourthCopy(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t)
	ctx := context.Background()

	items := make([]snapshot.MasterItem, 0, 4)
	for ticket := int64(1); ticket <= 3; ticket++ {
		p := copiedPosition(cfg, ticket, 0.10)
		followerTicket := gw.AddPosition(followerLogin, p)
		require.NoError(t, e.ledger.Upsert(ledger.CopyRecord{
			MasterTicket: ticket, FollowerTicket: followerTicket,
			FollowerLogin: followerLogin, Symbol: "EURUSD",
		}))
		items = append(items, masterPos(ticket, 0.10))
	}
	items = append(items, masterPos(4, 0.10))

	writeSnap(t, e, snapshot.Snapshot{Positions: items})
	e.RunCycle(ctx)

	assert.Len(t, gw.PositionsOf(followerLogin), 3)
	_, ok, err := e.ledger.Get(4, followerLogin)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSanitizerClosesNewestBeyondLimit(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t)
	ctx := context.Background()

	items := make([]snapshot.MasterItem, 0, 5)
	kept := make([]int64, 0, 3)
	for ticket := int64(1); ticket <= 5; ticket++ {
		p := copiedPosition(cfg, ticket, 0.10)
		followerTicket := gw.AddPosition(followerLogin, p)
		require.NoError(t, e.ledger.Upsert(ledger.CopyRecord{
			MasterTicket: ticket, FollowerTicket: followerTicket,
			FollowerLogin: followerLogin, Symbol: "EURUSD",
		}))
		if ticket <= 3 {
			kept = append(kept, followerTicket)
		}
		items = append(items, masterPos(ticket, 0.10))
	}

	writeSnap(t, e, snapshot.Snapshot{Positions: items})
	e.RunCycle(ctx)

	positions := gw.PositionsOf(followerLogin)
	require.Len(t, positions, 3)
	survivors := make([]int64, 0, 3)
	for _, p := range positions {
		survivors = append(survivors, p.Ticket)
	}
	assert.ElementsMatch(t, kept, survivors, "oldest tickets survive the sanitizer")
}

func TestStrictCleanupClosesManualAndAlienTrades(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t)
	ctx := context.Background()

	manual := copiedPosition(cfg, 0, 0.10)
	manual.Magic, manual.Comment = 0, "my own trade"
	gw.AddPosition(followerLogin, manual)

	alien := copiedPosition(cfg, 0, 0.10)
	alien.Magic, alien.Comment = 999999, "other bot"
	gw.AddPosition(followerLogin, alien)

	writeSnap(t, e, snapshot.Snapshot{})
	e.RunCycle(ctx)

	assert.Empty(t, gw.PositionsOf(followerLogin))
}

func TestStrictCleanupDisabledLeavesUntaggedTrades(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t, func(cfg *config.Config) {
		cfg.Copy.StrictCleanup = false
	})
	ctx := context.Background()

	manual := copiedPosition(cfg, 0, 0.10)
	manual.Magic, manual.Comment = 0, "my own trade"
	gw.AddPosition(followerLogin, manual)

	writeSnap(t, e, snapshot.Snapshot{})
	e.RunCycle(ctx)

	assert.Len(t, gw.PositionsOf(followerLogin), 1)
}

func TestStrictCleanupClosesStaleCopierTrade(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t)
	ctx := context.Background()

	// Tagged with our magic and a comment pointing at a master ticket the
	// snapshot no longer carries, and with no ledger record either.
	stale := copiedPosition(cfg, 42, 0.10)
	gw.AddPosition(followerLogin, stale)

	writeSnap(t, e, snapshot.Snapshot{})
	e.RunCycle(ctx)

	assert.Empty(t, gw.PositionsOf(followerLogin))
}

func TestVanishedMasterTradeClosesOnFollower(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t)
	ctx := context.Background()

	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{masterPos(1, 0.10)}})
	e.RunCycle(ctx)
	require.Len(t, gw.PositionsOf(followerLogin), 1)

	writeSnap(t, e, snapshot.Snapshot{})
	e.RunCycle(ctx)

	assert.Empty(t, gw.PositionsOf(followerLogin))
	rec, ok, err := e.ledger.Get(1, followerLogin)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusClosed, rec.Status)
}

func TestHistoryFallbackRetiresAlreadyClosedCopy(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t)
	ctx := context.Background()

	// The copy hit its stop between syncs: record is OPEN, live book is
	// empty, and the venue history has the closing deal.
	require.NoError(t, e.ledger.Upsert(ledger.CopyRecord{
		MasterTicket: 1, FollowerTicket: 5001, FollowerLogin: followerLogin,
		Symbol: "EURUSD", Side: "BUY", Volume: 0.10,
	}))
	gw.AddDeal(followerLogin, terminal.Deal{
		Ticket: 6001, Order: 5001, Symbol: "EURUSD", Type: market.OrderTypeSell,
		Volume: 0.10, Price: 1.0900, Time: time.Now().Add(-10 * time.Minute),
		Magic: cfg.Copy.MagicNumber, Comment: e.commentFor(1),
	})

	writeSnap(t, e, snapshot.Snapshot{})
	e.RunCycle(ctx)

	rec, ok, err := e.ledger.Get(1, followerLogin)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusClosed, rec.Status)
}

func TestFollowerFailureIsIsolated(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t, func(cfg *config.Config) {
		cfg.Followers = append(cfg.Followers, config.Follower{
			Account: config.Account{Login: follower2Login, Password: "pw", Server: "sim"},
		})
	})
	ctx := context.Background()

	gw.FailConnect(followerLogin, assert.AnError)

	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{masterPos(1, 0.10)}})
	e.RunCycle(ctx)

	assert.Empty(t, gw.PositionsOf(followerLogin))
	assert.Len(t, gw.PositionsOf(follower2Login), 1)
}

func TestDrawdownTripsBlacklistAndFlattens(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t, func(cfg *config.Config) {
		cfg.Copy.MaxDrawdownPercent = 20
	})
	ctx := context.Background()

	gw.SetAccount(terminal.Account{
		Login: followerLogin, Currency: "USD",
		Balance: 10000, Equity: 7000, MarginFree: 7000, Leverage: 100,
	})
	gw.AddPosition(followerLogin, copiedPosition(cfg, 1, 0.10))

	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{masterPos(1, 0.10)}})
	e.RunCycle(ctx)

	assert.Empty(t, gw.PositionsOf(followerLogin), "book flattened on drawdown trip")
	assert.True(t, e.blacklist[followerLogin])

	// Subsequent master activity is ignored for a blacklisted follower.
	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{masterPos(2, 0.20)}})
	e.RunCycle(ctx)
	assert.Empty(t, gw.PositionsOf(followerLogin))
}

func TestRelinkBackfillsLedgerForUnrecordedCopy(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t)
	ctx := context.Background()

	// Crash between SendOrder and the ledger write leaves a live copy the
	// ledger never heard of.
	orphan := copiedPosition(cfg, 1, 0.10)
	orphanTicket := gw.AddPosition(followerLogin, orphan)

	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{masterPos(1, 0.10)}})
	e.RunCycle(ctx)

	assert.Len(t, gw.PositionsOf(followerLogin), 1, "no duplicate order placed")
	rec, ok, err := e.ledger.Get(1, followerLogin)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orphanTicket, rec.FollowerTicket)
}

func TestProportionalSizingScalesByEquity(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t, func(cfg *config.Config) {
		cfg.Copy.Mode = market.CopyProportional
	})
	ctx := context.Background()

	gw.SetAccount(terminal.Account{
		Login: followerLogin, Currency: "USD",
		Balance: 5000, Equity: 5000, MarginFree: 5000, Leverage: 100,
	})

	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{masterPos(1, 1.0)}})
	e.RunCycle(ctx)

	positions := gw.PositionsOf(followerLogin)
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.50, positions[0].Volume, 1e-9)
}

func TestPendingOrderSLTPChangeIsMirrored(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t)
	ctx := context.Background()

	limit := snapshot.MasterItem{
		Ticket: 7, Symbol: "EURUSD", Type: market.OrderTypeSellLimit, Volume: 0.10,
		PriceOpen: 1.2000, OpenTimeMillis: time.Now().UnixMilli(),
	}
	writeSnap(t, e, snapshot.Snapshot{Orders: []snapshot.MasterItem{limit}})
	e.RunCycle(ctx)
	require.Len(t, gw.PendingOf(followerLogin), 1)

	limit.StopLoss, limit.TakeProfit = 1.2500, 1.1500
	writeSnap(t, e, snapshot.Snapshot{Orders: []snapshot.MasterItem{limit}})
	e.RunCycle(ctx)

	orders := gw.PendingOf(followerLogin)
	require.Len(t, orders, 1)
	assert.Equal(t, 1.2500, orders[0].StopLoss)
	assert.Equal(t, 1.1500, orders[0].TakeProfit)
	assert.Equal(t, 1.2000, orders[0].PriceOpen, "trigger price untouched by a stop change")
}

func TestPositionSLTPChangeIsMirrored(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t)
	ctx := context.Background()

	pos := masterPos(1, 0.10)
	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{pos}})
	e.RunCycle(ctx)

	pos.StopLoss = 1.0900
	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{pos}})
	e.RunCycle(ctx)

	positions := gw.PositionsOf(followerLogin)
	require.Len(t, positions, 1)
	assert.Equal(t, 1.0900, positions[0].StopLoss)
}

func TestRejectedOrderLeavesNoRecordAndRetries(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t)
	ctx := context.Background()

	gw.ForceNextRetcode(terminal.RetcodeNoMoney)
	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{masterPos(1, 0.10)}})
	e.RunCycle(ctx)

	assert.Empty(t, gw.PositionsOf(followerLogin))
	_, ok, err := e.ledger.Get(1, followerLogin)
	require.NoError(t, err)
	assert.False(t, ok)

	// Next resync retries from scratch.
	e.lastSyncTime = time.Time{}
	e.RunCycle(ctx)
	assert.Len(t, gw.PositionsOf(followerLogin), 1)
}

func TestUnknownSymbolIsSkipped(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t)
	ctx := context.Background()

	exotic := masterPos(1, 0.10)
	exotic.Symbol = "XAUUSD"
	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{exotic}})
	e.RunCycle(ctx)

	assert.Empty(t, gw.PositionsOf(followerLogin))
}

func TestUnknownSymbolAbortsBeforeRelink(t *testing.T) {
	t.Parallel()
	e, gw, cfg := newTestEngine(t)
	ctx := context.Background()

	// An orphan copy exists, but the master symbol cannot be activated on
	// the follower. Symbol selection aborts the item before the relink scan
	// can backfill the ledger.
	orphan := copiedPosition(cfg, 1, 0.10)
	orphan.Symbol = "XAUUSD"
	gw.AddPosition(followerLogin, orphan)

	exotic := masterPos(1, 0.10)
	exotic.Symbol = "XAUUSD"
	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{exotic}})
	e.RunCycle(ctx)

	_, ok, err := e.ledger.Get(1, followerLogin)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSymbolAliasIsApplied(t *testing.T) {
	t.Parallel()
	e, gw, _ := newTestEngine(t, func(cfg *config.Config) {
		cfg.Symbols.Aliases = map[string]string{"GOLD": "EURUSD"}
	})
	ctx := context.Background()

	aliased := masterPos(1, 0.10)
	aliased.Symbol = "GOLD"
	writeSnap(t, e, snapshot.Snapshot{Positions: []snapshot.MasterItem{aliased}})
	e.RunCycle(ctx)

	positions := gw.PositionsOf(followerLogin)
	require.Len(t, positions, 1)
	assert.Equal(t, "EURUSD", positions[0].Symbol)
}
