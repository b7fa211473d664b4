package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/copier/config"
	"github.com/rustyeddy/copier/ledger"
	"github.com/rustyeddy/copier/market"
	"github.com/rustyeddy/copier/metrics"
	"github.com/rustyeddy/copier/snapshot"
	"github.com/rustyeddy/copier/terminal"
)

// syncFollower converges one follower onto the snapshot. The step order is
// fixed and load-bearing: sanitize local duplicates, open what is new, sync
// stop/target changes, close what vanished, then strict-sweep the remainder.
func (e *Engine) syncFollower(ctx context.Context, follower config.Follower, snap snapshot.Snapshot) error {
	if err := e.gw.Connect(ctx, follower.Credentials()); err != nil {
		return fmt.Errorf("connect follower %d: %w", follower.Login, err)
	}

	acct, err := e.gw.AccountInfo(ctx)
	if err != nil {
		// Sizing and margin checks will fail safe on a zero account.
		logrus.WithError(err).WithField("login", follower.Login).Error("failed to read follower account info")
	}

	if v := e.guard.CheckDrawdown(acct.Balance, acct.Equity); v != nil {
		e.blacklist[follower.Login] = true
		e.emergencyStop(ctx, follower.Login)
		return fmt.Errorf("follower %d: %s", follower.Login, v)
	}

	positions, err := e.gw.Positions(ctx)
	if err != nil {
		return fmt.Errorf("read follower positions: %w", err)
	}
	orders, err := e.gw.PendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("read follower pending orders: %w", err)
	}
	live := terminal.Items(positions, orders)

	// 1. Duplicate sanitizer, independent of master state.
	e.sanitizeOrderLimit(ctx, follower.Login, live)

	// 2+3. Open new master items, sync SL/TP on already-copied ones.
	// Positions first, then pending orders, in snapshot order.
	for _, item := range append(append([]snapshot.MasterItem{}, snap.Positions...), snap.Orders...) {
		rec, ok, err := e.ledger.Get(item.Ticket, follower.Login)
		if err != nil {
			logrus.WithError(err).WithField("master_ticket", item.Ticket).Error("ledger lookup failed")
			continue
		}
		if !ok {
			e.executeOpen(ctx, item, follower, acct, live)
			continue
		}
		if rec.Status == ledger.StatusOpen {
			e.syncModifications(ctx, item, rec, live)
		}
	}

	// 4. Close everything the master no longer holds.
	active := snap.ActiveTickets()
	open, err := e.ledger.ListOpen(follower.Login)
	if err != nil {
		return fmt.Errorf("list open records: %w", err)
	}
	for _, rec := range open {
		if _, still := active[rec.MasterTicket]; still {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"master_ticket": rec.MasterTicket,
			"login":         follower.Login,
		}).Info("trade closed on master, closing on follower")
		e.executeClose(ctx, rec, live)
	}

	// 5. Strict cleanup over fresh live state, since steps above mutated it.
	positions, err = e.gw.Positions(ctx)
	if err != nil {
		return fmt.Errorf("re-read follower positions: %w", err)
	}
	orders, err = e.gw.PendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("re-read follower pending orders: %w", err)
	}
	e.strictCleanup(ctx, active, terminal.Items(positions, orders))

	return nil
}

// sanitizeOrderLimit force-closes the newest items beyond the per-symbol
// cap. This runs before anything else: a breached cap means local state is
// already violating policy, whatever the master looks like.
func (e *Engine) sanitizeOrderLimit(ctx context.Context, login int64, live []terminal.Item) {
	limit := e.guard.Limits().MaxOrdersPerSymbol
	bySymbol := make(map[string][]terminal.Item)
	for _, it := range live {
		bySymbol[it.ItemSymbol()] = append(bySymbol[it.ItemSymbol()], it)
	}

	for symbol, group := range bySymbol {
		if len(group) <= limit {
			continue
		}
		// Oldest tickets survive.
		sort.Slice(group, func(i, j int) bool { return group[i].ItemTicket() < group[j].ItemTicket() })
		excess := group[limit:]

		logrus.WithFields(logrus.Fields{
			"symbol":  symbol,
			"login":   login,
			"count":   len(group),
			"max":     limit,
			"closing": len(excess),
		}).Error("limit violation, closing excess orders")

		for _, it := range excess {
			e.closeItem(ctx, it, "limit_violation")
		}
	}
}

// strictCleanup closes every live item the current master snapshot does not
// sanction. Copier-tagged items must carry a parseable comment pointing at
// an active master ticket; anything else is stale or corrupt and gets
// closed. Manual and foreign-bot items are closed too when strict mode owns
// the account.
func (e *Engine) strictCleanup(ctx context.Context, active map[int64]snapshot.MasterItem, live []terminal.Item) {
	magic := e.cfg.Copy.MagicNumber

	for _, it := range live {
		log := logrus.WithFields(logrus.Fields{
			"ticket": it.ItemTicket(),
			"symbol": it.ItemSymbol(),
			"magic":  it.ItemMagic(),
		})

		switch {
		case it.ItemMagic() == magic:
			masterTicket, err := e.parseComment(it.ItemComment())
			if err != nil {
				// Corrupt linkage: fail safe and close.
				log.WithError(err).Warn("strict cleanup: copier order with invalid comment, closing")
				e.closeItem(ctx, it, "strict_cleanup")
				continue
			}
			if _, ok := active[masterTicket]; !ok {
				log.WithField("master_ticket", masterTicket).Info("strict cleanup: not in master active list, closing")
				e.closeItem(ctx, it, "strict_cleanup")
			}

		case !e.cfg.Copy.StrictCleanup:
			// Shared-account mode: leave untagged orders alone.

		case it.ItemMagic() == 0:
			log.Warn("strict cleanup: manual trade on follower, closing to match master")
			e.closeItem(ctx, it, "strict_cleanup")

		default:
			log.Warn("strict cleanup: alien trade on follower, closing")
			e.closeItem(ctx, it, "strict_cleanup")
		}
	}
}

// emergencyStop flattens the follower's whole book after a drawdown trip.
func (e *Engine) emergencyStop(ctx context.Context, login int64) {
	positions, err := e.gw.Positions(ctx)
	if err != nil {
		logrus.WithError(err).Error("emergency stop: cannot read positions")
		return
	}
	orders, err := e.gw.PendingOrders(ctx)
	if err != nil {
		logrus.WithError(err).Error("emergency stop: cannot read pending orders")
		orders = nil
	}
	for _, it := range terminal.Items(positions, orders) {
		e.closeItem(ctx, it, "drawdown")
	}
}

// closeItem closes a position or removes a pending order, whichever the
// item is.
func (e *Engine) closeItem(ctx context.Context, it terminal.Item, reason string) {
	if it.IsPending() {
		e.removePending(ctx, it.ItemTicket(), reason)
		return
	}
	e.closePosition(ctx, it.ItemTicket(), it.ItemSymbol(), it.ItemType(), it.ItemVolume(), reason)
}

// closePosition sends the opposite-side deal that flattens a position.
func (e *Engine) closePosition(ctx context.Context, ticket int64, symbol string, typ market.OrderType, volume float64, reason string) {
	tick, err := e.gw.Tick(ctx, symbol)
	if err != nil {
		logrus.WithError(err).WithField("ticket", ticket).Error("cannot close position, no tick")
		return
	}
	info, err := e.gw.SymbolInfo(ctx, symbol)
	if err != nil {
		logrus.WithError(err).WithField("ticket", ticket).Error("cannot close position, no symbol info")
		return
	}

	opposite := typ.Opposite()
	res, err := e.gw.SendOrder(ctx, terminal.OrderRequest{
		Action:    terminal.ActionDeal,
		Symbol:    symbol,
		Volume:    volume,
		Type:      opposite,
		Position:  ticket,
		Price:     tick.PriceFor(opposite.Side()),
		Deviation: int(e.cfg.Copy.MaxSlippagePoints),
		Magic:     e.cfg.Copy.MagicNumber,
		Comment:   "COPY_CLOSE",
		TimeType:  terminal.TimeGTC,
		Filling:   market.NegotiateFilling(info.FillingModes),
	})
	if err != nil {
		logrus.WithError(err).WithField("ticket", ticket).Error("close order failed")
		return
	}
	if !res.OK() {
		logrus.WithFields(logrus.Fields{
			"ticket":  ticket,
			"retcode": int(res.Retcode),
			"comment": res.Comment,
		}).Error("failed to close trade")
		return
	}
	metrics.Closes.WithLabelValues(reason).Inc()
	logrus.WithFields(logrus.Fields{"ticket": ticket, "reason": reason}).Info("closed trade on follower")
}

// removePending cancels a pending order.
func (e *Engine) removePending(ctx context.Context, ticket int64, reason string) {
	res, err := e.gw.SendOrder(ctx, terminal.OrderRequest{
		Action: terminal.ActionRemove,
		Order:  ticket,
	})
	if err != nil {
		logrus.WithError(err).WithField("ticket", ticket).Error("remove order failed")
		return
	}
	if !res.OK() {
		logrus.WithFields(logrus.Fields{
			"ticket":  ticket,
			"retcode": int(res.Retcode),
		}).Error("failed to remove pending order")
		return
	}
	metrics.Closes.WithLabelValues(reason).Inc()
	logrus.WithFields(logrus.Fields{"ticket": ticket, "reason": reason}).Info("removed pending order on follower")
}
