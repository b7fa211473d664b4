package engine

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/copier/ledger"
	"github.com/rustyeddy/copier/metrics"
	"github.com/rustyeddy/copier/snapshot"
	"github.com/rustyeddy/copier/terminal"
)

// historyLookback bounds the deal-history scan when a copied trade is gone
// from the live book. Stops and targets fire between ticks; two hours is
// generous for the window between syncs.
const historyLookback = 2 * time.Hour

const priceEpsilon = 1e-6

// syncModifications pushes the master's current stop loss and take profit
// onto the follower's copy when they drift apart.
func (e *Engine) syncModifications(ctx context.Context, item snapshot.MasterItem, rec ledger.CopyRecord, live []terminal.Item) {
	var target terminal.Item
	for _, it := range live {
		if it.ItemTicket() == rec.FollowerTicket {
			target = it
			break
		}
	}
	if target == nil {
		// Gone from the live book; the close/cleanup passes own that case.
		return
	}

	if samePrice(target.ItemStopLoss(), item.StopLoss) && samePrice(target.ItemTakeProfit(), item.TakeProfit) {
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"master_ticket":   item.Ticket,
		"follower_ticket": rec.FollowerTicket,
		"login":           rec.FollowerLogin,
		"sl":              item.StopLoss,
		"tp":              item.TakeProfit,
	})

	req := terminal.OrderRequest{
		Symbol:     target.ItemSymbol(),
		StopLoss:   item.StopLoss,
		TakeProfit: item.TakeProfit,
	}
	if target.IsPending() {
		req.Action = terminal.ActionModify
		req.Order = target.ItemTicket()
		// Keep the follower's trigger price; only stops are mirrored here.
		if po, ok := target.(terminal.PendingOrder); ok {
			req.Price = po.PriceOpen
		}
	} else {
		req.Action = terminal.ActionSLTP
		req.Position = target.ItemTicket()
	}

	res, err := e.gw.SendOrder(ctx, req)
	if err != nil {
		log.WithError(err).Error("modify order failed")
		return
	}
	if !res.OK() {
		log.WithField("retcode", int(res.Retcode)).Error("failed to modify SL/TP")
		return
	}
	log.Info("synced SL/TP change to follower")
}

// executeClose closes the follower's copy of a master trade that is no
// longer active. When the copy has already left the live book, deal history
// confirms the venue closed it for us before the record is retired.
func (e *Engine) executeClose(ctx context.Context, rec ledger.CopyRecord, live []terminal.Item) {
	log := logrus.WithFields(logrus.Fields{
		"master_ticket":   rec.MasterTicket,
		"follower_ticket": rec.FollowerTicket,
		"login":           rec.FollowerLogin,
	})

	for _, it := range live {
		if it.ItemTicket() != rec.FollowerTicket {
			continue
		}
		e.closeItem(ctx, it, "master_closed")
		if err := e.ledger.MarkClosed(rec.MasterTicket, rec.FollowerLogin); err != nil {
			log.WithError(err).Error("ledger close failed")
		}
		return
	}

	// Not live anymore. SL/TP or a manual close beat us to it; look for the
	// closing deal so the disappearance is accounted for.
	now := e.clock()
	deals, err := e.gw.HistoryDeals(ctx, now.Add(-historyLookback), now, rec.Symbol)
	if err != nil {
		log.WithError(err).Error("deal history unavailable, retiring record anyway")
	} else {
		comment := e.commentFor(rec.MasterTicket)
		found := false
		for _, d := range deals {
			if d.Magic == e.cfg.Copy.MagicNumber && d.Comment == comment {
				log.WithFields(logrus.Fields{
					"deal":  d.Ticket,
					"price": d.Price,
				}).Info("copy already closed by venue (SL/TP or manual)")
				found = true
				break
			}
		}
		if !found {
			log.Warn("copy vanished without a closing deal in history")
		}
	}

	if err := e.ledger.MarkClosed(rec.MasterTicket, rec.FollowerLogin); err != nil {
		log.WithError(err).Error("ledger close failed")
		return
	}
	metrics.Closes.WithLabelValues("already_closed").Inc()
}

func samePrice(a, b float64) bool {
	return math.Abs(a-b) < priceEpsilon
}
