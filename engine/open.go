package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/copier/config"
	"github.com/rustyeddy/copier/ledger"
	"github.com/rustyeddy/copier/market"
	"github.com/rustyeddy/copier/metrics"
	"github.com/rustyeddy/copier/snapshot"
	"github.com/rustyeddy/copier/terminal"
)

// masterEquityAssumed sizes proportional copies until the snapshot carries
// the master's real equity.
// TODO: publish master equity in the snapshot and drop this constant.
const masterEquityAssumed = 10000.0

// executeOpen copies one master item the follower does not hold yet. Every
// rejection is terminal for this item on this cycle; the next sync retries
// from scratch against fresh state.
func (e *Engine) executeOpen(ctx context.Context, item snapshot.MasterItem, follower config.Follower, acct terminal.Account, live []terminal.Item) {
	symbol := market.NormalizeSymbol(item.Symbol, e.cfg.Symbols.Aliases)
	comment := e.commentFor(item.Ticket)

	log := logrus.WithFields(logrus.Fields{
		"master_ticket": item.Ticket,
		"login":         follower.Login,
		"symbol":        symbol,
		"type":          item.Type.String(),
	})

	if err := e.gw.SymbolSelect(ctx, symbol); err != nil {
		log.WithError(err).Error("symbol not available on follower, skipping")
		return
	}

	// The ledger may lag the terminal by one crash. An existing order with
	// our comment is the same copy; relink it instead of duplicating.
	for _, it := range live {
		if it.ItemMagic() == e.cfg.Copy.MagicNumber && it.ItemComment() == comment {
			log.WithField("follower_ticket", it.ItemTicket()).Warn("found unrecorded copy on follower, relinking")
			if err := e.ledger.Upsert(ledger.CopyRecord{
				MasterTicket:   item.Ticket,
				FollowerTicket: it.ItemTicket(),
				FollowerLogin:  follower.Login,
				Symbol:         symbol,
				Side:           item.Type.String(),
				Volume:         it.ItemVolume(),
				OpenedAt:       e.clock(),
			}); err != nil {
				log.WithError(err).Error("ledger relink failed")
			}
			return
		}
	}

	// Market entries are price-sensitive; copying one long after the master
	// filled is chasing, not mirroring. Pending orders have no such clock.
	if item.Type.IsMarket() {
		age := e.clock().Sub(time.UnixMilli(item.OpenTimeMillis))
		if age > e.cfg.MaxAge() {
			log.WithField("age", age).Warn("trade too old to copy, skipping")
			metrics.Rejections.WithLabelValues("latency").Inc()
			return
		}
	}

	if v := e.guard.CheckOrderLimit(symbol, live); v != nil {
		log.Warnf("open rejected: %s", v)
		metrics.Rejections.WithLabelValues("order_limit").Inc()
		return
	}
	e.guard.CheckMandatorySL(item.StopLoss)

	info, err := e.gw.SymbolInfo(ctx, symbol)
	if err != nil {
		log.WithError(err).Error("cannot read symbol info, skipping")
		return
	}

	var tick market.Tick
	if item.Type.IsMarket() {
		tick, err = e.gw.Tick(ctx, symbol)
		if err != nil {
			log.WithError(err).Error("cannot read tick, skipping")
			return
		}
		if v := e.guard.CheckSlippage(item.PriceOpen, symbol, item.Type.Side(), tick, info.Point); v != nil {
			log.Warnf("open rejected: %s", v)
			metrics.Rejections.WithLabelValues("slippage").Inc()
			return
		}
		if v := e.guard.CheckSpread(symbol, tick, info.Point); v != nil {
			log.Warnf("open rejected: %s", v)
			metrics.Rejections.WithLabelValues("spread").Inc()
			return
		}
	}

	mode := e.cfg.Copy.Mode
	if follower.Mode != "" {
		mode = follower.Mode
	}
	minLot, maxLot := e.cfg.Copy.MinLot, e.cfg.Copy.MaxLot
	if follower.MinLot > 0 {
		minLot = follower.MinLot
	}
	if follower.MaxLot > 0 {
		maxLot = follower.MaxLot
	}
	lot := market.CalcLot(item.Volume, masterEquityAssumed, acct.Equity, mode, minLot, maxLot)

	price := item.PriceOpen
	if item.Type.IsMarket() {
		price = tick.PriceFor(item.Type.Side())
	}
	required, calcErr := marginRequired(lot, price, info, acct)
	if v := e.guard.CheckMargin(required, acct.MarginFree, calcErr); v != nil {
		log.Warnf("open rejected: %s", v)
		metrics.Rejections.WithLabelValues("margin").Inc()
		return
	}

	openCount, totalLots := 0, 0.0
	for _, it := range live {
		if it.ItemMagic() != e.cfg.Copy.MagicNumber {
			continue
		}
		openCount++
		totalLots += it.ItemVolume()
	}
	if v := e.guard.CheckExposure(openCount, totalLots); v != nil {
		log.Warnf("open rejected: %s", v)
		metrics.Rejections.WithLabelValues("exposure").Inc()
		return
	}

	req := terminal.OrderRequest{
		Symbol:     symbol,
		Volume:     lot,
		Type:       item.Type,
		Price:      price,
		StopLoss:   item.StopLoss,
		TakeProfit: item.TakeProfit,
		Deviation:  int(e.cfg.Copy.MaxSlippagePoints),
		Magic:      e.cfg.Copy.MagicNumber,
		Comment:    comment,
		TimeType:   terminal.TimeGTC,
		Filling:    market.NegotiateFilling(info.FillingModes),
	}
	kind := "pending"
	req.Action = terminal.ActionPending
	if item.Type.IsMarket() {
		kind = "market"
		req.Action = terminal.ActionDeal
	}

	res, err := e.gw.SendOrder(ctx, req)
	if err != nil {
		log.WithError(err).Error("open order failed")
		return
	}
	if !res.OK() {
		log.WithFields(logrus.Fields{
			"retcode": int(res.Retcode),
			"comment": res.Comment,
		}).Error("failed to copy trade")
		return
	}

	if err := e.ledger.Upsert(ledger.CopyRecord{
		MasterTicket:   item.Ticket,
		FollowerTicket: res.FilledTicket(),
		FollowerLogin:  follower.Login,
		Symbol:         symbol,
		Side:           item.Type.String(),
		Volume:         lot,
		OpenedAt:       e.clock(),
	}); err != nil {
		log.WithError(err).Error("ledger write failed after open")
	}
	metrics.Opens.WithLabelValues(kind).Inc()
	log.WithFields(logrus.Fields{
		"follower_ticket": res.FilledTicket(),
		"lot":             lot,
	}).Info("copied trade to follower")
}

// marginRequired estimates the margin for a new order from contract size
// and account leverage. A zero or unknown leverage is a calculation failure,
// not a free pass.
func marginRequired(lot, price float64, info market.SymbolInfo, acct terminal.Account) (float64, error) {
	if acct.Leverage <= 0 {
		return 0, errors.New("account leverage unknown")
	}
	if info.ContractSize <= 0 {
		return 0, errors.New("contract size unknown")
	}
	return lot * info.ContractSize * price / float64(acct.Leverage), nil
}
