// Package guard evaluates the safety policy that gates every copy. Checks
// are stateless: each one takes the data it judges, returns nil on pass or a
// Violation on veto, and logs the reason with enough context to reconstruct
// the decision. Vetoes are policy, not errors; the engine skips the
// operation this tick and retries naturally on the next.
package guard

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/copier/market"
	"github.com/rustyeddy/copier/terminal"
)

// Violation names a failed check and carries a log-worthy reason.
type Violation struct {
	Code string
	Msg  string
}

func (v *Violation) String() string {
	if v == nil {
		return "PASS"
	}
	return v.Code + ": " + v.Msg
}

// SymbolOverride relaxes or tightens the global slippage/spread limits for
// symbols whose name contains the override key (broker suffixes like
// "BTCUSD.m" still match a "BTCUSD" key). Zero fields inherit the global.
type SymbolOverride struct {
	MaxSlippagePoints float64 `json:"max_slippage_points" yaml:"max_slippage_points"`
	MaxSpreadPoints   float64 `json:"max_spread_points" yaml:"max_spread_points"`
}

// Limits are the global policy thresholds.
type Limits struct {
	// MaxOrdersPerSymbol caps live items per symbol per follower.
	MaxOrdersPerSymbol int
	// MaxSlippagePoints caps |master price - follower price| in points.
	MaxSlippagePoints float64
	// MaxSpreadPoints caps the follower's ask-bid distance in points.
	MaxSpreadPoints float64
	// MaxExposureLots caps total copier-tagged volume per follower.
	MaxExposureLots float64
	// MaxExposureTrades caps total copier-tagged order count per follower.
	// Zero disables the check; it ships disabled by policy.
	MaxExposureTrades int
	// MaxDrawdownPercent triggers an emergency stop when equity falls below
	// balance*(1-pct/100). Zero disables; it ships disabled by policy.
	MaxDrawdownPercent float64
}

// Guard holds the limits plus per-symbol overrides.
type Guard struct {
	limits    Limits
	overrides map[string]SymbolOverride
}

// New builds a guard. A zero MaxOrdersPerSymbol defaults to 3.
func New(limits Limits, overrides map[string]SymbolOverride) *Guard {
	if limits.MaxOrdersPerSymbol <= 0 {
		limits.MaxOrdersPerSymbol = 3
	}
	return &Guard{limits: limits, overrides: overrides}
}

// Limits exposes the effective thresholds (after defaulting).
func (g *Guard) Limits() Limits { return g.limits }

func (g *Guard) slippageLimit(symbol string) float64 {
	if _, ov, ok := market.MatchOverride(symbol, g.overrides); ok && ov.MaxSlippagePoints > 0 {
		return ov.MaxSlippagePoints
	}
	return g.limits.MaxSlippagePoints
}

func (g *Guard) spreadLimit(symbol string) float64 {
	if _, ov, ok := market.MatchOverride(symbol, g.overrides); ok && ov.MaxSpreadPoints > 0 {
		return ov.MaxSpreadPoints
	}
	return g.limits.MaxSpreadPoints
}

// CheckOrderLimit vetoes when the follower already holds the per-symbol cap
// of live items (positions plus pending orders).
func (g *Guard) CheckOrderLimit(symbol string, items []terminal.Item) *Violation {
	count := 0
	for _, it := range items {
		if it.ItemSymbol() == symbol {
			count++
		}
	}
	if count >= g.limits.MaxOrdersPerSymbol {
		v := &Violation{
			Code: "ORDER_LIMIT",
			Msg:  fmt.Sprintf("%d orders already exist for %s (max %d)", count, symbol, g.limits.MaxOrdersPerSymbol),
		}
		logrus.WithFields(logrus.Fields{
			"symbol": symbol,
			"count":  count,
			"max":    g.limits.MaxOrdersPerSymbol,
		}).Warn("limit reached, rejecting new order")
		return v
	}
	return nil
}

// CheckSlippage vetoes when the follower's current price has drifted too far
// in points from the master's recorded open price. Buys compare against ask,
// sells against bid.
func (g *Guard) CheckSlippage(masterPrice float64, symbol string, side market.Side, tick market.Tick, point float64) *Violation {
	if point <= 0 {
		// Unusable metadata: never trade blind.
		logrus.WithField("symbol", symbol).Error("no point size for slippage check")
		return &Violation{Code: "SLIPPAGE", Msg: "missing point size for " + symbol}
	}

	current := tick.PriceFor(side)
	diff := market.PointsBetween(masterPrice, current, point)
	limit := g.slippageLimit(symbol)

	if diff > limit {
		v := &Violation{
			Code: "SLIPPAGE",
			Msg:  fmt.Sprintf("master %.5f vs follower %.5f = %.1f pts (max %.1f)", masterPrice, current, diff, limit),
		}
		logrus.WithFields(logrus.Fields{
			"symbol":         symbol,
			"master_price":   masterPrice,
			"follower_price": current,
			"diff_points":    diff,
			"max_points":     limit,
		}).Warn("slippage too high")
		return v
	}
	return nil
}

// CheckSpread vetoes when the follower's current spread exceeds the limit in
// points.
func (g *Guard) CheckSpread(symbol string, tick market.Tick, point float64) *Violation {
	if point <= 0 {
		logrus.WithField("symbol", symbol).Error("no point size for spread check")
		return &Violation{Code: "SPREAD", Msg: "missing point size for " + symbol}
	}

	spread := tick.Spread() / point
	limit := g.spreadLimit(symbol)

	if spread > limit {
		v := &Violation{
			Code: "SPREAD",
			Msg:  fmt.Sprintf("%s spread %.1f pts (max %.1f)", symbol, spread, limit),
		}
		logrus.WithFields(logrus.Fields{
			"symbol":        symbol,
			"spread_points": spread,
			"max_points":    limit,
		}).Warn("spread too high")
		return v
	}
	return nil
}

// CheckMargin vetoes when the required margin exceeds free margin, or when
// the margin could not be computed at all (calcErr non-nil). A failed
// calculation is a rejection: never trade blind.
func (g *Guard) CheckMargin(required, free float64, calcErr error) *Violation {
	if calcErr != nil {
		logrus.WithError(calcErr).Error("margin calculation failed, rejecting")
		return &Violation{Code: "MARGIN", Msg: "margin calculation failed: " + calcErr.Error()}
	}
	if required > free {
		v := &Violation{
			Code: "MARGIN",
			Msg:  fmt.Sprintf("required %.2f exceeds free %.2f", required, free),
		}
		logrus.WithFields(logrus.Fields{
			"required": required,
			"free":     free,
		}).Warn("insufficient margin")
		return v
	}
	return nil
}

// CheckExposure vetoes when the follower's copier-tagged book breaches the
// aggregate lot cap. The trade-count cap only applies when configured
// non-zero (disabled by default).
func (g *Guard) CheckExposure(openCount int, totalLots float64) *Violation {
	if g.limits.MaxExposureTrades > 0 && openCount >= g.limits.MaxExposureTrades {
		v := &Violation{
			Code: "EXPOSURE",
			Msg:  fmt.Sprintf("max trades reached (%d/%d)", openCount, g.limits.MaxExposureTrades),
		}
		logrus.WithFields(logrus.Fields{
			"open": openCount,
			"max":  g.limits.MaxExposureTrades,
		}).Warn("max trade count reached")
		return v
	}
	if g.limits.MaxExposureLots > 0 && totalLots >= g.limits.MaxExposureLots {
		v := &Violation{
			Code: "EXPOSURE",
			Msg:  fmt.Sprintf("max lot exposure reached (%.2f/%.2f)", totalLots, g.limits.MaxExposureLots),
		}
		logrus.WithFields(logrus.Fields{
			"total_lots": totalLots,
			"max_lots":   g.limits.MaxExposureLots,
		}).Warn("max lot exposure reached")
		return v
	}
	return nil
}

// CheckMandatorySL always passes; a master order without a stop-loss is
// copied anyway but flagged, since it leaves the follower unprotected.
func (g *Guard) CheckMandatorySL(masterSL float64) *Violation {
	if masterSL <= 0 {
		logrus.Warn("master order has no stop loss, copying anyway")
	}
	return nil
}

// CheckDrawdown vetoes (emergency stop) when equity has fallen below
// balance*(1 - MaxDrawdownPercent/100). Disabled when the limit is zero.
func (g *Guard) CheckDrawdown(balance, equity float64) *Violation {
	if g.limits.MaxDrawdownPercent <= 0 {
		return nil
	}
	floor := balance * (1.0 - g.limits.MaxDrawdownPercent/100.0)
	if equity < floor {
		v := &Violation{
			Code: "DRAWDOWN",
			Msg:  fmt.Sprintf("equity %.2f below floor %.2f (%.1f%%)", equity, floor, g.limits.MaxDrawdownPercent),
		}
		logrus.WithFields(logrus.Fields{
			"equity":  equity,
			"floor":   floor,
			"percent": g.limits.MaxDrawdownPercent,
		}).Error("max drawdown reached, emergency stop")
		return v
	}
	return nil
}
