package market

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CopyMode selects how a follower's lot size is derived from the master's.
type CopyMode string

const (
	// CopyIdentical copies the master lot verbatim.
	CopyIdentical CopyMode = "identical"
	// CopyProportional scales the master lot by the equity ratio
	// follower/master, rounded to two decimals.
	CopyProportional CopyMode = "proportional"
)

// Valid reports whether the mode is one of the known copy modes.
func (m CopyMode) Valid() bool {
	return m == CopyIdentical || m == CopyProportional
}

// CalcLot computes the follower volume for a copied trade.
//
// Proportional sizing with zero or negative master equity cannot be scaled
// and falls back to minLot rather than dividing by zero. The result is
// always clamped into [minLot, maxLot]; clamping on the high side is logged
// because it silently changes the follower's risk profile.
func CalcLot(masterLot, masterEquity, followerEquity float64, mode CopyMode, minLot, maxLot float64) float64 {
	var lot float64

	switch mode {
	case CopyIdentical:
		lot = masterLot
	case CopyProportional:
		if masterEquity <= 0 {
			logrus.WithFields(logrus.Fields{
				"master_equity": masterEquity,
				"min_lot":       minLot,
			}).Warn("master equity is zero or negative, defaulting to min lot")
			lot = minLot
			break
		}
		ratio := decimal.NewFromFloat(followerEquity).Div(decimal.NewFromFloat(masterEquity))
		lot = decimal.NewFromFloat(masterLot).Mul(ratio).Round(2).InexactFloat64()
	default:
		logrus.WithField("mode", string(mode)).Warn("unknown copy mode, defaulting to min lot")
		lot = minLot
	}

	if lot < minLot {
		lot = minLot
	}
	if lot > maxLot {
		logrus.WithFields(logrus.Fields{
			"calculated": lot,
			"max_lot":    maxLot,
		}).Warn("calculated lot exceeds max, capping")
		lot = maxLot
	}
	return lot
}

// NormalizeSymbol maps a master symbol to the follower broker's naming using
// the configured alias table (e.g. "EURUSD" -> "EURUSD.m"). Unmapped symbols
// pass through unchanged.
func NormalizeSymbol(symbol string, aliases map[string]string) string {
	if mapped, ok := aliases[symbol]; ok && mapped != "" {
		return mapped
	}
	return symbol
}

// MatchOverride finds the per-symbol override whose key is a substring of
// the traded symbol, so that a "BTCUSD" override also covers broker-suffixed
// variants like "BTCUSD.m". Returns the matched key and true on a hit.
func MatchOverride[T any](symbol string, overrides map[string]T) (string, T, bool) {
	for key, v := range overrides {
		if key != "" && strings.Contains(symbol, key) {
			return key, v, true
		}
	}
	var zero T
	return "", zero, false
}
