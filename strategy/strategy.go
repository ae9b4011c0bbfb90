// Package strategy contains the quantitative strategies the engine
// evaluates each tick, plus the ensemble combiner that turns their
// outputs into a single decision.
package strategy

import (
	"github.com/quantspot/engine/market"
)

// Signal is a strategy's (or the ensemble's) verdict for one tick.
type Signal string

const (
	EnterLong Signal = "ENTER_LONG"
	Hold      Signal = "HOLD"
	Exit      Signal = "EXIT"
	NoTrade   Signal = "NO_TRADE"
)

// Output is the typed result of evaluating one strategy. It is a
// deterministic function of the candle window and book snapshot, and
// the rationale map carries every numeric input used so decisions can
// be audited after the fact.
type Output struct {
	StrategyID string
	Symbol     string
	Timeframes []string
	Signal     Signal
	Confidence float64 // in [0,1]
	Entry      float64
	Stop       float64
	TakeProfit float64
	Rationale  map[string]float64
}

// Strategy evaluates one symbol frame plus its orderbook snapshot.
// Implementations must be deterministic and must return NoTrade when
// their indicator inputs are insufficient.
type Strategy interface {
	ID() string
	Evaluate(frame market.Frame, book market.OrderBookSnapshot) Output
}

// noTrade is the common insufficient-data / no-signal result.
func noTrade(id string, frame market.Frame) Output {
	return Output{
		StrategyID: id,
		Symbol:     frame.Symbol,
		Timeframes: []string{frame.Timeframe},
		Signal:     NoTrade,
		Rationale:  map[string]float64{},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
