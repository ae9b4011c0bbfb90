// Package costs estimates the execution costs of a candidate trade:
// exchange fee, spread, and depth-walked slippage.
package costs

import (
	"errors"
	"fmt"

	"github.com/quantspot/engine/market"
)

// ErrInsufficientDepth is returned when the orderbook does not carry
// enough size to fill the requested quantity. The caller turns this
// into a gate.liquidity.rejected event and aborts the entry.
var ErrInsufficientDepth = errors.New("costs: insufficient orderbook depth")

// OrderType selects the fee and spread treatment.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// Side selects which side of the book is walked.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Breakdown is the full cost picture for one candidate fill. No value
// is floored or clamped; callers see exactly what was computed.
type Breakdown struct {
	FeeUSD      float64
	SpreadUSD   float64
	SlippageUSD float64
	AvgFill     float64
}

// Total returns fee + spread + slippage.
func (b Breakdown) Total() float64 {
	return b.FeeUSD + b.SpreadUSD + b.SlippageUSD
}

// Estimator computes cost breakdowns from configured fee rates.
type Estimator struct {
	TakerBPS float64
	MakerBPS float64
}

// Estimate walks the relevant side of the book for qty, then prices the
// fee and spread on the resulting notional.
//
// Fee: notional × fee_bps/10000, taker for market orders, maker for
// limits. Spread: notional × spread_bps/10000, the full spread for
// market orders and half for passive limits. Slippage:
// |avg_fill − best_price| × qty.
func (e Estimator) Estimate(book market.OrderBookSnapshot, side Side, qty float64, ordType OrderType) (Breakdown, error) {
	if qty <= 0 {
		return Breakdown{}, fmt.Errorf("costs: qty must be positive, got %v", qty)
	}

	levels := book.Asks
	best := book.BestAsk().Price
	if side == Sell {
		levels = book.Bids
		best = book.BestBid().Price
	}
	if len(levels) == 0 {
		return Breakdown{}, ErrInsufficientDepth
	}

	avgFill, err := walkDepth(levels, qty)
	if err != nil {
		return Breakdown{}, err
	}

	notional := avgFill * qty

	feeBPS := e.TakerBPS
	spreadFrac := 1.0
	if ordType == Limit {
		feeBPS = e.MakerBPS
		spreadFrac = 0.5
	}

	slip := avgFill - best
	if side == Sell {
		slip = best - avgFill
	}

	return Breakdown{
		FeeUSD:      notional * feeBPS / 10_000,
		SpreadUSD:   notional * book.SpreadBPS() / 10_000 * spreadFrac,
		SlippageUSD: slip * qty,
		AvgFill:     avgFill,
	}, nil
}

// walkDepth consumes levels best-first until qty is satisfied and
// returns the size-weighted average fill price.
func walkDepth(levels []market.Level, qty float64) (float64, error) {
	remaining := qty
	cost := 0.0
	for _, lv := range levels {
		take := lv.Size
		if take > remaining {
			take = remaining
		}
		cost += lv.Price * take
		remaining -= take
		if remaining <= 0 {
			return cost / qty, nil
		}
	}
	return 0, ErrInsufficientDepth
}
