package market

import "time"

// Level is one price level of an orderbook side.
type Level struct {
	Price float64
	Size  float64
}

// OrderBookSnapshot is a point-in-time view of the book for one symbol.
// Bids are sorted descending by price, asks ascending, best first.
// Snapshots are never mutated after construction.
type OrderBookSnapshot struct {
	Symbol string
	Time   time.Time
	Bids   []Level
	Asks   []Level
}

// BestBid returns the top bid level, zero-valued if the side is empty.
func (b OrderBookSnapshot) BestBid() Level {
	if len(b.Bids) == 0 {
		return Level{}
	}
	return b.Bids[0]
}

// BestAsk returns the top ask level, zero-valued if the side is empty.
func (b OrderBookSnapshot) BestAsk() Level {
	if len(b.Asks) == 0 {
		return Level{}
	}
	return b.Asks[0]
}

// Mid returns (best_bid + best_ask) / 2, or 0 when either side is empty.
func (b OrderBookSnapshot) Mid() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

// SpreadBPS returns (best_ask - best_bid) / mid in basis points.
func (b OrderBookSnapshot) SpreadBPS() float64 {
	mid := b.Mid()
	if mid == 0 {
		return 0
	}
	return (b.Asks[0].Price - b.Bids[0].Price) / mid * 10_000
}
