// Package trade defines the persistent trading entities: candidate
// plans, trades, and orders. Entities are related by one-directional
// keys (Order.TradeID) plus lookup, never owning back-references.
package trade

import (
	"fmt"
	"time"

	"github.com/quantspot/engine/costs"
)

// Side of a trade. The engine is long-only on spot.
type Side string

const Long Side = "LONG"

// Status of a trade. A trade is closed exactly once:
// OPEN → (CLOSED | CANCELED).
type Status string

const (
	Open     Status = "OPEN"
	Closed   Status = "CLOSED"
	Canceled Status = "CANCELED"
)

// Mode under which the trade was executed.
type Mode string

const (
	DryRun Mode = "DRY_RUN"
	Live   Mode = "LIVE"
)

// OrderSide for individual orders.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType of an order.
type OrderType string

const (
	MarketOrder OrderType = "MARKET"
	LimitOrder  OrderType = "LIMIT"
)

// OrderStatus lifecycle. Dry-run orders carry Simulated and no
// exchange id.
type OrderStatus string

const (
	Placed        OrderStatus = "PLACED"
	Filled        OrderStatus = "FILLED"
	OrderCanceled OrderStatus = "CANCELED"
	Failed        OrderStatus = "FAILED"
	Simulated     OrderStatus = "SIMULATED"
)

// Plan is a fully-costed trade candidate that has not yet been gated
// or executed.
type Plan struct {
	Symbol        string
	Side          Side
	Entry         float64
	Stop          float64
	TakeProfit    float64
	Qty           float64
	Notional      float64
	Costs         costs.Breakdown
	ExpectedGross float64
	ExpectedNet   float64
}

// Validate enforces the plan invariants: stop < entry < take_profit for
// a long, positive qty, and notional at or above the configured floor.
func (p Plan) Validate(minNotional float64) error {
	if p.Side != Long {
		return fmt.Errorf("trade: unsupported side %q", p.Side)
	}
	if !(p.Stop < p.Entry && p.Entry < p.TakeProfit) {
		return fmt.Errorf("trade: want stop < entry < take_profit, got %v / %v / %v",
			p.Stop, p.Entry, p.TakeProfit)
	}
	if p.Qty <= 0 {
		return fmt.Errorf("trade: qty must be positive, got %v", p.Qty)
	}
	if p.Notional < minNotional {
		return fmt.Errorf("trade: notional %.2f below minimum %.2f", p.Notional, minNotional)
	}
	return nil
}

// Trade is one position lifecycle. Created on entry, mutated only by
// the owning symbol's loop, closed exactly once.
type Trade struct {
	ID              string
	Symbol          string
	Side            Side
	Status          Status
	Mode            Mode
	OpenedAt        time.Time
	ClosedAt        time.Time // zero while open
	EntryPrice      float64
	EntryQty        float64
	EntryNotional   float64
	StopPrice       float64
	TakeProfitPrice float64
	TrailingEnabled bool
	TrailingOffset  float64
	ExitPrice       float64
	RealizedPnL     float64
	FeesPaid        float64
	SlippageEst     float64
	Notes           string
}

// Order is one exchange (or simulated) order belonging to a trade.
// Live orders carry an engine-chosen idempotency key QS-{trade_id}-{seq}.
type Order struct {
	ID              string
	TradeID         string
	Symbol          string
	Side            OrderSide
	Type            OrderType
	Qty             float64
	Price           float64 // zero for market orders
	Status          OrderStatus
	ExchangeOrderID string
	IdempotencyKey  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IdempotencyKey builds the engine-chosen key for the seq'th order of a
// trade. Keys are generated before any network call and persisted with
// the order row so retries are de-duplicated exchange-side.
func IdempotencyKey(tradeID string, seq int) string {
	return fmt.Sprintf("QS-%s-%d", tradeID, seq)
}
