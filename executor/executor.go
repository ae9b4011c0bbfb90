// Package executor turns gated trade plans into persisted trades and
// orders. The dry-run variant simulates fills deterministically from
// candles; the live variant talks to an exchange adapter with
// idempotent placement and startup reconciliation.
package executor

import (
	"context"
	"time"

	"github.com/quantspot/engine/event"
	"github.com/quantspot/engine/journal"
	"github.com/quantspot/engine/market"
	"github.com/quantspot/engine/trade"
)

// Store is the persistence surface the executors need. Satisfied by
// *journal.Journal.
type Store interface {
	OpenTrade(t trade.Trade, orders []trade.Order) error
	CloseTrade(tradeID string, exit journal.ExitFill) error
	InsertOrder(o trade.Order) error
	UpdateOrderStatus(orderID string, status trade.OrderStatus, exchangeOrderID string, at time.Time) error
	OpenTrades() ([]trade.Trade, error)
	Orders(tradeID string) ([]trade.Order, error)
}

// Events is the sink executors emit lifecycle events to. Satisfied by
// *event.Sink.
type Events interface {
	Append(event.Event) (int64, error)
}

// Executor opens trades from plans and services their exits. The
// trading loop is the only caller; it owns all state transitions.
type Executor interface {
	// Open creates the trade and its orders. The returned trade is
	// OPEN on success.
	Open(ctx context.Context, plan trade.Plan, now time.Time) (trade.Trade, error)
	// CheckExits services stop/take-profit for one open trade. It
	// returns the updated trade and whether it closed this tick.
	CheckExits(ctx context.Context, t trade.Trade, c market.Candle, now time.Time) (trade.Trade, bool, error)
}

func emit(sink Events, e event.Event) {
	if sink == nil {
		return
	}
	// A lost event never fails the trade itself.
	_, _ = sink.Append(e)
}
