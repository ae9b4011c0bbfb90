package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/quantspot/engine/event"
	"github.com/quantspot/engine/journal"
	"github.com/quantspot/engine/market"
	"github.com/quantspot/engine/pkg/id"
	"github.com/quantspot/engine/trade"
)

// DryRun simulates the full trade lifecycle without touching an
// exchange. Entries fill instantly at the plan price; exits fill when
// a candle crosses the stop or take-profit.
//
// Same-bar policy: when one candle touches both the stop and the
// take-profit, the stop fills first. The pessimistic reading is the
// documented default; see DESIGN.md.
type DryRun struct {
	store    Store
	events   Events
	takerBPS float64 // simulated fee on both entry and exit notional
}

func NewDryRun(store Store, events Events, takerBPS float64) *DryRun {
	return &DryRun{store: store, events: events, takerBPS: takerBPS}
}

func (x *DryRun) Open(ctx context.Context, plan trade.Plan, now time.Time) (trade.Trade, error) {
	t := trade.Trade{
		ID:              id.New(),
		Symbol:          plan.Symbol,
		Side:            plan.Side,
		Status:          trade.Open,
		Mode:            trade.DryRun,
		OpenedAt:        now,
		EntryPrice:      plan.Entry,
		EntryQty:        plan.Qty,
		EntryNotional:   plan.Notional,
		StopPrice:       plan.Stop,
		TakeProfitPrice: plan.TakeProfit,
		SlippageEst:     plan.Costs.SlippageUSD,
	}

	// Simulated orders carry no idempotency key and no exchange id.
	entry := trade.Order{
		ID: id.New(), TradeID: t.ID, Symbol: t.Symbol,
		Side: trade.Buy, Type: trade.MarketOrder, Qty: t.EntryQty,
		Status: trade.Filled, CreatedAt: now, UpdatedAt: now,
	}
	stop := trade.Order{
		ID: id.New(), TradeID: t.ID, Symbol: t.Symbol,
		Side: trade.Sell, Type: trade.LimitOrder, Qty: t.EntryQty, Price: t.StopPrice,
		Status: trade.Simulated, CreatedAt: now, UpdatedAt: now,
	}
	takeProfit := trade.Order{
		ID: id.New(), TradeID: t.ID, Symbol: t.Symbol,
		Side: trade.Sell, Type: trade.LimitOrder, Qty: t.EntryQty, Price: t.TakeProfitPrice,
		Status: trade.Simulated, CreatedAt: now, UpdatedAt: now,
	}

	if err := x.store.OpenTrade(t, []trade.Order{entry, stop, takeProfit}); err != nil {
		return trade.Trade{}, fmt.Errorf("dry-run open: %w", err)
	}

	emit(x.events, event.Event{
		Time: now, Level: event.Info, Type: event.TypeTradeOpened,
		Symbol: t.Symbol, TradeID: t.ID, PublicSafe: true,
		Payload: map[string]any{
			"mode":        string(trade.DryRun),
			"entry":       t.EntryPrice,
			"qty":         t.EntryQty,
			"stop":        t.StopPrice,
			"take_profit": t.TakeProfitPrice,
		},
	})
	for _, o := range []trade.Order{entry, stop, takeProfit} {
		emit(x.events, event.Event{
			Time: now, Level: event.Info, Type: event.TypeOrderPlaced,
			Symbol: t.Symbol, TradeID: t.ID, PublicSafe: true,
			Payload: map[string]any{
				"side":   string(o.Side),
				"type":   string(o.Type),
				"qty":    o.Qty,
				"price":  o.Price,
				"status": string(o.Status),
			},
		})
	}
	return t, nil
}

func (x *DryRun) CheckExits(ctx context.Context, t trade.Trade, c market.Candle, now time.Time) (trade.Trade, bool, error) {
	if t.Status != trade.Open {
		return t, false, nil
	}

	var exitPrice float64
	var reason string
	switch {
	case c.Low <= t.StopPrice:
		exitPrice, reason = t.StopPrice, "stop"
	case c.High >= t.TakeProfitPrice:
		exitPrice, reason = t.TakeProfitPrice, "take_profit"
	default:
		return t, false, nil
	}

	fees := (t.EntryNotional + exitPrice*t.EntryQty) * x.takerBPS / 10_000
	pnl := (exitPrice-t.EntryPrice)*t.EntryQty - fees

	if err := x.store.CloseTrade(t.ID, journal.ExitFill{
		Price: exitPrice, PnL: pnl, Fees: fees, ClosedAt: now, Notes: reason,
	}); err != nil {
		return t, false, fmt.Errorf("dry-run close: %w", err)
	}

	// Settle the simulated exit orders: the touched one fills, the
	// sibling is canceled.
	orders, err := x.store.Orders(t.ID)
	if err == nil {
		for _, o := range orders {
			if o.Status != trade.Simulated || o.Side != trade.Sell {
				continue
			}
			next := trade.OrderCanceled
			if o.Price == exitPrice {
				next = trade.Filled
			}
			_ = x.store.UpdateOrderStatus(o.ID, next, "", now)
		}
	}

	emit(x.events, event.Event{
		Time: now, Level: event.Info, Type: event.TypeOrderFilled,
		Symbol: t.Symbol, TradeID: t.ID, PublicSafe: true,
		Payload: map[string]any{"price": exitPrice, "qty": t.EntryQty, "reason": reason},
	})
	emit(x.events, event.Event{
		Time: now, Level: event.Info, Type: event.TypeTradeClosed,
		Symbol: t.Symbol, TradeID: t.ID, PublicSafe: true,
		Payload: map[string]any{
			"exit":         exitPrice,
			"realized_pnl": pnl,
			"fees":         fees,
			"reason":       reason,
		},
	})

	t.Status = trade.Closed
	t.ClosedAt = now
	t.ExitPrice = exitPrice
	t.RealizedPnL = pnl
	t.FeesPaid = fees
	t.Notes = reason
	return t, true, nil
}

var _ Executor = (*DryRun)(nil)
