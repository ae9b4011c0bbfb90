package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantspot/engine/event"
	"github.com/quantspot/engine/exchange"
	"github.com/quantspot/engine/journal"
	"github.com/quantspot/engine/trade"
)

// ErrReconcileConflict is returned when exchange truth could not be
// established for at least one live order. The engine must refuse new
// entries until a later reconciliation succeeds; exits stay serviced.
var ErrReconcileConflict = errors.New("executor: reconciliation conflict")

// Reconciler converges persisted state with exchange truth before the
// first tick: filled exit orders close their trades, orphaned orders
// are canceled, and orders the exchange never saw are failed.
// Running it against an already-consistent state changes nothing.
type Reconciler struct {
	store    Store
	events   Events
	exch     exchange.Adapter
	takerBPS float64
	makerBPS float64
}

func NewReconciler(store Store, events Events, exch exchange.Adapter, takerBPS, makerBPS float64) *Reconciler {
	return &Reconciler{store: store, events: events, exch: exch, takerBPS: takerBPS, makerBPS: makerBPS}
}

// Run reconciles every open live trade. It always emits
// `reconcile.completed` with counts; a non-nil error means at least
// one order's remote state is unknown.
func (r *Reconciler) Run(ctx context.Context, now time.Time) error {
	open, err := r.store.OpenTrades()
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	var checked, updated, closed, conflicts int
	for _, t := range open {
		if t.Mode != trade.Live {
			continue
		}
		checked++

		orders, err := r.store.Orders(t.ID)
		if err != nil {
			conflicts++
			continue
		}
		tradeClosed := false
		for _, o := range orders {
			if tradeClosed || o.Status != trade.Placed {
				continue
			}
			u, c, conflict := r.convergeOrder(ctx, t, o, orders, now)
			updated += u
			if c {
				closed++
				tradeClosed = true
			}
			if conflict {
				conflicts++
			}
		}
	}

	emit(r.events, event.Event{
		Time: now, Level: event.Info, Type: event.TypeReconcileCompleted,
		PublicSafe: true,
		Payload: map[string]any{
			"trades_checked": checked,
			"orders_updated": updated,
			"trades_closed":  closed,
			"conflicts":      conflicts,
		},
	})

	if conflicts > 0 {
		return fmt.Errorf("%w: %d unresolved orders", ErrReconcileConflict, conflicts)
	}
	return nil
}

// convergeOrder resolves one PLACED order against the exchange.
// Returns (orders updated, trade closed, conflict).
func (r *Reconciler) convergeOrder(ctx context.Context, t trade.Trade, o trade.Order,
	siblings []trade.Order, now time.Time) (int, bool, bool) {

	idOrKey := o.ExchangeOrderID
	if idOrKey == "" {
		idOrKey = o.IdempotencyKey
	}
	if idOrKey == "" {
		return 0, false, false
	}

	state, err := r.exch.GetOrder(ctx, idOrKey)
	if err != nil {
		if exchange.ClassOf(err) != exchange.Permanent {
			// Remote state unknown. Do not guess.
			return 0, false, true
		}
		// The exchange never saw this order.
		if o.Side == trade.Buy {
			// Entry never reached the exchange: the trade never existed
			// remotely, so cancel it locally.
			_ = r.store.UpdateOrderStatus(o.ID, trade.Failed, "", now)
			_ = r.store.CloseTrade(t.ID, journal.ExitFill{
				Status: trade.Canceled, ClosedAt: now, Notes: "entry never placed",
			})
			emit(r.events, event.Event{
				Time: now, Level: event.Warn, Type: event.TypeTradeClosed,
				Symbol: t.Symbol, TradeID: t.ID,
				Payload: map[string]any{"status": string(trade.Canceled), "reason": "entry never placed"},
			})
			return 1, true, false
		}
		// Exit order never placed: leave it PLACED, the live executor
		// re-issues the same key on the next tick.
		return 0, false, false
	}

	switch state.Status {
	case trade.Filled:
		if o.Side == trade.Buy {
			_ = r.store.UpdateOrderStatus(o.ID, trade.Filled, state.ExchangeOrderID, now)
			return 1, false, false
		}
		r.closeFromFill(ctx, t, o, state, siblings, now)
		return 1, true, false
	case trade.OrderCanceled:
		_ = r.store.UpdateOrderStatus(o.ID, trade.OrderCanceled, state.ExchangeOrderID, now)
		return 1, false, false
	default:
		if o.ExchangeOrderID == "" {
			// Order reached the exchange but the ack was lost; backfill
			// the exchange id.
			_ = r.store.UpdateOrderStatus(o.ID, trade.Placed, state.ExchangeOrderID, now)
			return 1, false, false
		}
		return 0, false, false
	}
}

// closeFromFill settles a trade whose exit filled while the engine was
// down, and cancels the surviving sibling exit.
func (r *Reconciler) closeFromFill(ctx context.Context, t trade.Trade, o trade.Order,
	state exchange.OrderState, siblings []trade.Order, now time.Time) {

	exitPrice := state.FillPrice
	fees := t.EntryNotional*r.takerBPS/10_000 + exitPrice*t.EntryQty*r.makerBPS/10_000
	pnl := (exitPrice-t.EntryPrice)*t.EntryQty - fees

	reason := "stop"
	if o.Price == t.TakeProfitPrice {
		reason = "take_profit"
	}

	if err := r.store.CloseTrade(t.ID, journal.ExitFill{
		Price: exitPrice, PnL: pnl, Fees: fees, ClosedAt: now, Notes: reason,
	}); err != nil {
		return
	}
	_ = r.store.UpdateOrderStatus(o.ID, trade.Filled, state.ExchangeOrderID, now)

	for _, sib := range siblings {
		if sib.ID == o.ID || sib.Side != trade.Sell || sib.Status != trade.Placed {
			continue
		}
		if sib.ExchangeOrderID != "" {
			_ = r.exch.CancelOrder(ctx, sib.ExchangeOrderID)
		}
		_ = r.store.UpdateOrderStatus(sib.ID, trade.OrderCanceled, "", now)
	}

	emit(r.events, event.Event{
		Time: now, Level: event.Info, Type: event.TypeOrderFilled,
		Symbol: t.Symbol, TradeID: t.ID,
		Payload: map[string]any{"side": "SELL", "price": exitPrice, "qty": t.EntryQty, "reason": reason},
	})
	emit(r.events, event.Event{
		Time: now, Level: event.Info, Type: event.TypeTradeClosed,
		Symbol: t.Symbol, TradeID: t.ID, PublicSafe: true,
		Payload: map[string]any{
			"exit":         exitPrice,
			"realized_pnl": pnl,
			"fees":         fees,
			"reason":       reason,
		},
	})
}
