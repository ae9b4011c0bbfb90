package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantspot/engine/event"
	"github.com/quantspot/engine/exchange"
	"github.com/quantspot/engine/journal"
	"github.com/quantspot/engine/market"
	"github.com/quantspot/engine/pkg/id"
	"github.com/quantspot/engine/trade"
)

// ErrNotArmed is returned when live placement is attempted without a
// valid armed token.
var ErrNotArmed = errors.New("executor: live mode not armed")

// Live places real orders through an exchange adapter. Every order's
// idempotency key is generated and persisted before the first network
// call, so a retry after a lost response can never duplicate an order.
type Live struct {
	store  Store
	events Events
	exch   exchange.Adapter
	armory *Armory
	token  string

	takerBPS float64
	makerBPS float64

	maxAttempts int
	backoff     time.Duration
	sleep       func(context.Context, time.Duration) error

	// onInstability feeds the exchange-instability breaker counter.
	onInstability func()
}

// LiveOption configures a Live executor.
type LiveOption func(*Live)

// WithRetry bounds transient-error retries inside one placement.
func WithRetry(maxAttempts int, backoff time.Duration) LiveOption {
	return func(x *Live) {
		x.maxAttempts = maxAttempts
		x.backoff = backoff
	}
}

// WithInstabilityHook is called once per transient exchange failure.
func WithInstabilityHook(fn func()) LiveOption {
	return func(x *Live) { x.onInstability = fn }
}

// WithSleep replaces the backoff sleeper, used by tests.
func WithSleep(fn func(context.Context, time.Duration) error) LiveOption {
	return func(x *Live) { x.sleep = fn }
}

func NewLive(store Store, events Events, exch exchange.Adapter, armory *Armory, token string,
	takerBPS, makerBPS float64, opts ...LiveOption) *Live {

	x := &Live{
		store: store, events: events, exch: exch, armory: armory, token: token,
		takerBPS: takerBPS, makerBPS: makerBPS,
		maxAttempts: 3, backoff: 250 * time.Millisecond,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

func (x *Live) Open(ctx context.Context, plan trade.Plan, now time.Time) (trade.Trade, error) {
	if x.armory == nil || !x.armory.Valid(x.token) {
		return trade.Trade{}, ErrNotArmed
	}

	t := trade.Trade{
		ID:              id.New(),
		Symbol:          plan.Symbol,
		Side:            plan.Side,
		Status:          trade.Open,
		Mode:            trade.Live,
		OpenedAt:        now,
		EntryPrice:      plan.Entry,
		EntryQty:        plan.Qty,
		EntryNotional:   plan.Notional,
		StopPrice:       plan.Stop,
		TakeProfitPrice: plan.TakeProfit,
		SlippageEst:     plan.Costs.SlippageUSD,
	}
	entry := trade.Order{
		ID: id.New(), TradeID: t.ID, Symbol: t.Symbol,
		Side: trade.Buy, Type: trade.MarketOrder, Qty: t.EntryQty,
		Status: trade.Placed, IdempotencyKey: trade.IdempotencyKey(t.ID, 1),
		CreatedAt: now, UpdatedAt: now,
	}

	// Trade and entry order hit storage before the exchange does.
	if err := x.store.OpenTrade(t, []trade.Order{entry}); err != nil {
		return trade.Trade{}, fmt.Errorf("live open: %w", err)
	}
	x.emitOrderPlaced(t, entry, now)

	ack, err := x.place(ctx, exchange.OrderRequest{
		Symbol: t.Symbol, Side: trade.Buy, Type: trade.MarketOrder,
		Qty: t.EntryQty, IdempotencyKey: entry.IdempotencyKey,
	})
	if err != nil {
		if exchange.ClassOf(err) == exchange.Permanent {
			return x.abortEntry(t, entry, now, err)
		}
		// Transient even after retries: the row stays PLACED and the
		// reconciler resolves it on next start.
		return trade.Trade{}, fmt.Errorf("live open %s: %w", t.Symbol, err)
	}

	_ = x.store.UpdateOrderStatus(entry.ID, trade.Filled, ack.ExchangeOrderID, now)
	emit(x.events, event.Event{
		Time: now, Level: event.Info, Type: event.TypeOrderFilled,
		Symbol: t.Symbol, TradeID: t.ID,
		Payload: map[string]any{"side": "BUY", "price": ack.FillPrice, "qty": ack.FilledQty},
	})
	emit(x.events, event.Event{
		Time: now, Level: event.Info, Type: event.TypeTradeOpened,
		Symbol: t.Symbol, TradeID: t.ID, PublicSafe: true,
		Payload: map[string]any{
			"mode":        string(trade.Live),
			"entry":       t.EntryPrice,
			"qty":         t.EntryQty,
			"stop":        t.StopPrice,
			"take_profit": t.TakeProfitPrice,
		},
	})

	// Protective orders. A failure here leaves the row PLACED without
	// an exchange id; CheckExits re-issues the same key next tick.
	x.ensureProtective(ctx, t, 2, t.StopPrice, now)
	x.ensureProtective(ctx, t, 3, t.TakeProfitPrice, now)

	return t, nil
}

// abortEntry cancels a trade whose entry the exchange permanently
// rejected.
func (x *Live) abortEntry(t trade.Trade, entry trade.Order, now time.Time, cause error) (trade.Trade, error) {
	_ = x.store.UpdateOrderStatus(entry.ID, trade.Failed, "", now)
	_ = x.store.CloseTrade(t.ID, journal.ExitFill{
		Status: trade.Canceled, ClosedAt: now, Notes: cause.Error(),
	})
	emit(x.events, event.Event{
		Time: now, Level: event.Error, Type: event.TypeTradeClosed,
		Symbol: t.Symbol, TradeID: t.ID,
		Payload: map[string]any{"status": string(trade.Canceled), "error": cause.Error()},
	})
	return trade.Trade{}, fmt.Errorf("live open %s: %w", t.Symbol, cause)
}

// ensureProtective persists (if new) and places one exit order under
// its deterministic key.
func (x *Live) ensureProtective(ctx context.Context, t trade.Trade, seq int, price float64, now time.Time) {
	key := trade.IdempotencyKey(t.ID, seq)

	var existing *trade.Order
	orders, err := x.store.Orders(t.ID)
	if err != nil {
		return
	}
	for i := range orders {
		if orders[i].IdempotencyKey == key {
			existing = &orders[i]
			break
		}
	}

	o := trade.Order{
		ID: id.New(), TradeID: t.ID, Symbol: t.Symbol,
		Side: trade.Sell, Type: trade.LimitOrder, Qty: t.EntryQty, Price: price,
		Status: trade.Placed, IdempotencyKey: key,
		CreatedAt: now, UpdatedAt: now,
	}
	if existing == nil {
		if err := x.store.InsertOrder(o); err != nil {
			return
		}
		x.emitOrderPlaced(t, o, now)
	} else {
		if existing.Status != trade.Placed || existing.ExchangeOrderID != "" {
			return
		}
		o = *existing
	}

	ack, err := x.place(ctx, exchange.OrderRequest{
		Symbol: t.Symbol, Side: trade.Sell, Type: trade.LimitOrder,
		Qty: o.Qty, Price: o.Price, IdempotencyKey: key,
	})
	if err != nil {
		emit(x.events, event.Event{
			Time: now, Level: event.Warn, Type: event.TypeOrderPlaced,
			Symbol: t.Symbol, TradeID: t.ID,
			Payload: map[string]any{"price": o.Price, "error": err.Error(), "retrying": true},
		})
		return
	}
	_ = x.store.UpdateOrderStatus(o.ID, trade.Placed, ack.ExchangeOrderID, now)
}

func (x *Live) CheckExits(ctx context.Context, t trade.Trade, c market.Candle, now time.Time) (trade.Trade, bool, error) {
	if t.Status != trade.Open {
		return t, false, nil
	}

	orders, err := x.store.Orders(t.ID)
	if err != nil {
		return t, false, err
	}

	// Re-place any protective order that never reached the exchange.
	for _, o := range orders {
		if o.Side == trade.Sell && o.Status == trade.Placed && o.ExchangeOrderID == "" {
			seq := 2
			if o.Price == t.TakeProfitPrice {
				seq = 3
			}
			x.ensureProtective(ctx, t, seq, o.Price, now)
		}
	}

	orders, err = x.store.Orders(t.ID)
	if err != nil {
		return t, false, err
	}
	for _, o := range orders {
		if o.Side != trade.Sell || o.Status != trade.Placed || o.ExchangeOrderID == "" {
			continue
		}
		state, err := x.exch.GetOrder(ctx, o.ExchangeOrderID)
		if err != nil {
			if exchange.ClassOf(err) == exchange.Transient && x.onInstability != nil {
				x.onInstability()
			}
			continue
		}
		if state.Status != trade.Filled {
			continue
		}
		return x.closeFilled(ctx, t, o, state, orders, now)
	}
	return t, false, nil
}

// closeFilled settles the trade after one exit order filled, and
// cancels the surviving sibling.
func (x *Live) closeFilled(ctx context.Context, t trade.Trade, o trade.Order,
	state exchange.OrderState, orders []trade.Order, now time.Time) (trade.Trade, bool, error) {

	exitPrice := state.FillPrice
	fees := t.EntryNotional*x.takerBPS/10_000 + exitPrice*t.EntryQty*x.makerBPS/10_000
	pnl := (exitPrice-t.EntryPrice)*t.EntryQty - fees

	reason := "stop"
	if o.Price == t.TakeProfitPrice {
		reason = "take_profit"
	}

	if err := x.store.CloseTrade(t.ID, journal.ExitFill{
		Price: exitPrice, PnL: pnl, Fees: fees, ClosedAt: now, Notes: reason,
	}); err != nil {
		return t, false, fmt.Errorf("live close: %w", err)
	}
	_ = x.store.UpdateOrderStatus(o.ID, trade.Filled, o.ExchangeOrderID, now)

	for _, sib := range orders {
		if sib.ID == o.ID || sib.Side != trade.Sell || sib.Status != trade.Placed {
			continue
		}
		if sib.ExchangeOrderID != "" {
			_ = x.exch.CancelOrder(ctx, sib.ExchangeOrderID)
		}
		_ = x.store.UpdateOrderStatus(sib.ID, trade.OrderCanceled, "", now)
	}

	emit(x.events, event.Event{
		Time: now, Level: event.Info, Type: event.TypeOrderFilled,
		Symbol: t.Symbol, TradeID: t.ID,
		Payload: map[string]any{"side": "SELL", "price": exitPrice, "qty": t.EntryQty, "reason": reason},
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

// place submits one order with bounded retries on transient errors.
// Duplicate collisions resolve to the canonical exchange state.
func (x *Live) place(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	var lastErr error
	for attempt := 0; attempt < x.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := x.sleep(ctx, x.backoff); err != nil {
				return exchange.OrderAck{}, exchange.NewError(exchange.Transient, "place_order", err)
			}
		}
		ack, err := x.exch.PlaceOrder(ctx, req)
		if err == nil {
			return ack, nil
		}
		switch exchange.ClassOf(err) {
		case exchange.Duplicate:
			state, gerr := x.exch.GetOrder(ctx, req.IdempotencyKey)
			if gerr != nil {
				return exchange.OrderAck{}, gerr
			}
			return exchange.OrderAck{
				ExchangeOrderID: state.ExchangeOrderID,
				Status:          state.Status,
				FillPrice:       state.FillPrice,
				FilledQty:       state.Qty,
			}, nil
		case exchange.Permanent:
			return exchange.OrderAck{}, err
		default:
			if x.onInstability != nil {
				x.onInstability()
			}
			lastErr = err
		}
	}
	return exchange.OrderAck{}, lastErr
}

func (x *Live) emitOrderPlaced(t trade.Trade, o trade.Order, now time.Time) {
	// Not public-safe: the payload carries the idempotency key.
	emit(x.events, event.Event{
		Time: now, Level: event.Info, Type: event.TypeOrderPlaced,
		Symbol: t.Symbol, TradeID: t.ID,
		Payload: map[string]any{
			"side":            string(o.Side),
			"type":            string(o.Type),
			"qty":             o.Qty,
			"price":           o.Price,
			"idempotency_key": o.IdempotencyKey,
		},
	})
}

var _ Executor = (*Live)(nil)
