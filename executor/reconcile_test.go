package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantspot/engine/event"
	"github.com/quantspot/engine/exchange"
	"github.com/quantspot/engine/journal"
	"github.com/quantspot/engine/trade"
)

// seedLiveTrade persists an open live trade whose entry filled and
// whose stop/take-profit rest on the given exchange, as the engine
// would leave things before a crash.
func seedLiveTrade(t *testing.T, j *journal.Journal, sim *exchange.Sim, now time.Time) (trade.Trade, []trade.Order) {
	t.Helper()

	tr := trade.Trade{
		ID: "t1", Symbol: "BTC-USDT", Side: trade.Long,
		Status: trade.Open, Mode: trade.Live, OpenedAt: now,
		EntryPrice: 30_000, EntryQty: 0.01, EntryNotional: 300,
		StopPrice: 29_900, TakeProfitPrice: 30_600,
	}

	sim.MarkPrice("BTC-USDT", 30_000)
	entryAck, err := sim.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTC-USDT", Side: trade.Buy, Type: trade.MarketOrder,
		Qty: 0.01, IdempotencyKey: trade.IdempotencyKey(tr.ID, 1),
	})
	require.NoError(t, err)
	stopAck, err := sim.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTC-USDT", Side: trade.Sell, Type: trade.LimitOrder,
		Qty: 0.01, Price: 29_900, IdempotencyKey: trade.IdempotencyKey(tr.ID, 2),
	})
	require.NoError(t, err)
	tpAck, err := sim.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTC-USDT", Side: trade.Sell, Type: trade.LimitOrder,
		Qty: 0.01, Price: 30_600, IdempotencyKey: trade.IdempotencyKey(tr.ID, 3),
	})
	require.NoError(t, err)

	orders := []trade.Order{
		{ID: "o1", TradeID: tr.ID, Symbol: tr.Symbol, Side: trade.Buy, Type: trade.MarketOrder,
			Qty: 0.01, Status: trade.Filled, ExchangeOrderID: entryAck.ExchangeOrderID,
			IdempotencyKey: trade.IdempotencyKey(tr.ID, 1), CreatedAt: now, UpdatedAt: now},
		{ID: "o2", TradeID: tr.ID, Symbol: tr.Symbol, Side: trade.Sell, Type: trade.LimitOrder,
			Qty: 0.01, Price: 29_900, Status: trade.Placed, ExchangeOrderID: stopAck.ExchangeOrderID,
			IdempotencyKey: trade.IdempotencyKey(tr.ID, 2), CreatedAt: now, UpdatedAt: now},
		{ID: "o3", TradeID: tr.ID, Symbol: tr.Symbol, Side: trade.Sell, Type: trade.LimitOrder,
			Qty: 0.01, Price: 30_600, Status: trade.Placed, ExchangeOrderID: tpAck.ExchangeOrderID,
			IdempotencyKey: trade.IdempotencyKey(tr.ID, 3), CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, j.OpenTrade(tr, orders))
	return tr, orders
}

func TestReconcileClosesTradeFromRemoteStopFill(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	sim := exchange.NewSim()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr, orders := seedLiveTrade(t, j, sim, now)

	// While the engine was down the stop filled at 29 900.
	require.NoError(t, sim.FillOrder(orders[1].ExchangeOrderID, 29_900))

	r := NewReconciler(j, event.NewSink(j), sim, 10, 5)
	require.NoError(t, r.Run(context.Background(), now.Add(time.Hour)))

	got, err := j.GetTrade(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.Closed, got.Status)
	assert.InDelta(t, 29_900, got.ExitPrice, 1e-9)
	// fees = 300*10bps + 299*5bps = 0.3 + 0.1495; pnl = -1 - fees
	assert.InDelta(t, -1.4495, got.RealizedPnL, 1e-6)

	// The surviving take-profit is canceled, not double-exited.
	after, err := j.Orders(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.Filled, after[1].Status)
	assert.Equal(t, trade.OrderCanceled, after[2].Status)

	types := eventTypes(t, j)
	assert.Contains(t, types, event.TypeReconcileCompleted)
	assert.Contains(t, types, event.TypeTradeClosed)
}

func TestReconcileConsistentStateIsNoOp(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	sim := exchange.NewSim()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr, _ := seedLiveTrade(t, j, sim, now)

	r := NewReconciler(j, event.NewSink(j), sim, 10, 5)
	require.NoError(t, r.Run(context.Background(), now))

	// Both exits still rest on the exchange: nothing changes.
	got, err := j.GetTrade(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.Open, got.Status)

	orders, err := j.Orders(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.Placed, orders[1].Status)
	assert.Equal(t, trade.Placed, orders[2].Status)

	// A second pass over the already-reconciled state is identical.
	require.NoError(t, r.Run(context.Background(), now))
	again, err := j.GetTrade(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestReconcileCancelsTradeWhoseEntryNeverPlaced(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	sim := exchange.NewSim()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tr := trade.Trade{
		ID: "t9", Symbol: "BTC-USDT", Side: trade.Long,
		Status: trade.Open, Mode: trade.Live, OpenedAt: now,
		EntryPrice: 30_000, EntryQty: 0.01, EntryNotional: 300,
		StopPrice: 29_900, TakeProfitPrice: 30_600,
	}
	entry := trade.Order{
		ID: "o1", TradeID: tr.ID, Symbol: tr.Symbol, Side: trade.Buy, Type: trade.MarketOrder,
		Qty: 0.01, Status: trade.Placed, IdempotencyKey: trade.IdempotencyKey(tr.ID, 1),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, j.OpenTrade(tr, []trade.Order{entry}))

	r := NewReconciler(j, event.NewSink(j), sim, 10, 5)
	require.NoError(t, r.Run(context.Background(), now))

	got, err := j.GetTrade(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.Canceled, got.Status)

	orders, err := j.Orders(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.Failed, orders[0].Status)
}

// flakyAdapter fails every GetOrder with a transient error.
type flakyAdapter struct {
	exchange.Adapter
}

func (f flakyAdapter) GetOrder(ctx context.Context, idOrKey string) (exchange.OrderState, error) {
	return exchange.OrderState{}, exchange.NewError(exchange.Transient, "get_order", errors.New("connection reset"))
}

func TestReconcileUnknownRemoteStateIsConflict(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	sim := exchange.NewSim()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr, _ := seedLiveTrade(t, j, sim, now)

	r := NewReconciler(j, event.NewSink(j), flakyAdapter{sim}, 10, 5)
	err := r.Run(context.Background(), now)
	require.ErrorIs(t, err, ErrReconcileConflict)

	// Nothing was guessed: the trade stays open and untouched.
	got, err := j.GetTrade(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.Open, got.Status)
}

func TestReconcileSkipsDryRunTrades(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := trade.Trade{
		ID: "d1", Symbol: "BTC-USDT", Side: trade.Long,
		Status: trade.Open, Mode: trade.DryRun, OpenedAt: now,
		EntryPrice: 30_000, EntryQty: 0.01, EntryNotional: 300,
		StopPrice: 29_900, TakeProfitPrice: 30_600,
	}
	require.NoError(t, j.OpenTrade(tr, nil))

	r := NewReconciler(j, event.NewSink(j), exchange.NewSim(), 10, 5)
	require.NoError(t, r.Run(context.Background(), now))

	got, err := j.GetTrade(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.Open, got.Status)
}
