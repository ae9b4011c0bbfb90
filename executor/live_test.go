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
	"github.com/quantspot/engine/market"
	"github.com/quantspot/engine/trade"
)

func noSleep(context.Context, time.Duration) error { return nil }

func armedLive(t *testing.T, j *journal.Journal, sim *exchange.Sim, opts ...LiveOption) *Live {
	t.Helper()
	armory := NewArmory()
	token := armory.Arm(time.Hour)
	opts = append([]LiveOption{WithSleep(noSleep)}, opts...)
	return NewLive(j, event.NewSink(j), sim, armory, token, 10, 5, opts...)
}

func TestLiveRequiresArmedToken(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	sim := exchange.NewSim()
	sim.MarkPrice("BTC-USDT", 30_000)

	armory := NewArmory()
	x := NewLive(j, event.NewSink(j), sim, armory, "never-issued", 10, 5)

	_, err := x.Open(context.Background(), testPlan(), time.Now())
	require.ErrorIs(t, err, ErrNotArmed)

	open, err := j.OpenTrades()
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestLiveExpiredTokenRefused(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	armory := NewArmory(WithArmoryClock(func() time.Time { return at }))
	token := armory.Arm(5 * time.Minute)
	assert.True(t, armory.Valid(token))

	at = at.Add(6 * time.Minute)
	assert.False(t, armory.Valid(token))

	j := testJournal(t)
	x := NewLive(j, event.NewSink(j), exchange.NewSim(), armory, token, 10, 5)
	_, err := x.Open(context.Background(), testPlan(), at)
	require.ErrorIs(t, err, ErrNotArmed)
}

func TestLiveRevokedTokenRefused(t *testing.T) {
	t.Parallel()

	armory := NewArmory()
	token := armory.Arm(time.Hour)
	require.True(t, armory.Valid(token))

	armory.Revoke(token)
	assert.False(t, armory.Valid(token))

	j := testJournal(t)
	x := NewLive(j, event.NewSink(j), exchange.NewSim(), armory, token, 10, 5)
	_, err := x.Open(context.Background(), testPlan(), time.Now())
	require.ErrorIs(t, err, ErrNotArmed)

	open, err := j.OpenTrades()
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestLiveOpenPlacesEntryAndProtectiveOrders(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	sim := exchange.NewSim()
	sim.MarkPrice("BTC-USDT", 30_000)
	x := armedLive(t, j, sim)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	opened, err := x.Open(context.Background(), testPlan(), now)
	require.NoError(t, err)
	assert.Equal(t, trade.Live, opened.Mode)

	orders, err := j.Orders(opened.ID)
	require.NoError(t, err)
	require.Len(t, orders, 3)

	for i, o := range orders {
		assert.Equal(t, trade.IdempotencyKey(opened.ID, i+1), o.IdempotencyKey)
	}
	assert.Equal(t, trade.Filled, orders[0].Status)
	assert.NotEmpty(t, orders[0].ExchangeOrderID)
	assert.Equal(t, trade.Placed, orders[1].Status)
	assert.NotEmpty(t, orders[1].ExchangeOrderID)
	assert.Equal(t, trade.Placed, orders[2].Status)
	assert.NotEmpty(t, orders[2].ExchangeOrderID)

	types := eventTypes(t, j)
	assert.Contains(t, types, event.TypeTradeOpened)
	assert.Contains(t, types, event.TypeOrderFilled)
	assert.Equal(t, 3, countOf(types, event.TypeOrderPlaced))
}

func TestLiveTransientRetrySameKey(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	sim := exchange.NewSim()
	sim.MarkPrice("BTC-USDT", 30_000)
	sim.FailNextPlace(exchange.NewError(exchange.Transient, "place_order", errors.New("gateway timeout")))

	var instability int
	x := armedLive(t, j, sim,
		WithRetry(3, 0),
		WithInstabilityHook(func() { instability++ }))

	opened, err := x.Open(context.Background(), testPlan(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, instability)

	// Retry reused the key: exactly one exchange order for the entry.
	orders, err := j.Orders(opened.ID)
	require.NoError(t, err)
	state, err := sim.GetOrder(context.Background(), orders[0].IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, orders[0].ExchangeOrderID, state.ExchangeOrderID)
}

func TestLivePermanentRejectCancelsTrade(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	sim := exchange.NewSim()
	sim.MarkPrice("BTC-USDT", 30_000)
	sim.FailNextPlace(exchange.NewError(exchange.Permanent, "place_order", errors.New("invalid order")))
	x := armedLive(t, j, sim)

	_, err := x.Open(context.Background(), testPlan(), time.Now())
	require.Error(t, err)
	assert.Equal(t, exchange.Permanent, exchange.ClassOf(err))

	open, err := j.OpenTrades()
	require.NoError(t, err)
	assert.Empty(t, open)

	// The trade row exists but is CANCELED with its entry FAILED.
	types := eventTypes(t, j)
	assert.Contains(t, types, event.TypeTradeClosed)
}

func TestLivePlaceDuplicateResolvesToCanonicalOrder(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	sim := exchange.NewSim()
	sim.MarkPrice("BTC-USDT", 30_000)
	x := armedLive(t, j, sim)

	req := exchange.OrderRequest{
		Symbol: "BTC-USDT", Side: trade.Buy, Type: trade.MarketOrder,
		Qty: 0.01, IdempotencyKey: "QS-t1-1",
	}
	first, err := x.place(context.Background(), req)
	require.NoError(t, err)

	sim.DuplicateNextPlace()
	second, err := x.place(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ExchangeOrderID, second.ExchangeOrderID)
}

func TestLiveCheckExitsClosesOnStopFill(t *testing.T) {
	t.Parallel()

	j := testJournal(t)
	sim := exchange.NewSim()
	sim.MarkPrice("BTC-USDT", 30_000)
	x := armedLive(t, j, sim)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	opened, err := x.Open(context.Background(), testPlan(), now)
	require.NoError(t, err)

	orders, err := j.Orders(opened.ID)
	require.NoError(t, err)
	stop := orders[1]
	require.InDelta(t, 29_500, stop.Price, 1e-9)

	// The exchange fills the stop below the placed level.
	require.NoError(t, sim.FillOrder(stop.ExchangeOrderID, 29_450))

	closed, done, err := x.CheckExits(context.Background(), opened, market.Candle{}, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, done)
	assert.InDelta(t, 29_450, closed.ExitPrice, 1e-9)
	assert.Less(t, closed.RealizedPnL, 0.0)

	// Sibling take-profit canceled on both sides.
	orders, err = j.Orders(opened.ID)
	require.NoError(t, err)
	tp := orders[2]
	assert.Equal(t, trade.OrderCanceled, tp.Status)
	state, err := sim.GetOrder(context.Background(), trade.IdempotencyKey(opened.ID, 3))
	require.NoError(t, err)
	assert.Equal(t, trade.OrderCanceled, state.Status)

	got, err := j.GetTrade(opened.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.Closed, got.Status)
}
