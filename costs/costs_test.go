package costs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantspot/engine/market"
)

func testBook() market.OrderBookSnapshot {
	return market.OrderBookSnapshot{
		Symbol: "BTC/USDT",
		Bids: []market.Level{
			{Price: 29_999, Size: 0.5},
			{Price: 29_998, Size: 1.0},
		},
		Asks: []market.Level{
			{Price: 30_001, Size: 0.5},
			{Price: 30_002, Size: 1.0},
		},
	}
}

func TestEstimateMarketBuyTopOfBook(t *testing.T) {
	t.Parallel()

	e := Estimator{TakerBPS: 10, MakerBPS: 5}
	b, err := e.Estimate(testBook(), Buy, 0.1, Market)
	require.NoError(t, err)

	// Fully filled at the best ask: no slippage.
	assert.InDelta(t, 30_001.0, b.AvgFill, 1e-9)
	assert.InDelta(t, 0.0, b.SlippageUSD, 1e-9)

	notional := 30_001.0 * 0.1
	assert.InDelta(t, notional*10/10_000, b.FeeUSD, 1e-9)

	spreadBPS := (30_001.0 - 29_999.0) / 30_000.0 * 10_000
	assert.InDelta(t, notional*spreadBPS/10_000, b.SpreadUSD, 1e-6)
	assert.InDelta(t, b.FeeUSD+b.SpreadUSD+b.SlippageUSD, b.Total(), 1e-9)
}

func TestEstimateWalksDepth(t *testing.T) {
	t.Parallel()

	e := Estimator{TakerBPS: 10}
	b, err := e.Estimate(testBook(), Buy, 1.0, Market)
	require.NoError(t, err)

	// 0.5 @ 30001 + 0.5 @ 30002
	wantAvg := (30_001.0*0.5 + 30_002.0*0.5) / 1.0
	assert.InDelta(t, wantAvg, b.AvgFill, 1e-9)
	assert.InDelta(t, (wantAvg-30_001.0)*1.0, b.SlippageUSD, 1e-9)
	assert.Greater(t, b.SlippageUSD, 0.0)
}

func TestEstimateSellWalksBids(t *testing.T) {
	t.Parallel()

	e := Estimator{TakerBPS: 10}
	b, err := e.Estimate(testBook(), Sell, 1.0, Market)
	require.NoError(t, err)

	wantAvg := (29_999.0*0.5 + 29_998.0*0.5) / 1.0
	assert.InDelta(t, wantAvg, b.AvgFill, 1e-9)
	// Selling below the best bid is positive slippage cost.
	assert.InDelta(t, (29_999.0-wantAvg)*1.0, b.SlippageUSD, 1e-9)
	assert.Greater(t, b.SlippageUSD, 0.0)
}

func TestEstimateLimitHalfSpreadMakerFee(t *testing.T) {
	t.Parallel()

	e := Estimator{TakerBPS: 10, MakerBPS: 4}
	mkt, err := e.Estimate(testBook(), Buy, 0.1, Market)
	require.NoError(t, err)
	lim, err := e.Estimate(testBook(), Buy, 0.1, Limit)
	require.NoError(t, err)

	assert.InDelta(t, mkt.SpreadUSD/2, lim.SpreadUSD, 1e-9)
	assert.InDelta(t, mkt.FeeUSD*4/10, lim.FeeUSD, 1e-9)
}

func TestEstimateInsufficientDepth(t *testing.T) {
	t.Parallel()

	e := Estimator{TakerBPS: 10}
	_, err := e.Estimate(testBook(), Buy, 2.0, Market)
	assert.ErrorIs(t, err, ErrInsufficientDepth)

	_, err = e.Estimate(market.OrderBookSnapshot{}, Buy, 0.001, Market)
	assert.ErrorIs(t, err, ErrInsufficientDepth)
}

func TestEstimateRejectsNonPositiveQty(t *testing.T) {
	t.Parallel()

	e := Estimator{TakerBPS: 10}
	_, err := e.Estimate(testBook(), Buy, 0, Market)
	assert.Error(t, err)
}
