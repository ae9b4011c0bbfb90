package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantspot/engine/market"
)

// mkCandles builds a candle series from close prices. High/Low are
// derived with a small band so TR-based indicators have range to work with.
func mkCandles(closes ...float64) []market.Candle {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Time:   t0.Add(time.Duration(i) * time.Minute),
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 100,
		}
	}
	return out
}

func TestSMA(t *testing.T) {
	t.Parallel()

	candles := mkCandles(1, 2, 3, 4, 5)

	v, err := SMA(candles, 5)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-9)

	v, err = SMA(candles, 2)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, v, 1e-9)

	_, err = SMA(candles, 6)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = SMA(candles, 0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEMAConstantSeries(t *testing.T) {
	t.Parallel()

	candles := mkCandles(10, 10, 10, 10, 10, 10, 10, 10)
	v, err := EMA(candles, 4)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, v, 1e-9)
}

func TestEMAKnownValues(t *testing.T) {
	t.Parallel()

	// Hand-computed: seed SMA(1..3)=2, k=0.5
	// next: (4-2)*0.5+2 = 3; (5-3)*0.5+3 = 4
	candles := mkCandles(1, 2, 3, 4, 5)
	v, err := EMA(candles, 3)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v, 1e-9)
}

func TestEMADeterministic(t *testing.T) {
	t.Parallel()

	candles := mkCandles(3, 1, 4, 1, 5, 9, 2, 6)
	a, err := EMA(candles, 3)
	require.NoError(t, err)
	b, err := EMA(candles, 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRSIAllGains(t *testing.T) {
	t.Parallel()

	candles := mkCandles(1, 2, 3, 4, 5, 6, 7, 8)
	v, err := RSI(candles, 5)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, v, 1e-9)
}

func TestRSIFlat(t *testing.T) {
	t.Parallel()

	candles := mkCandles(5, 5, 5, 5, 5, 5)
	v, err := RSI(candles, 4)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, v, 1e-9)
}

func TestRSIRange(t *testing.T) {
	t.Parallel()

	candles := mkCandles(44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1, 45.9, 46.0, 45.6, 46.3, 46.2)
	v, err := RSI(candles, 14)
	require.NoError(t, err)
	assert.Greater(t, v, 50.0)
	assert.Less(t, v, 100.0)
}

func TestATRConstantRange(t *testing.T) {
	t.Parallel()

	// Every bar has H-L = 1 and no close-to-close jumps, so TR = 1.
	t0 := time.Now().UTC()
	var candles []market.Candle
	for i := 0; i < 20; i++ {
		candles = append(candles, market.Candle{
			Time: t0.Add(time.Duration(i) * time.Minute),
			Open: 10, High: 10.5, Low: 9.5, Close: 10,
		})
	}

	v, err := ATR(candles, 14)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-9)
}

func TestATRInsufficient(t *testing.T) {
	t.Parallel()

	candles := mkCandles(1, 2, 3)
	_, err := ATR(candles, 14)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestADXTrendingVsChoppy(t *testing.T) {
	t.Parallel()

	// Strong monotonic uptrend should produce a high ADX.
	up := make([]float64, 40)
	for i := range up {
		up[i] = 100 + float64(i)*2
	}
	trending, err := ADX(mkCandles(up...), 14)
	require.NoError(t, err)
	assert.Greater(t, trending, 25.0)

	_, err = ADX(mkCandles(1, 2, 3), 14)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBollinger(t *testing.T) {
	t.Parallel()

	candles := mkCandles(2, 4, 6, 8, 10)
	mid, upper, lower, err := Bollinger(candles, 5, 2)
	require.NoError(t, err)

	assert.InDelta(t, 6.0, mid, 1e-9)
	// Sample stddev of {2,4,6,8,10} = sqrt(10) ≈ 3.1623
	assert.InDelta(t, 6.0+2*3.1622776601, upper, 1e-6)
	assert.InDelta(t, 6.0-2*3.1622776601, lower, 1e-6)
	assert.Greater(t, upper, lower)
}

func TestDonchian(t *testing.T) {
	t.Parallel()

	candles := mkCandles(5, 9, 3, 7, 6)
	high, low, err := Donchian(candles, 5)
	require.NoError(t, err)
	assert.InDelta(t, 9.5, high, 1e-9) // close+0.5 band from mkCandles
	assert.InDelta(t, 2.5, low, 1e-9)

	// Lookback shorter than the window only sees the tail.
	high, low, err = Donchian(candles, 2)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, high, 1e-9)
	assert.InDelta(t, 5.5, low, 1e-9)
}

func TestVWAP(t *testing.T) {
	t.Parallel()

	candles := []market.Candle{
		{High: 11, Low: 9, Close: 10, Volume: 100},
		{High: 21, Low: 19, Close: 20, Volume: 300},
	}
	v, err := VWAP(candles)
	require.NoError(t, err)
	assert.InDelta(t, (10*100+20*300)/400.0, v, 1e-9)

	_, err = VWAP(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	// Zero total volume is insufficient data, not a division blowup.
	_, err = VWAP([]market.Candle{{Close: 10}})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestOBV(t *testing.T) {
	t.Parallel()

	candles := []market.Candle{
		{Close: 10, Volume: 100},
		{Close: 11, Volume: 50},  // +50
		{Close: 10, Volume: 30},  // -30
		{Close: 10, Volume: 999}, // unchanged, ignored
	}
	v, err := OBV(candles)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, v, 1e-9)
}

func TestMACDTrend(t *testing.T) {
	t.Parallel()

	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	macd, sig, hist, err := MACD(mkCandles(closes...), 12, 26, 9)
	require.NoError(t, err)
	assert.Greater(t, macd, 0.0)
	assert.InDelta(t, macd-sig, hist, 1e-9)

	_, _, _, err = MACD(mkCandles(1, 2, 3), 12, 26, 9)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
