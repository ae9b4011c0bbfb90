package marketdata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantspot/engine/market"
)

func klineMsg(symbol, timeframe string, openMS int64, o, h, l, c float64) []byte {
	return []byte(fmt.Sprintf(
		`{"stream":"%s@kline","data":{"symbol":"%s","timeframe":"%s","open_time_ms":%d,"open":%g,"high":%g,"low":%g,"close":%g,"volume":1}}`,
		symbol, symbol, timeframe, openMS, o, h, l, c))
}

func depthMsg(symbol string, bid, ask float64) []byte {
	return []byte(fmt.Sprintf(
		`{"stream":"%s@depth","data":{"symbol":"%s","bids":[[%g,1],[%g,2]],"asks":[[%g,1],[%g,2]]}}`,
		symbol, symbol, bid, bid-1, ask, ask+1))
}

func TestStreamCachesCandlesAscending(t *testing.T) {
	t.Parallel()

	s := NewStream(StreamConfig{CandleCap: 10}, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

	for i := 0; i < 3; i++ {
		s.Ingest(klineMsg("BTC-USDT", "1m", base+int64(i)*60_000, 100, 101, 99, 100.5))
	}

	got, err := s.GetCandles(context.Background(), "BTC-USDT", "1m", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, market.Frame{Candles: got}.Sorted())
}

func TestStreamUpsertsInProgressBar(t *testing.T) {
	t.Parallel()

	s := NewStream(StreamConfig{}, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

	s.Ingest(klineMsg("BTC-USDT", "1m", base, 100, 101, 99, 100.5))
	s.Ingest(klineMsg("BTC-USDT", "1m", base, 100, 102, 99, 101.8))

	got, err := s.GetCandles(context.Background(), "BTC-USDT", "1m", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 101.8, got[0].Close, 1e-9)
	assert.InDelta(t, 102, got[0].High, 1e-9)
}

func TestStreamDropsOutOfOrderBar(t *testing.T) {
	t.Parallel()

	s := NewStream(StreamConfig{}, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

	s.Ingest(klineMsg("BTC-USDT", "1m", base+60_000, 100, 101, 99, 100.5))
	s.Ingest(klineMsg("BTC-USDT", "1m", base, 90, 91, 89, 90.5))

	got, err := s.GetCandles(context.Background(), "BTC-USDT", "1m", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 100.5, got[0].Close, 1e-9)
}

func TestStreamCandleCapBoundsWindow(t *testing.T) {
	t.Parallel()

	s := NewStream(StreamConfig{CandleCap: 5}, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

	for i := 0; i < 8; i++ {
		s.Ingest(klineMsg("BTC-USDT", "1m", base+int64(i)*60_000, 100, 101, 99, float64(100+i)))
	}

	got, err := s.GetCandles(context.Background(), "BTC-USDT", "1m", 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.InDelta(t, 107, got[4].Close, 1e-9)

	// limit narrows further
	got, err = s.GetCandles(context.Background(), "BTC-USDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 106, got[0].Close, 1e-9)
}

func TestStreamOrderBookBestFirst(t *testing.T) {
	t.Parallel()

	s := NewStream(StreamConfig{}, nil)
	s.Ingest(depthMsg("BTC-USDT", 29_999, 30_001))

	book, err := s.GetOrderBook(context.Background(), "BTC-USDT", 1)
	require.NoError(t, err)
	assert.InDelta(t, 29_999, book.BestBid().Price, 1e-9)
	assert.InDelta(t, 30_001, book.BestAsk().Price, 1e-9)
	assert.Len(t, book.Bids, 1)
}

func TestStreamStaleness(t *testing.T) {
	t.Parallel()

	s := NewStream(StreamConfig{StalenessBound: time.Minute}, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	s.Ingest(klineMsg("BTC-USDT", "1m", base.UnixMilli(), 100, 101, 99, 100.5))
	s.Ingest(depthMsg("BTC-USDT", 29_999, 30_001))

	_, err := s.GetCandles(context.Background(), "BTC-USDT", "1m", 0)
	require.NoError(t, err)

	now = base.Add(5 * time.Minute)
	_, err = s.GetCandles(context.Background(), "BTC-USDT", "1m", 0)
	assert.ErrorIs(t, err, market.ErrStaleData)
	_, err = s.GetOrderBook(context.Background(), "BTC-USDT", 0)
	assert.ErrorIs(t, err, market.ErrStaleData)
}

func TestStreamNoData(t *testing.T) {
	t.Parallel()

	s := NewStream(StreamConfig{}, nil)
	_, err := s.GetCandles(context.Background(), "ETH-USDT", "1m", 0)
	assert.ErrorIs(t, err, market.ErrNoData)
	_, err = s.GetOrderBook(context.Background(), "ETH-USDT", 0)
	assert.ErrorIs(t, err, market.ErrNoData)
}
