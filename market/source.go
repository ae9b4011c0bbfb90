package market

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoData is returned when the source has nothing for a symbol.
	ErrNoData = errors.New("market: no data")

	// ErrStaleData is returned when the freshest data the source holds is
	// older than the configured staleness bound.
	ErrStaleData = errors.New("market: data too stale")
)

// DataSource supplies candles and orderbook snapshots to the engine.
//
// Contract: candles are ordered ascending with no duplicates; orderbook
// levels are sorted by price, best first; data is no older than the
// configured staleness bound, otherwise ErrStaleData.
type DataSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (OrderBookSnapshot, error)
}

// CheckFresh validates a candle timestamp against a staleness bound.
func CheckFresh(ts, now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	if now.Sub(ts) > maxAge {
		return ErrStaleData
	}
	return nil
}
