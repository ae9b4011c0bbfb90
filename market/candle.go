// Package market defines the core market-data types consumed by the
// engine: candles, orderbook snapshots, and the DataSource contract.
package market

import "time"

// Candle represents one OHLCV (Open, High, Low, Close, Volume) bar.
// Candles are immutable once constructed.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Frame is a finite window of candles for one symbol and timeframe,
// ordered strictly ascending by time. The engine never inserts gaps.
type Frame struct {
	Symbol    string
	Timeframe string
	Candles   []Candle
}

// Last returns the most recent candle and false when the frame is empty.
func (f Frame) Last() (Candle, bool) {
	if len(f.Candles) == 0 {
		return Candle{}, false
	}
	return f.Candles[len(f.Candles)-1], true
}

// Closes returns the close prices of the frame in order.
func (f Frame) Closes() []float64 {
	out := make([]float64, len(f.Candles))
	for i, c := range f.Candles {
		out[i] = c.Close
	}
	return out
}

// Sorted reports whether candles are strictly ascending by time with no
// duplicates, the ordering the DataSource contract guarantees.
func (f Frame) Sorted() bool {
	for i := 1; i < len(f.Candles); i++ {
		if !f.Candles[i].Time.After(f.Candles[i-1].Time) {
			return false
		}
	}
	return true
}
