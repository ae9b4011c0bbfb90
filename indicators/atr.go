package indicators

import (
	"math"

	"github.com/quantspot/engine/market"
)

// trueRange calculates the True Range for a candle given the previous
// candle.
func trueRange(current, previous market.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// ATR calculates the Average True Range using Wilder smoothing. Needs
// period+1 candles because TR requires the previous close.
func ATR(candles []market.Candle, period int) (float64, error) {
	series, err := ATRSeries(candles, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// ATRSeries returns one ATR value per candle from index period onward.
// The first value is the seeding SMA of the first period true ranges.
func ATRSeries(candles []market.Candle, period int) ([]float64, error) {
	if period <= 0 || len(candles) < period+1 {
		return nil, ErrInsufficientData
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1]))
	}

	// Initial ATR is the SMA of the first period true ranges, then
	// Wilder's smoothing for the rest.
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trs[i]
	}
	atr := sum / float64(period)

	out := make([]float64, 0, len(trs)-period+1)
	out = append(out, atr)
	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
		if !finite(atr) {
			return nil, ErrInsufficientData
		}
		out = append(out, atr)
	}
	return out, nil
}
