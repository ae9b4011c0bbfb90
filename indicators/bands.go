package indicators

import (
	"math"

	"github.com/quantspot/engine/market"
)

// Bollinger calculates Bollinger Bands over the last period closes:
// middle = SMA, upper/lower = middle ± width*stddev. Stddev is the
// sample standard deviation.
func Bollinger(candles []market.Candle, period int, width float64) (middle, upper, lower float64, err error) {
	if period <= 1 || len(candles) < period {
		return 0, 0, 0, ErrInsufficientData
	}

	middle, err = SMA(candles, period)
	if err != nil {
		return 0, 0, 0, err
	}

	variance := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		d := candles[i].Close - middle
		variance += d * d
	}
	variance /= float64(period - 1)
	sd := math.Sqrt(variance)

	upper = middle + width*sd
	lower = middle - width*sd
	if !finite(middle, upper, lower) {
		return 0, 0, 0, ErrInsufficientData
	}
	return middle, upper, lower, nil
}

// Donchian calculates the rolling extremes (highest high, lowest low)
// over the last period candles.
func Donchian(candles []market.Candle, period int) (high, low float64, err error) {
	if period <= 0 || len(candles) < period {
		return 0, 0, ErrInsufficientData
	}

	start := len(candles) - period
	high = candles[start].High
	low = candles[start].Low
	for i := start + 1; i < len(candles); i++ {
		if candles[i].High > high {
			high = candles[i].High
		}
		if candles[i].Low < low {
			low = candles[i].Low
		}
	}
	if !finite(high, low) {
		return 0, 0, ErrInsufficientData
	}
	return high, low, nil
}
