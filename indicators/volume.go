package indicators

import "github.com/quantspot/engine/market"

// VWAP calculates the volume-weighted average price over the window
// using the typical price (H+L+C)/3 per bar.
func VWAP(candles []market.Candle) (float64, error) {
	if len(candles) == 0 {
		return 0, ErrInsufficientData
	}

	var pv, vol float64
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0, ErrInsufficientData
	}
	return guard(pv / vol)
}

// OBV calculates On-Balance Volume: cumulative volume signed by the
// direction of each close-to-close change.
func OBV(candles []market.Candle) (float64, error) {
	if len(candles) < 2 {
		return 0, ErrInsufficientData
	}

	obv := 0.0
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv += candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			obv -= candles[i].Volume
		}
	}
	return guard(obv)
}
