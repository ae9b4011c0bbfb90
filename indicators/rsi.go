package indicators

import "github.com/quantspot/engine/market"

// RSI calculates the Relative Strength Index using Wilder smoothing.
// Needs period+1 candles for the first period close-to-close changes.
func RSI(candles []market.Candle, period int) (float64, error) {
	if period <= 0 || len(candles) < period+1 {
		return 0, ErrInsufficientData
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	fp := float64(period)
	for i := period + 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(fp-1) + gain) / fp
		avgLoss = (avgLoss*(fp-1) + loss) / fp
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			// Flat series; neutral by convention.
			return 50, nil
		}
		return 100, nil
	}
	rs := avgGain / avgLoss
	return guard(100 - 100/(1+rs))
}
