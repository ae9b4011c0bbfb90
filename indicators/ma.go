package indicators

import "github.com/quantspot/engine/market"

// SMA calculates the Simple Moving Average of closes over the last
// period candles.
func SMA(candles []market.Candle, period int) (float64, error) {
	if period <= 0 || len(candles) < period {
		return 0, ErrInsufficientData
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return guard(sum / float64(period))
}

// EMA calculates the Exponential Moving Average of closes with
// multiplier k = 2/(period+1), seeded with the SMA of the first period
// closes.
func EMA(candles []market.Candle, period int) (float64, error) {
	series, err := EMASeries(candles, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// EMASeries returns one EMA value per candle from index period-1
// onward. The first value is the seeding SMA.
func EMASeries(candles []market.Candle, period int) ([]float64, error) {
	if period <= 0 || len(candles) < period {
		return nil, ErrInsufficientData
	}

	k := 2.0 / float64(period+1)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += candles[i].Close
	}
	ema := seed / float64(period)

	out := make([]float64, 0, len(candles)-period+1)
	out = append(out, ema)
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close-ema)*k + ema
		if !finite(ema) {
			return nil, ErrInsufficientData
		}
		out = append(out, ema)
	}
	return out, nil
}

// MACD calculates the Moving Average Convergence Divergence line, its
// signal line, and the histogram for the standard fast/slow/signal
// periods (12/26/9 unless configured otherwise).
func MACD(candles []market.Candle, fast, slow, signal int) (macd, sig, hist float64, err error) {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return 0, 0, 0, ErrInsufficientData
	}
	if len(candles) < slow+signal {
		return 0, 0, 0, ErrInsufficientData
	}

	fastS, err := EMASeries(candles, fast)
	if err != nil {
		return 0, 0, 0, err
	}
	slowS, err := EMASeries(candles, slow)
	if err != nil {
		return 0, 0, 0, err
	}

	// Align the two series on their tails; the MACD line exists from the
	// first index where both EMAs exist.
	n := len(slowS)
	line := make([]float64, n)
	for i := 0; i < n; i++ {
		line[i] = fastS[len(fastS)-n+i] - slowS[i]
	}
	if len(line) < signal {
		return 0, 0, 0, ErrInsufficientData
	}

	// EMA of the MACD line for the signal.
	k := 2.0 / float64(signal+1)
	seed := 0.0
	for i := 0; i < signal; i++ {
		seed += line[i]
	}
	sig = seed / float64(signal)
	for i := signal; i < len(line); i++ {
		sig = (line[i]-sig)*k + sig
	}

	macd = line[len(line)-1]
	hist = macd - sig
	if !finite(macd, sig, hist) {
		return 0, 0, 0, ErrInsufficientData
	}
	return macd, sig, hist, nil
}
