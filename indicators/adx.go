package indicators

import (
	"math"

	"github.com/quantspot/engine/market"
)

// ADX calculates Wilder's Average Directional Index (trend strength)
// over the window. Needs 2*period+1 candles: period to seed the
// smoothed TR/+DM/-DM averages, then period DX values to seed ADX.
func ADX(candles []market.Candle, period int) (float64, error) {
	if period <= 0 || len(candles) < 2*period+1 {
		return 0, ErrInsufficientData
	}

	var tr, pdm, mdm float64
	var adx, dxSum float64
	dxCount := 0
	seeded := false

	for i := 1; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]

		upMove := cur.High - prev.High
		downMove := prev.Low - cur.Low

		var p, m float64
		if upMove > downMove && upMove > 0 {
			p = upMove
		}
		if downMove > upMove && downMove > 0 {
			m = downMove
		}
		t := trueRange(cur, prev)

		if i <= period {
			// Warmup phase A: accumulate initial averages.
			tr += t
			pdm += p
			mdm += m
			if i == period {
				tr /= float64(period)
				pdm /= float64(period)
				mdm /= float64(period)
			}
			continue
		}

		// Wilder smoothing for TR/+DM/-DM.
		fp := float64(period)
		tr = (tr*(fp-1) + t) / fp
		pdm = (pdm*(fp-1) + p) / fp
		mdm = (mdm*(fp-1) + m) / fp

		if tr == 0 {
			return 0, ErrInsufficientData
		}
		pdi := 100 * pdm / tr
		mdi := 100 * mdm / tr
		den := pdi + mdi
		if den == 0 {
			return 0, ErrInsufficientData
		}
		dx := 100 * math.Abs(pdi-mdi) / den

		if !seeded {
			// Warmup phase B: seed ADX with the average of the first
			// period DX values.
			dxSum += dx
			dxCount++
			if dxCount == period {
				adx = dxSum / float64(period)
				seeded = true
			}
			continue
		}

		adx = (adx*(float64(period)-1) + dx) / float64(period)
	}

	if !seeded {
		return 0, ErrInsufficientData
	}
	return guard(adx)
}
