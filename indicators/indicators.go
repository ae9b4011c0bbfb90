// Package indicators provides technical analysis indicators computed
// over finite candle windows.
//
// All functions are pure and deterministic: identical input windows
// produce identical outputs. Series shorter than the required lookback
// return ErrInsufficientData rather than a guessed value, and no
// floating-point NaN or Inf is ever surfaced — a non-finite intermediate
// is treated as insufficient data.
package indicators

import (
	"errors"
	"math"
)

// ErrInsufficientData marks a window shorter than the required lookback
// (or a window producing a non-finite intermediate).
var ErrInsufficientData = errors.New("indicators: insufficient data")

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func guard(v float64) (float64, error) {
	if !finite(v) {
		return 0, ErrInsufficientData
	}
	return v, nil
}
