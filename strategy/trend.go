package strategy

import (
	"github.com/quantspot/engine/indicators"
	"github.com/quantspot/engine/market"
)

// TrendConfig parameterizes the trend-following strategy.
type TrendConfig struct {
	FastPeriod   int     `yaml:"fast_period" json:"fast_period"`     // 20
	SlowPeriod   int     `yaml:"slow_period" json:"slow_period"`     // 50
	ADXPeriod    int     `yaml:"adx_period" json:"adx_period"`       // 14
	ADXThreshold float64 `yaml:"adx_threshold" json:"adx_threshold"` // 20
	ATRPeriod    int     `yaml:"atr_period" json:"atr_period"`       // 14
	StopATR      float64 `yaml:"stop_atr" json:"stop_atr"`           // 2.0
	RewardRisk   float64 `yaml:"reward_risk" json:"reward_risk"`     // 2.0
}

// TrendConfigDefaults returns the standard trend parameters.
func TrendConfigDefaults() TrendConfig {
	return TrendConfig{
		FastPeriod:   20,
		SlowPeriod:   50,
		ADXPeriod:    14,
		ADXThreshold: 20,
		ATRPeriod:    14,
		StopATR:      2.0,
		RewardRisk:   2.0,
	}
}

// Trend goes long when the fast EMA is above the slow EMA and ADX
// confirms the trend. Confidence scales with ADX strength and the EMA
// separation relative to price.
type Trend struct {
	cfg TrendConfig
}

func NewTrend(cfg TrendConfig) *Trend {
	return &Trend{cfg: cfg}
}

func (s *Trend) ID() string { return "trend" }

func (s *Trend) Evaluate(frame market.Frame, book market.OrderBookSnapshot) Output {
	candles := frame.Candles

	fast, err := indicators.EMA(candles, s.cfg.FastPeriod)
	if err != nil {
		return noTrade(s.ID(), frame)
	}
	slow, err := indicators.EMA(candles, s.cfg.SlowPeriod)
	if err != nil {
		return noTrade(s.ID(), frame)
	}
	adx, err := indicators.ADX(candles, s.cfg.ADXPeriod)
	if err != nil {
		return noTrade(s.ID(), frame)
	}
	atr, err := indicators.ATR(candles, s.cfg.ATRPeriod)
	if err != nil {
		return noTrade(s.ID(), frame)
	}

	last, ok := frame.Last()
	if !ok || last.Close <= 0 {
		return noTrade(s.ID(), frame)
	}

	out := noTrade(s.ID(), frame)
	out.Rationale = map[string]float64{
		"ema_fast":      fast,
		"ema_slow":      slow,
		"adx":           adx,
		"atr":           atr,
		"close":         last.Close,
		"adx_threshold": s.cfg.ADXThreshold,
	}

	if fast <= slow || adx < s.cfg.ADXThreshold {
		return out
	}

	entry := book.BestAsk().Price
	if entry == 0 {
		entry = last.Close
	}
	stop := entry - s.cfg.StopATR*atr
	tp := entry + (entry-stop)*s.cfg.RewardRisk
	if stop <= 0 || stop >= entry {
		return out
	}

	// ADX above threshold contributes up to 0.7; EMA separation
	// (normalized by price) the remaining 0.3.
	adxScore := clamp01((adx - s.cfg.ADXThreshold) / 25)
	sepScore := clamp01((fast - slow) / last.Close * 100)

	out.Signal = EnterLong
	out.Confidence = clamp01(0.3 + 0.5*adxScore + 0.2*sepScore)
	out.Entry = entry
	out.Stop = stop
	out.TakeProfit = tp
	return out
}
