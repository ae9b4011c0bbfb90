package strategy

import (
	"github.com/quantspot/engine/indicators"
	"github.com/quantspot/engine/market"
)

// BreakoutConfig parameterizes the Donchian breakout strategy.
type BreakoutConfig struct {
	Lookback   int     `yaml:"lookback" json:"lookback"`       // 20
	ATRPeriod  int     `yaml:"atr_period" json:"atr_period"`   // 14
	MinATRPct  float64 `yaml:"min_atr_pct" json:"min_atr_pct"` // 0.05: volatility floor, % of price
	MaxATRPct  float64 `yaml:"max_atr_pct" json:"max_atr_pct"` // 5.0: volatility cap, % of price
	StopATR    float64 `yaml:"stop_atr" json:"stop_atr"`       // 2.0
	RewardRisk float64 `yaml:"reward_risk" json:"reward_risk"` // 2.0
}

// BreakoutConfigDefaults returns the standard breakout parameters.
func BreakoutConfigDefaults() BreakoutConfig {
	return BreakoutConfig{
		Lookback:   20,
		ATRPeriod:  14,
		MinATRPct:  0.05,
		MaxATRPct:  5.0,
		StopATR:    2.0,
		RewardRisk: 2.0,
	}
}

// Breakout goes long when the close exceeds the prior Donchian high
// over the lookback window (excluding the current bar), with an ATR
// filter that rejects both dead and disorderly markets. Confidence
// scales with the ATR-normalized breakout distance.
type Breakout struct {
	cfg BreakoutConfig
}

func NewBreakout(cfg BreakoutConfig) *Breakout {
	return &Breakout{cfg: cfg}
}

func (s *Breakout) ID() string { return "breakout" }

func (s *Breakout) Evaluate(frame market.Frame, book market.OrderBookSnapshot) Output {
	candles := frame.Candles
	if len(candles) < s.cfg.Lookback+1 {
		return noTrade(s.ID(), frame)
	}

	// Donchian high over the window preceding the current bar.
	prior := candles[:len(candles)-1]
	donHigh, _, err := indicators.Donchian(prior, s.cfg.Lookback)
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

	atrPct := atr / last.Close * 100

	out := noTrade(s.ID(), frame)
	out.Rationale = map[string]float64{
		"donchian_high": donHigh,
		"atr":           atr,
		"atr_pct":       atrPct,
		"close":         last.Close,
		"lookback":      float64(s.cfg.Lookback),
	}

	if last.Close <= donHigh {
		return out
	}
	if atrPct < s.cfg.MinATRPct || atrPct > s.cfg.MaxATRPct {
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

	dist := 0.0
	if atr > 0 {
		dist = (last.Close - donHigh) / atr
	}

	out.Signal = EnterLong
	out.Confidence = clamp01(0.3 + 0.7*clamp01(dist))
	out.Entry = entry
	out.Stop = stop
	out.TakeProfit = tp
	return out
}
