package strategy

import (
	"github.com/quantspot/engine/indicators"
	"github.com/quantspot/engine/market"
)

// MeanReversionConfig parameterizes the band-touch mean reversion
// strategy.
type MeanReversionConfig struct {
	BollPeriod  int     `yaml:"boll_period" json:"boll_period"`     // 20
	BollWidth   float64 `yaml:"boll_width" json:"boll_width"`       // 2.0
	RSIPeriod   int     `yaml:"rsi_period" json:"rsi_period"`       // 14
	RSIOversold float64 `yaml:"rsi_oversold" json:"rsi_oversold"`   // 30
	ADXPeriod   int     `yaml:"adx_period" json:"adx_period"`       // 14
	ADXTrendCap float64 `yaml:"adx_trend_cap" json:"adx_trend_cap"` // 25
	ATRPeriod   int     `yaml:"atr_period" json:"atr_period"`       // 14
	StopATR     float64 `yaml:"stop_atr" json:"stop_atr"`           // 1.5
	RewardRisk  float64 `yaml:"reward_risk" json:"reward_risk"`     // 1.5
}

// MeanReversionConfigDefaults returns the standard parameters.
func MeanReversionConfigDefaults() MeanReversionConfig {
	return MeanReversionConfig{
		BollPeriod:  20,
		BollWidth:   2.0,
		RSIPeriod:   14,
		RSIOversold: 30,
		ADXPeriod:   14,
		ADXTrendCap: 25,
		ATRPeriod:   14,
		StopATR:     1.5,
		RewardRisk:  1.5,
	}
}

// MeanReversion goes long when price touches the lower Bollinger band
// while RSI is oversold and ADX says the market is not trending.
// Confidence scales with RSI depth and distance below the band.
type MeanReversion struct {
	cfg MeanReversionConfig
}

func NewMeanReversion(cfg MeanReversionConfig) *MeanReversion {
	return &MeanReversion{cfg: cfg}
}

func (s *MeanReversion) ID() string { return "mean_reversion" }

func (s *MeanReversion) Evaluate(frame market.Frame, book market.OrderBookSnapshot) Output {
	candles := frame.Candles

	middle, _, lower, err := indicators.Bollinger(candles, s.cfg.BollPeriod, s.cfg.BollWidth)
	if err != nil {
		return noTrade(s.ID(), frame)
	}
	rsi, err := indicators.RSI(candles, s.cfg.RSIPeriod)
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
		"boll_middle":   middle,
		"boll_lower":    lower,
		"rsi":           rsi,
		"adx":           adx,
		"atr":           atr,
		"close":         last.Close,
		"rsi_oversold":  s.cfg.RSIOversold,
		"adx_trend_cap": s.cfg.ADXTrendCap,
	}

	touched := last.Low <= lower || last.Close <= lower
	if !touched || rsi >= s.cfg.RSIOversold || adx >= s.cfg.ADXTrendCap {
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

	rsiDepth := clamp01((s.cfg.RSIOversold - rsi) / s.cfg.RSIOversold)
	bandDist := 0.0
	if atr > 0 {
		bandDist = clamp01((lower - last.Close) / atr)
	}

	out.Signal = EnterLong
	out.Confidence = clamp01(0.3 + 0.5*rsiDepth + 0.2*bandDist)
	out.Entry = entry
	out.Stop = stop
	out.TakeProfit = tp
	return out
}
