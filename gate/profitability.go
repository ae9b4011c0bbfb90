// Package gate implements the pre-entry profitability check: a pure
// function over the candidate plan and the configured floor.
package gate

import "github.com/quantspot/engine/trade"

// Verdict carries the pass/reject outcome with the full economics so
// the caller can emit it verbatim in the gate event payload.
type Verdict struct {
	Passed        bool
	ExpectedGross float64
	ExpectedNet   float64
	FeeUSD        float64
	SlippageUSD   float64
	SpreadUSD     float64
	MinProfitUSD  float64
}

// Profitability passes a candidate iff the gross profit at take-profit
// minus fee, slippage, and spread meets the configured floor. It
// consults nothing but the plan and the floor.
func Profitability(p trade.Plan, minProfitUSD float64) Verdict {
	gross := (p.TakeProfit - p.Entry) * p.Qty
	net := gross - p.Costs.FeeUSD - p.Costs.SlippageUSD - p.Costs.SpreadUSD
	return Verdict{
		Passed:        net >= minProfitUSD,
		ExpectedGross: gross,
		ExpectedNet:   net,
		FeeUSD:        p.Costs.FeeUSD,
		SlippageUSD:   p.Costs.SlippageUSD,
		SpreadUSD:     p.Costs.SpreadUSD,
		MinProfitUSD:  minProfitUSD,
	}
}
