package strategy

// Vote records how one strategy contributed to an ensemble decision.
type Vote struct {
	StrategyID string
	Signal     Signal
	Confidence float64
	Qualified  bool
}

// Decision is the single aggregated verdict for one symbol at one tick.
// Invariant: Action == EnterLong implies the number of qualifying
// ENTER_LONG votes is at least the configured minimum agreement.
type Decision struct {
	Action     Signal
	Agreeing   []string
	Confidence float64
	Votes      []Vote
}

// Combine aggregates strategy outputs under the agreement policy: a
// vote qualifies when its signal is ENTER_LONG and its confidence meets
// the threshold; with at least minAgreement qualifying votes the
// decision is ENTER_LONG with the mean qualifying confidence, otherwise
// NO_TRADE (HOLD when a position is already open).
func Combine(outputs []Output, hasPosition bool, minAgreement int, confThreshold float64) Decision {
	d := Decision{Action: NoTrade}
	if hasPosition {
		d.Action = Hold
	}

	var sum float64
	for _, o := range outputs {
		v := Vote{
			StrategyID: o.StrategyID,
			Signal:     o.Signal,
			Confidence: o.Confidence,
			Qualified:  o.Signal == EnterLong && o.Confidence >= confThreshold,
		}
		d.Votes = append(d.Votes, v)
		if v.Qualified {
			d.Agreeing = append(d.Agreeing, o.StrategyID)
			sum += o.Confidence
		}
	}

	if !hasPosition && len(d.Agreeing) >= minAgreement && minAgreement > 0 {
		d.Action = EnterLong
		d.Confidence = sum / float64(len(d.Agreeing))
	}
	return d
}

// BestQualified returns the qualifying ENTER_LONG output with the
// highest confidence; the trading loop uses its suggested levels to
// construct the candidate plan.
func BestQualified(outputs []Output, confThreshold float64) (Output, bool) {
	var best Output
	found := false
	for _, o := range outputs {
		if o.Signal != EnterLong || o.Confidence < confThreshold {
			continue
		}
		if !found || o.Confidence > best.Confidence {
			best = o
			found = true
		}
	}
	return best, found
}
