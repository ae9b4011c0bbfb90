package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vote(id string, sig Signal, conf float64) Output {
	return Output{StrategyID: id, Symbol: "BTC/USDT", Signal: sig, Confidence: conf}
}

func TestCombineReachesAgreement(t *testing.T) {
	t.Parallel()

	outputs := []Output{
		vote("trend", EnterLong, 0.8),
		vote("breakout", EnterLong, 0.8),
		vote("mean_reversion", NoTrade, 0),
	}

	d := Combine(outputs, false, 2, 0.6)

	require.Equal(t, EnterLong, d.Action)
	assert.ElementsMatch(t, []string{"trend", "breakout"}, d.Agreeing)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
	assert.Len(t, d.Votes, 3)
}

func TestCombineBelowAgreement(t *testing.T) {
	t.Parallel()

	outputs := []Output{
		vote("trend", EnterLong, 0.9),
		vote("breakout", NoTrade, 0),
		vote("mean_reversion", NoTrade, 0),
	}

	d := Combine(outputs, false, 2, 0.6)
	assert.Equal(t, NoTrade, d.Action)
	assert.Zero(t, d.Confidence)
}

func TestCombineConfidenceThresholdFiltersVotes(t *testing.T) {
	t.Parallel()

	outputs := []Output{
		vote("trend", EnterLong, 0.9),
		vote("breakout", EnterLong, 0.5), // below threshold, must not qualify
	}

	d := Combine(outputs, false, 2, 0.6)
	require.Equal(t, NoTrade, d.Action)

	// The vote record still shows the disqualified entry.
	var breakoutVote Vote
	for _, v := range d.Votes {
		if v.StrategyID == "breakout" {
			breakoutVote = v
		}
	}
	assert.False(t, breakoutVote.Qualified)
}

func TestCombineHoldsWithOpenPosition(t *testing.T) {
	t.Parallel()

	outputs := []Output{
		vote("trend", EnterLong, 0.9),
		vote("breakout", EnterLong, 0.9),
	}

	d := Combine(outputs, true, 2, 0.6)
	assert.Equal(t, Hold, d.Action)
}

func TestCombineIdempotent(t *testing.T) {
	t.Parallel()

	outputs := []Output{
		vote("trend", EnterLong, 0.7),
		vote("breakout", EnterLong, 0.9),
	}

	a := Combine(outputs, false, 2, 0.6)
	b := Combine(outputs, false, 2, 0.6)
	assert.Equal(t, a, b)
}

func TestBestQualified(t *testing.T) {
	t.Parallel()

	outputs := []Output{
		vote("trend", EnterLong, 0.7),
		vote("breakout", EnterLong, 0.9),
		vote("mean_reversion", NoTrade, 0.99),
	}

	best, ok := BestQualified(outputs, 0.6)
	require.True(t, ok)
	assert.Equal(t, "breakout", best.StrategyID)

	_, ok = BestQualified([]Output{vote("trend", NoTrade, 0)}, 0.6)
	assert.False(t, ok)
}
