package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testConfig() Config {
	return Config{
		VolatilityMultiple:   3.0,
		VolatilityPause:      30 * time.Minute,
		SpreadCapBPS:         25,
		SpreadPause:          30 * time.Minute,
		LossWindow:           3,
		LossPause:            60 * time.Minute,
		InstabilityThreshold: 5,
		InstabilityWindow:    time.Minute,
		InstabilityPause:     15 * time.Minute,
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeClock, *[]State, *[]State) {
	t.Helper()

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	var triggered, expired []State
	m := NewManager(testConfig(),
		WithClock(clock.Now),
		WithTriggerHook(func(s State) { triggered = append(triggered, s) }),
		WithExpireHook(func(s State) { expired = append(expired, s) }),
	)
	return m, clock, &triggered, &expired
}

func TestEntriesAllowedByDefault(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newTestManager(t)
	ok, blocking := m.EntriesAllowed()
	assert.True(t, ok)
	assert.Nil(t, blocking)
}

func TestSpreadBreakerBlocksAndExpires(t *testing.T) {
	t.Parallel()

	m, clock, triggered, expired := newTestManager(t)

	m.ObserveSpread(30) // above the 25 bps cap
	require.Len(t, *triggered, 1)
	assert.Equal(t, Spread, (*triggered)[0].Kind)

	ok, blocking := m.EntriesAllowed()
	require.False(t, ok)
	require.NotNil(t, blocking)
	assert.Equal(t, Spread, blocking.Kind)

	// 15 minutes in: still paused, with roughly 15 minutes remaining.
	clock.Advance(15 * time.Minute)
	ok, blocking = m.EntriesAllowed()
	require.False(t, ok)
	assert.Equal(t, 15*time.Minute, blocking.Remaining(clock.Now()))

	// Past expiry: allowed again and the expiry hook fired.
	clock.Advance(16 * time.Minute)
	ok, _ = m.EntriesAllowed()
	assert.True(t, ok)
	require.Len(t, *expired, 1)
	assert.Equal(t, Spread, (*expired)[0].Kind)
}

func TestSpreadExactlyAtCapDoesNotTrip(t *testing.T) {
	t.Parallel()

	m, _, triggered, _ := newTestManager(t)
	m.ObserveSpread(25)
	assert.Empty(t, *triggered)
	ok, _ := m.EntriesAllowed()
	assert.True(t, ok)
}

func TestVolatilityBreaker(t *testing.T) {
	t.Parallel()

	m, _, triggered, _ := newTestManager(t)

	m.ObserveVolatility(2.9, 1.0) // below 3x baseline
	assert.Empty(t, *triggered)

	m.ObserveVolatility(3.1, 1.0)
	require.Len(t, *triggered, 1)
	assert.Equal(t, Volatility, (*triggered)[0].Kind)
	assert.Equal(t, 3.1, (*triggered)[0].Context["atr"])
}

func TestConsecutiveLossesAtBoundary(t *testing.T) {
	t.Parallel()

	m, _, triggered, _ := newTestManager(t)

	// N-1 losses: no trip.
	m.RecordTradeResult(-1)
	m.RecordTradeResult(-2)
	assert.Empty(t, *triggered)
	ok, _ := m.EntriesAllowed()
	assert.True(t, ok)

	// Nth loss trips.
	m.RecordTradeResult(-0.5)
	require.Len(t, *triggered, 1)
	assert.Equal(t, ConsecutiveLosses, (*triggered)[0].Kind)
}

func TestWinResetsLossStreak(t *testing.T) {
	t.Parallel()

	m, _, triggered, _ := newTestManager(t)

	m.RecordTradeResult(-1)
	m.RecordTradeResult(-1)
	m.RecordTradeResult(+3)
	m.RecordTradeResult(-1)
	m.RecordTradeResult(-1)
	assert.Empty(t, *triggered)
}

func TestExchangeInstability(t *testing.T) {
	t.Parallel()

	m, clock, triggered, _ := newTestManager(t)

	for i := 0; i < 4; i++ {
		m.RecordExchangeError()
		clock.Advance(time.Second)
	}
	assert.Empty(t, *triggered)

	m.RecordExchangeError() // fifth within the minute
	require.Len(t, *triggered, 1)
	assert.Equal(t, ExchangeInstability, (*triggered)[0].Kind)
}

func TestExchangeErrorsOutsideWindowDoNotAccumulate(t *testing.T) {
	t.Parallel()

	m, clock, triggered, _ := newTestManager(t)

	for i := 0; i < 10; i++ {
		m.RecordExchangeError()
		clock.Advance(2 * time.Minute) // each error falls out of the window
	}
	assert.Empty(t, *triggered)
}

func TestNewsPauseTTL(t *testing.T) {
	t.Parallel()

	m, clock, _, _ := newTestManager(t)

	m.SetNewsPause("negative headline", 10*time.Minute)
	ok, blocking := m.EntriesAllowed()
	require.False(t, ok)
	assert.Equal(t, News, blocking.Kind)

	clock.Advance(11 * time.Minute)
	ok, _ = m.EntriesAllowed()
	assert.True(t, ok)
}

func TestExitsAlwaysAllowed(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newTestManager(t)
	m.ObserveSpread(1000)
	m.SetNewsPause("halt everything", time.Hour)
	m.RecordTradeResult(-1)
	m.RecordTradeResult(-1)
	m.RecordTradeResult(-1)

	ok, _ := m.EntriesAllowed()
	require.False(t, ok)
	assert.True(t, m.ExitsAllowed())
}

func TestRetriggerExtendsWithoutReannouncing(t *testing.T) {
	t.Parallel()

	m, clock, triggered, _ := newTestManager(t)

	m.ObserveSpread(30)
	clock.Advance(10 * time.Minute)
	m.ObserveSpread(40)

	require.Len(t, *triggered, 1)

	_, blocking := m.EntriesAllowed()
	require.NotNil(t, blocking)
	assert.Equal(t, 30*time.Minute, blocking.Remaining(clock.Now()))
}
