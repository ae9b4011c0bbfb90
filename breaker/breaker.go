// Package breaker tracks time-bounded pauses on new entries. Each
// breaker kind carries its own trigger condition and pause duration,
// and every pause expires deterministically.
//
// Breakers gate entries only. Exits are never blocked: ExitsAllowed is
// constant true by contract and no engine code path may consult the
// manager for an exit.
package breaker

import (
	"fmt"
	"sync"
	"time"
)

// Kind identifies a breaker trigger condition.
type Kind string

const (
	Volatility          Kind = "volatility"
	Spread              Kind = "spread"
	ConsecutiveLosses   Kind = "consecutive_losses"
	ExchangeInstability Kind = "exchange_instability"
	News                Kind = "news"
)

// State is one active pause.
type State struct {
	Kind        Kind
	ActiveUntil time.Time
	Reason      string
	Context     map[string]float64
}

// Remaining returns how much of the pause is left at now.
func (s State) Remaining(now time.Time) time.Duration {
	if d := s.ActiveUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Config holds the trigger thresholds and pause durations per kind.
type Config struct {
	VolatilityMultiple float64
	VolatilityPause    time.Duration

	SpreadCapBPS float64
	SpreadPause  time.Duration

	LossWindow int
	LossPause  time.Duration

	InstabilityThreshold int
	InstabilityWindow    time.Duration
	InstabilityPause     time.Duration
}

// Manager tracks active pauses. It is safe for concurrent use and is
// read far more often than written.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	active map[Kind]State

	lossStreak int
	errTimes   []time.Time

	now       func() time.Time
	onTrigger func(State)
	onExpire  func(State)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTriggerHook registers a callback invoked when a breaker trips.
func WithTriggerHook(fn func(State)) Option {
	return func(m *Manager) { m.onTrigger = fn }
}

// WithExpireHook registers a callback invoked when a pause expires.
func WithExpireHook(fn func(State)) Option {
	return func(m *Manager) { m.onExpire = fn }
}

func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		active: make(map[Kind]State),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// EntriesAllowed sweeps expired breakers, then reports whether new
// entries may proceed. When blocked it returns the blocking state.
func (m *Manager) EntriesAllowed() (bool, *State) {
	m.mu.Lock()
	expired := m.sweepLocked()
	var blocking *State
	for _, s := range m.active {
		s := s
		if blocking == nil || s.ActiveUntil.After(blocking.ActiveUntil) {
			blocking = &s
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if m.onExpire != nil {
			m.onExpire(s)
		}
	}
	return blocking == nil, blocking
}

// ExitsAllowed is constant true. Exits are unblockable by contract.
func (m *Manager) ExitsAllowed() bool { return true }

// Active returns a copy of the currently active pauses (after sweep).
func (m *Manager) Active() []State {
	m.mu.Lock()
	m.sweepLocked()
	out := make([]State, 0, len(m.active))
	for _, s := range m.active {
		out = append(out, s)
	}
	m.mu.Unlock()
	return out
}

// sweepLocked removes expired pauses and returns them.
func (m *Manager) sweepLocked() []State {
	now := m.now()
	var expired []State
	for k, s := range m.active {
		if !s.ActiveUntil.After(now) {
			expired = append(expired, s)
			delete(m.active, k)
		}
	}
	return expired
}

// trip activates (or extends) a pause and fires the trigger hook. A
// kind already active is extended rather than re-announced.
func (m *Manager) trip(kind Kind, pause time.Duration, reason string, ctx map[string]float64) {
	if pause <= 0 {
		return
	}

	m.mu.Lock()
	now := m.now()
	prev, already := m.active[kind]
	s := State{Kind: kind, ActiveUntil: now.Add(pause), Reason: reason, Context: ctx}
	if already && prev.ActiveUntil.After(s.ActiveUntil) {
		s.ActiveUntil = prev.ActiveUntil
	}
	m.active[kind] = s
	m.mu.Unlock()

	if !already && m.onTrigger != nil {
		m.onTrigger(s)
	}
}

// ObserveVolatility trips the volatility breaker when current ATR
// exceeds the baseline ATR by the configured multiple.
func (m *Manager) ObserveVolatility(atr, baseline float64) {
	if m.cfg.VolatilityMultiple <= 0 || baseline <= 0 {
		return
	}
	if atr > baseline*m.cfg.VolatilityMultiple {
		m.trip(Volatility, m.cfg.VolatilityPause,
			fmt.Sprintf("ATR %.4f exceeds %.1fx baseline %.4f", atr, m.cfg.VolatilityMultiple, baseline),
			map[string]float64{"atr": atr, "baseline": baseline, "multiple": m.cfg.VolatilityMultiple})
	}
}

// ObserveSpread trips the spread breaker when the measured spread
// exceeds the configured cap. A spread exactly at the cap does not trip.
func (m *Manager) ObserveSpread(spreadBPS float64) {
	if m.cfg.SpreadCapBPS <= 0 {
		return
	}
	if spreadBPS > m.cfg.SpreadCapBPS {
		m.trip(Spread, m.cfg.SpreadPause,
			fmt.Sprintf("spread %.2f bps exceeds cap %.2f bps", spreadBPS, m.cfg.SpreadCapBPS),
			map[string]float64{"spread_bps": spreadBPS, "cap_bps": m.cfg.SpreadCapBPS})
	}
}

// RecordTradeResult feeds the consecutive-losses counter. The breaker
// trips when the last LossWindow closed trades are all losers.
func (m *Manager) RecordTradeResult(realizedPnL float64) {
	if m.cfg.LossWindow <= 0 {
		return
	}

	m.mu.Lock()
	if realizedPnL < 0 {
		m.lossStreak++
	} else {
		m.lossStreak = 0
	}
	streak := m.lossStreak
	m.mu.Unlock()

	if streak >= m.cfg.LossWindow {
		m.trip(ConsecutiveLosses, m.cfg.LossPause,
			fmt.Sprintf("%d consecutive losing trades", streak),
			map[string]float64{"streak": float64(streak), "window": float64(m.cfg.LossWindow)})
	}
}

// RecordExchangeError feeds the instability counter. The breaker trips
// when the number of disconnects/rate-limits inside the window crosses
// the configured threshold.
func (m *Manager) RecordExchangeError() {
	if m.cfg.InstabilityThreshold <= 0 || m.cfg.InstabilityWindow <= 0 {
		return
	}

	m.mu.Lock()
	now := m.now()
	cutoff := now.Add(-m.cfg.InstabilityWindow)
	kept := m.errTimes[:0]
	for _, t := range m.errTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.errTimes = append(kept, now)
	count := len(m.errTimes)
	m.mu.Unlock()

	if count >= m.cfg.InstabilityThreshold {
		m.trip(ExchangeInstability, m.cfg.InstabilityPause,
			fmt.Sprintf("%d exchange errors within %s", count, m.cfg.InstabilityWindow),
			map[string]float64{"errors": float64(count), "threshold": float64(m.cfg.InstabilityThreshold)})
	}
}

// SetNewsPause activates the negative-news pause. The TTL alone governs
// expiry; the flag is set externally by the news watcher.
func (m *Manager) SetNewsPause(reason string, ttl time.Duration) {
	m.trip(News, ttl, reason, nil)
}
