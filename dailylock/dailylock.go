// Package dailylock enforces the daily profit lock against realised
// PnL: STOP mode blocks new entries once the daily target is reached;
// OVERDRIVE mode lets profits run but pauses entries when realised PnL
// falls back to a trailing floor.
//
// Day boundaries follow the configured IANA timezone, never naive UTC.
// An instant is assigned to a day via time.Time.In, which is
// deterministic across DST transitions (the ambiguous autumn hour
// resolves to the earlier occurrence).
package dailylock

import (
	"sync"
	"time"

	"github.com/quantspot/engine/trade"
)

// Mode selects the lock behaviour.
type Mode string

const (
	Stop      Mode = "STOP"
	Overdrive Mode = "OVERDRIVE"
)

// Config holds the lock parameters.
type Config struct {
	Mode              Mode
	TargetUSD         float64
	TrailingBufferUSD float64
	Location          *time.Location
	// ForceCloseOnFloor only blocks new entries; open positions are
	// left to their stops. See DESIGN.md for the decision.
	ForceCloseOnFloor bool
}

// Snapshot is a point-in-time copy of the lock state for events and
// status output.
type Snapshot struct {
	DayKey      string
	Mode        Mode
	RealizedUSD float64
	PeakUSD     float64
	FloorUSD    float64
	Engaged     bool
}

// Manager tracks realised daily PnL and decides whether entries are
// allowed. Exits are never consulted here.
type Manager struct {
	mu  sync.RWMutex
	cfg Config

	dayKey   string
	realized float64
	peak     float64
	floor    float64
	engaged  bool
	paused   bool

	now func() time.Time

	onEngaged      func(Snapshot)
	onFloorUpdated func(Snapshot)
	onPaused       func(Snapshot)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEngagedHook fires once per day when the lock engages.
func WithEngagedHook(fn func(Snapshot)) Option {
	return func(m *Manager) { m.onEngaged = fn }
}

// WithFloorHook fires when the OVERDRIVE trailing floor moves up.
func WithFloorHook(fn func(Snapshot)) Option {
	return func(m *Manager) { m.onFloorUpdated = fn }
}

// WithPausedHook fires once when entries become paused for the day.
func WithPausedHook(fn func(Snapshot)) Option {
	return func(m *Manager) { m.onPaused = fn }
}

func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	m := &Manager{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	m.dayKey = m.DayKey(m.now())
	m.floor = cfg.TargetUSD
	return m
}

// DayKey returns the lock day for an instant in the configured zone.
func (m *Manager) DayKey(t time.Time) string {
	return t.In(m.cfg.Location).Format("2006-01-02")
}

// Rebuild reconstructs today's realised PnL and peak from persisted
// closed trades. Called on startup before the first tick is accepted.
// Trades must be supplied in close order; trades closed on other days
// are ignored.
func (m *Manager) Rebuild(closed []trade.Trade, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollLocked(now)
	for _, t := range closed {
		if t.Status != trade.Closed || m.DayKey(t.ClosedAt) != m.dayKey {
			continue
		}
		m.applyLocked(t.RealizedPnL)
	}
}

// RecordClose feeds one realised trade result into the day's tally.
func (m *Manager) RecordClose(realizedPnL float64, closedAt time.Time) {
	m.mu.Lock()
	m.rollLocked(closedAt)
	fire := m.applyLocked(realizedPnL)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	fire(snap)
}

// EntriesAllowed reports whether a new entry may proceed at now. The
// reason string is empty when allowed.
func (m *Manager) EntriesAllowed(now time.Time) (bool, string) {
	m.mu.Lock()
	m.rollLocked(now)
	fire := m.evaluateLocked()
	blocked, reason := m.blockedLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	fire(snap)
	return !blocked, reason
}

// Snapshot returns the current lock state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// rollLocked resets state when the day key changes.
func (m *Manager) rollLocked(t time.Time) {
	key := m.DayKey(t)
	if key == m.dayKey {
		return
	}
	m.dayKey = key
	m.realized = 0
	m.peak = 0
	m.floor = m.cfg.TargetUSD
	m.engaged = false
	m.paused = false
}

// applyLocked folds a realised result in and returns the hook dispatch
// to run outside the lock.
func (m *Manager) applyLocked(pnl float64) func(Snapshot) {
	m.realized += pnl
	if m.realized > m.peak {
		m.peak = m.realized
	}
	return m.evaluateLocked()
}

// evaluateLocked updates engagement, floor, and pause state, returning
// a dispatch that fires the hooks that newly became due.
func (m *Manager) evaluateLocked() func(Snapshot) {
	var engagedNow, floorMoved, pausedNow bool

	if !m.engaged && m.realized >= m.cfg.TargetUSD {
		m.engaged = true
		engagedNow = true
	}

	if m.cfg.Mode == Overdrive {
		floor := m.cfg.TargetUSD
		if trail := m.peak - m.cfg.TrailingBufferUSD; trail > floor {
			floor = trail
		}
		if floor != m.floor {
			m.floor = floor
			floorMoved = m.engaged
		}
	}

	blocked, _ := m.blockedLocked()
	if blocked && !m.paused {
		m.paused = true
		pausedNow = true
	}
	if !blocked {
		m.paused = false
	}

	onEngaged, onFloor, onPaused := m.onEngaged, m.onFloorUpdated, m.onPaused
	return func(snap Snapshot) {
		if engagedNow && onEngaged != nil {
			onEngaged(snap)
		}
		if floorMoved && onFloor != nil {
			onFloor(snap)
		}
		if pausedNow && onPaused != nil {
			onPaused(snap)
		}
	}
}

// blockedLocked is the pure blocking rule.
func (m *Manager) blockedLocked() (bool, string) {
	switch m.cfg.Mode {
	case Stop:
		if m.engaged {
			return true, "daily target reached"
		}
	case Overdrive:
		if m.engaged && m.realized <= m.floor {
			return true, "trailing floor breached"
		}
	}
	return false, ""
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		DayKey:      m.dayKey,
		Mode:        m.cfg.Mode,
		RealizedUSD: m.realized,
		PeakUSD:     m.peak,
		FloorUSD:    m.floor,
		Engaged:     m.engaged,
	}
}
