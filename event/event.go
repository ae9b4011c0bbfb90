// Package event defines the append-only decision journal entries the
// engine emits, and the in-process bus that fans them out to live
// subscribers in sequence order.
package event

import "time"

// Level of an event.
type Level string

const (
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
)

// Required event types. The taxonomy is part of the external contract;
// downstream consumers key off these strings.
const (
	TypeSystemStarted      = "system.started"
	TypeSystemStopped      = "system.stopped"
	TypeConfigActivated    = "config.activated"
	TypeReconcileCompleted = "reconcile.completed"

	TypeMarketTick       = "market.tick"
	TypeSignalGenerated  = "signal.generated"
	TypeEnsembleDecision = "ensemble.decision"
	TypeCandidateCreated = "trade.candidate.created"

	TypeGateLiquidityRejected     = "gate.liquidity.rejected"
	TypeGateProfitabilityPassed   = "gate.profitability.passed"
	TypeGateProfitabilityRejected = "gate.profitability.rejected"
	TypeGateBreakerRejected       = "gate.breaker.rejected"
	TypeGateNewsRejected          = "gate.news.rejected"
	TypeGateDailyLockRejected     = "gate.daily_lock.rejected"
	TypeGateMaxPositionsRejected  = "gate.max_positions.rejected"

	TypeRiskPositionSized = "risk.position_sized"

	TypeBreakerTriggered = "breaker.triggered"
	TypeBreakerExpired   = "breaker.expired"

	TypeTradeOpened = "trade.opened"
	TypeOrderPlaced = "order.placed"
	TypeOrderFilled = "order.filled"
	TypeTradeClosed = "trade.closed"

	TypeDailyLockEngaged       = "daily_lock.engaged"
	TypeDailyLockFloorUpdated  = "daily_lock.floor_updated"
	TypeDailyLockEntriesPaused = "daily_lock.entries_paused"

	TypeSecurityKeyAdded   = "security.key.added"
	TypeSecurityKeyRevoked = "security.key.revoked"
)

// Event is one append-only journal row. Seq is allocated by the
// repository in a single atomic step and is strictly monotonic across
// the whole stream; callers never supply it.
//
// Payload must contain no secrets: no API keys, no credentials, and no
// exchange order ids on rows marked PublicSafe.
type Event struct {
	ID         string
	Seq        int64
	Time       time.Time
	Level      Level
	Type       string
	Symbol     string
	TradeID    string
	Payload    map[string]any
	PublicSafe bool
}
