package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quantspot/engine/breaker"
	"github.com/quantspot/engine/costs"
	"github.com/quantspot/engine/event"
	"github.com/quantspot/engine/executor"
	"github.com/quantspot/engine/gate"
	"github.com/quantspot/engine/indicators"
	"github.com/quantspot/engine/market"
	"github.com/quantspot/engine/metrics"
	"github.com/quantspot/engine/strategy"
	"github.com/quantspot/engine/trade"
)

// State of one symbol's loop.
type State string

const (
	StateIdle         State = "IDLE"
	StateEval         State = "EVAL"
	StateEntryPending State = "ENTRY_PENDING"
	StateInPosition   State = "IN_POSITION"
	StateExitPending  State = "EXIT_PENDING"
)

// worker runs the per-symbol state machine. Strictly serial within
// itself: one tick completes before the next starts, and the worker is
// the sole authority on its symbol's trade status transitions.
type worker struct {
	e      *Engine
	symbol string

	state     State
	lastClose float64
}

func newWorker(e *Engine, symbol string) *worker {
	return &worker{e: e, symbol: symbol, state: StateIdle}
}

// tick executes one full fetch → evaluate → gate → execute → persist
// pass. Every rejection path returns the worker to IDLE.
func (w *worker) tick(ctx context.Context) {
	e := w.e
	now := e.now()
	metrics.TicksTotal.WithLabelValues(w.symbol).Inc()
	defer func() { w.state = StateIdle }()

	frame, book, ok := w.fetch(ctx, now)
	if !ok {
		return
	}
	last, _ := frame.Last()

	e.mu.Lock()
	w.lastClose = last.Close
	e.mu.Unlock()

	e.emit(event.Event{
		Time: now, Level: event.Info, Type: event.TypeMarketTick,
		Symbol: w.symbol, PublicSafe: true,
		Payload: map[string]any{"close": last.Close, "spread_bps": book.SpreadBPS()},
	})

	w.observe(frame, book)

	// Exits come first and are never gated.
	if pos, open := e.position(w.symbol); open {
		w.state = StateInPosition
		w.serviceExit(ctx, pos, last, now)
		e.snapshotEquity(now, w.symbol)
		return
	}

	if e.entriesHalted() {
		e.snapshotEquity(now, w.symbol)
		return
	}

	w.state = StateEval
	w.evaluateEntry(ctx, frame, book, last, now)
	e.snapshotEquity(now, w.symbol)
}

// fetch pulls the candle window and the orderbook. A failure aborts
// the tick with a WARN market.tick; the symbol stays IDLE.
func (w *worker) fetch(ctx context.Context, now time.Time) (market.Frame, market.OrderBookSnapshot, bool) {
	e := w.e
	exec := e.cfg.Execution

	candles, err := e.source.GetCandles(ctx, w.symbol, exec.Timeframe, exec.CandleLimit)
	if err != nil {
		w.warnTick(now, "candles", err)
		return market.Frame{}, market.OrderBookSnapshot{}, false
	}
	book, err := e.source.GetOrderBook(ctx, w.symbol, exec.OrderBookDepth)
	if err != nil {
		w.warnTick(now, "orderbook", err)
		return market.Frame{}, market.OrderBookSnapshot{}, false
	}
	frame := market.Frame{Symbol: w.symbol, Timeframe: exec.Timeframe, Candles: candles}
	if len(candles) == 0 {
		w.warnTick(now, "candles", market.ErrNoData)
		return market.Frame{}, market.OrderBookSnapshot{}, false
	}
	return frame, book, true
}

func (w *worker) warnTick(now time.Time, stage string, err error) {
	w.e.emit(event.Event{
		Time: now, Level: event.Warn, Type: event.TypeMarketTick, Symbol: w.symbol,
		Payload: map[string]any{"stage": stage, "reason": err.Error()},
	})
}

// observe feeds the spread and volatility breakers from this tick's
// market data.
func (w *worker) observe(frame market.Frame, book market.OrderBookSnapshot) {
	w.e.breakers.ObserveSpread(book.SpreadBPS())

	series, err := indicators.ATRSeries(frame.Candles, 14)
	if err != nil || len(series) < 2 {
		return
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	baseline := sum / float64(len(series))
	w.e.breakers.ObserveVolatility(series[len(series)-1], baseline)
}

// serviceExit runs the executor's exit check for the open position.
// Failures leave the position in place; the next tick retries.
func (w *worker) serviceExit(ctx context.Context, pos trade.Trade, last market.Candle, now time.Time) {
	e := w.e
	updated, closed, err := e.exec.CheckExits(ctx, pos, last, now)
	if err != nil {
		e.log.Warn("exit check failed", zap.String("symbol", w.symbol), zap.Error(err))
		return
	}
	if !closed {
		e.setPosition(updated)
		return
	}
	w.state = StateExitPending
	e.applyClose(updated)
}

// evaluateEntry runs strategies, the ensemble, sizing, and the strict
// gate order: liquidity → profitability → breakers → daily lock →
// max concurrent positions.
func (w *worker) evaluateEntry(ctx context.Context, frame market.Frame, book market.OrderBookSnapshot, last market.Candle, now time.Time) {
	e := w.e
	cfg := e.cfg

	outputs := make([]strategy.Output, 0, len(e.strategies))
	for _, s := range e.strategies {
		out := s.Evaluate(frame, book)
		outputs = append(outputs, out)
		e.emit(event.Event{
			Time: now, Level: event.Info, Type: event.TypeSignalGenerated,
			Symbol: w.symbol, PublicSafe: true,
			Payload: map[string]any{
				"strategy":   out.StrategyID,
				"signal":     string(out.Signal),
				"confidence": out.Confidence,
				"rationale":  rationalePayload(out.Rationale),
			},
		})
	}

	decision := strategy.Combine(outputs, false, cfg.Strategies.MinAgreement, cfg.Strategies.ConfidenceThreshold)
	e.emit(event.Event{
		Time: now, Level: event.Info, Type: event.TypeEnsembleDecision,
		Symbol: w.symbol, PublicSafe: true,
		Payload: map[string]any{
			"action":     string(decision.Action),
			"agreeing":   decision.Agreeing,
			"confidence": decision.Confidence,
		},
	})
	if decision.Action != strategy.EnterLong {
		return
	}

	best, ok := strategy.BestQualified(outputs, cfg.Strategies.ConfidenceThreshold)
	if !ok {
		return
	}

	plan, ok := w.sizePlan(best, now)
	if !ok {
		return
	}
	e.emit(event.Event{
		Time: now, Level: event.Info, Type: event.TypeCandidateCreated,
		Symbol: w.symbol, PublicSafe: true,
		Payload: map[string]any{
			"entry":       plan.Entry,
			"stop":        plan.Stop,
			"take_profit": plan.TakeProfit,
			"qty":         plan.Qty,
			"notional":    plan.Notional,
			"strategy":    best.StrategyID,
		},
	})

	// Gate 1: liquidity.
	bd, err := e.estimator.Estimate(book, costs.Buy, plan.Qty, costs.Market)
	if err != nil {
		if errors.Is(err, costs.ErrInsufficientDepth) {
			metrics.GateRejections.WithLabelValues("liquidity").Inc()
			e.emit(event.Event{
				Time: now, Level: event.Warn, Type: event.TypeGateLiquidityRejected,
				Symbol: w.symbol, PublicSafe: true,
				Payload: map[string]any{"qty": plan.Qty, "reason": err.Error()},
			})
		} else {
			e.log.Warn("cost estimate failed", zap.String("symbol", w.symbol), zap.Error(err))
		}
		return
	}
	plan.Costs = bd
	plan.ExpectedGross = (plan.TakeProfit - plan.Entry) * plan.Qty
	plan.ExpectedNet = plan.ExpectedGross - bd.Total()

	if err := plan.Validate(cfg.Risk.MinNotionalUSD); err != nil {
		e.log.Warn("candidate rejected", zap.String("symbol", w.symbol), zap.Error(err))
		return
	}

	// Gate 2: profitability.
	verdict := gate.Profitability(plan, cfg.Gates.MinProfitUSD)
	verdictPayload := map[string]any{
		"expected_gross": verdict.ExpectedGross,
		"expected_net":   verdict.ExpectedNet,
		"fee":            verdict.FeeUSD,
		"slippage":       verdict.SlippageUSD,
		"spread":         verdict.SpreadUSD,
		"min_profit":     verdict.MinProfitUSD,
	}
	if !verdict.Passed {
		metrics.GateRejections.WithLabelValues("profitability").Inc()
		e.emit(event.Event{
			Time: now, Level: event.Info, Type: event.TypeGateProfitabilityRejected,
			Symbol: w.symbol, PublicSafe: true, Payload: verdictPayload,
		})
		return
	}
	e.emit(event.Event{
		Time: now, Level: event.Info, Type: event.TypeGateProfitabilityPassed,
		Symbol: w.symbol, PublicSafe: true, Payload: verdictPayload,
	})

	// Gate 3: breakers.
	if allowed, blocking := e.breakers.EntriesAllowed(); !allowed {
		typ := event.TypeGateBreakerRejected
		gateName := "breaker"
		if blocking.Kind == breaker.News {
			typ = event.TypeGateNewsRejected
			gateName = "news"
		}
		metrics.GateRejections.WithLabelValues(gateName).Inc()
		e.emit(event.Event{
			Time: now, Level: event.Info, Type: typ,
			Symbol: w.symbol, PublicSafe: true,
			Payload: map[string]any{
				"kind":              string(blocking.Kind),
				"reason":            blocking.Reason,
				"remaining_seconds": blocking.Remaining(now).Seconds(),
			},
		})
		return
	}

	// Gate 4: daily lock.
	if allowed, reason := e.lock.EntriesAllowed(now); !allowed {
		metrics.GateRejections.WithLabelValues("daily_lock").Inc()
		e.emit(event.Event{
			Time: now, Level: event.Info, Type: event.TypeGateDailyLockRejected,
			Symbol: w.symbol, PublicSafe: true,
			Payload: map[string]any{"reason": reason},
		})
		return
	}

	// Gate 5: max concurrent positions.
	if e.openCount() >= cfg.Execution.MaxConcurrentPositions {
		metrics.GateRejections.WithLabelValues("max_positions").Inc()
		e.emit(event.Event{
			Time: now, Level: event.Info, Type: event.TypeGateMaxPositionsRejected,
			Symbol: w.symbol, PublicSafe: true,
			Payload: map[string]any{"open": e.openCount(), "max": cfg.Execution.MaxConcurrentPositions},
		})
		return
	}

	w.state = StateEntryPending
	opened, err := e.exec.Open(ctx, plan, now)
	if err != nil {
		if errors.Is(err, executor.ErrNotArmed) {
			e.log.Error("live entry refused: not armed", zap.String("symbol", w.symbol))
		} else {
			e.log.Error("entry failed", zap.String("symbol", w.symbol), zap.Error(err))
		}
		return
	}
	w.state = StateInPosition
	e.applyOpen(opened)
}

// sizePlan converts the winning strategy output into a sized plan:
// risk_per_trade_pct × equity / price risk, capped by the equity share
// limit. Emits risk.position_sized.
func (w *worker) sizePlan(best strategy.Output, now time.Time) (trade.Plan, bool) {
	e := w.e
	risk := e.cfg.Risk

	priceRisk := best.Entry - best.Stop
	if priceRisk <= 0 || best.Entry <= 0 {
		return trade.Plan{}, false
	}

	marks := map[string]float64{w.symbol: w.lastClose}
	equity, _, _, _ := e.equityView(marks)

	riskUSD := equity * risk.RiskPerTradePct / 100
	qty := riskUSD / priceRisk
	maxNotional := equity * risk.MaxPositionPctEquity / 100
	if qty*best.Entry > maxNotional {
		qty = maxNotional / best.Entry
	}
	if qty <= 0 {
		return trade.Plan{}, false
	}

	plan := trade.Plan{
		Symbol:     w.symbol,
		Side:       trade.Long,
		Entry:      best.Entry,
		Stop:       best.Stop,
		TakeProfit: best.TakeProfit,
		Qty:        qty,
		Notional:   qty * best.Entry,
	}
	e.emit(event.Event{
		Time: now, Level: event.Info, Type: event.TypeRiskPositionSized,
		Symbol: w.symbol, PublicSafe: true,
		Payload: map[string]any{
			"equity":     equity,
			"risk_usd":   riskUSD,
			"price_risk": priceRisk,
			"qty":        plan.Qty,
			"notional":   plan.Notional,
		},
	})
	return plan, true
}

func rationalePayload(r map[string]float64) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
