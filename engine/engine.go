// Package engine runs the trading loop: per-symbol workers driven by a
// shared scheduler, the strict gate sequence, position sizing, equity
// accounting, and graceful shutdown. Each worker is strictly serial
// within itself; workers share only the breaker and daily-lock
// managers and the event seq, which is the single linearisation point
// for external observers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantspot/engine/breaker"
	"github.com/quantspot/engine/config"
	"github.com/quantspot/engine/costs"
	"github.com/quantspot/engine/dailylock"
	"github.com/quantspot/engine/event"
	"github.com/quantspot/engine/executor"
	"github.com/quantspot/engine/journal"
	"github.com/quantspot/engine/logger"
	"github.com/quantspot/engine/market"
	"github.com/quantspot/engine/metrics"
	"github.com/quantspot/engine/strategy"
	"github.com/quantspot/engine/trade"
)

// Engine owns the whole decision-and-execution pipeline for one
// configuration snapshot.
type Engine struct {
	cfg    config.Snapshot
	log    logger.Logger
	store  *journal.Journal
	source market.DataSource
	sink   *event.Sink

	exec       executor.Executor
	reconciler *executor.Reconciler
	breakers   *breaker.Manager
	lock       *dailylock.Manager
	estimator  costs.Estimator
	strategies []strategy.Strategy

	loc *time.Location
	now func() time.Time

	mu        sync.Mutex
	cash      float64
	positions map[string]trade.Trade // by symbol
	halted    bool                   // entries refused engine-wide
	workers   []*worker
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithExecutor overrides the default dry-run executor, used to wire
// the live executor.
func WithExecutor(x executor.Executor) Option {
	return func(e *Engine) { e.exec = x }
}

// WithSink replaces the event sink so the engine and an externally
// constructed executor share one broadcast stream.
func WithSink(s *event.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithReconciler attaches the startup reconciler (live mode).
func WithReconciler(r *executor.Reconciler) Option {
	return func(e *Engine) { e.reconciler = r }
}

// WithStrategies replaces the configured strategy set.
func WithStrategies(ss ...strategy.Strategy) Option {
	return func(e *Engine) { e.strategies = ss }
}

// New wires an engine from a validated snapshot. The default executor
// is dry-run; live wiring happens in the command layer.
func New(cfg config.Snapshot, store *journal.Journal, source market.DataSource, log logger.Logger, opts ...Option) (*Engine, error) {
	loc, err := cfg.DailyLock.Location()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}

	e := &Engine{
		cfg:       cfg,
		log:       log,
		store:     store,
		source:    source,
		sink:      event.NewSink(store),
		estimator: costs.Estimator{TakerBPS: cfg.Exchange.TakerBPS, MakerBPS: cfg.Exchange.MakerBPS},
		loc:       loc,
		now:       time.Now,
		cash:      cfg.Risk.InitialEquityUSD,
		positions: make(map[string]trade.Trade),
	}

	e.breakers = breaker.NewManager(breaker.Config{
		VolatilityMultiple:   cfg.Breakers.VolatilityMultiple,
		VolatilityPause:      time.Duration(cfg.Breakers.VolatilityPauseMin) * time.Minute,
		SpreadCapBPS:         cfg.Breakers.SpreadCapBPS,
		SpreadPause:          time.Duration(cfg.Breakers.SpreadPauseMin) * time.Minute,
		LossWindow:           cfg.Breakers.LossWindow,
		LossPause:            time.Duration(cfg.Breakers.LossPauseMin) * time.Minute,
		InstabilityThreshold: cfg.Breakers.InstabilityThreshold,
		InstabilityWindow:    time.Duration(cfg.Breakers.InstabilityWindowMin) * time.Minute,
		InstabilityPause:     time.Duration(cfg.Breakers.InstabilityPauseMin) * time.Minute,
	},
		breaker.WithClock(func() time.Time { return e.now() }),
		breaker.WithTriggerHook(func(s breaker.State) {
			metrics.BreakersActive.Inc()
			e.emit(event.Event{
				Level: event.Warn, Type: event.TypeBreakerTriggered, PublicSafe: true,
				Payload: map[string]any{
					"kind":         string(s.Kind),
					"reason":       s.Reason,
					"active_until": s.ActiveUntil.UTC().Format(time.RFC3339),
				},
			})
		}),
		breaker.WithExpireHook(func(s breaker.State) {
			metrics.BreakersActive.Dec()
			e.emit(event.Event{
				Level: event.Info, Type: event.TypeBreakerExpired, PublicSafe: true,
				Payload: map[string]any{"kind": string(s.Kind)},
			})
		}),
	)

	e.lock = dailylock.NewManager(dailylock.Config{
		Mode:              dailylock.Mode(cfg.DailyLock.Mode),
		TargetUSD:         cfg.DailyLock.TargetUSD,
		TrailingBufferUSD: cfg.DailyLock.TrailingBufferUSD,
		Location:          loc,
		ForceCloseOnFloor: cfg.DailyLock.ForceCloseOnFloor,
	},
		dailylock.WithClock(func() time.Time { return e.now() }),
		dailylock.WithEngagedHook(func(s dailylock.Snapshot) {
			e.emit(event.Event{
				Level: event.Info, Type: event.TypeDailyLockEngaged, PublicSafe: true,
				Payload: lockPayload(s),
			})
		}),
		dailylock.WithFloorHook(func(s dailylock.Snapshot) {
			e.emit(event.Event{
				Level: event.Info, Type: event.TypeDailyLockFloorUpdated, PublicSafe: true,
				Payload: lockPayload(s),
			})
		}),
		dailylock.WithPausedHook(func(s dailylock.Snapshot) {
			e.emit(event.Event{
				Level: event.Warn, Type: event.TypeDailyLockEntriesPaused, PublicSafe: true,
				Payload: lockPayload(s),
			})
		}),
	)

	if cfg.Strategies.Trend {
		e.strategies = append(e.strategies, strategy.NewTrend(strategy.TrendConfigDefaults()))
	}
	if cfg.Strategies.MeanReversion {
		e.strategies = append(e.strategies, strategy.NewMeanReversion(strategy.MeanReversionConfigDefaults()))
	}
	if cfg.Strategies.Breakout {
		e.strategies = append(e.strategies, strategy.NewBreakout(strategy.BreakoutConfigDefaults()))
	}

	for _, o := range opts {
		o(e)
	}
	if e.exec == nil {
		e.exec = executor.NewDryRun(store, e.sink, cfg.Exchange.TakerBPS)
	}

	for _, sym := range cfg.EnabledSymbols() {
		e.workers = append(e.workers, newWorker(e, sym))
	}
	return e, nil
}

func lockPayload(s dailylock.Snapshot) map[string]any {
	return map[string]any{
		"day_key":  s.DayKey,
		"mode":     string(s.Mode),
		"realized": s.RealizedUSD,
		"peak":     s.PeakUSD,
		"floor":    s.FloorUSD,
		"engaged":  s.Engaged,
	}
}

// Sink exposes the event bus for external subscribers.
func (e *Engine) Sink() *event.Sink { return e.sink }

// Breakers exposes the breaker manager (news pause is set externally).
func (e *Engine) Breakers() *breaker.Manager { return e.breakers }

// emit appends one event, stamping the time.
func (e *Engine) emit(ev event.Event) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	if _, err := e.sink.Append(ev); err != nil {
		e.log.Error("event append failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// Init prepares the engine for ticking: emits the startup events,
// rebuilds the daily lock from storage, adopts persisted open
// positions, and reconciles live state. Must run before the first tick.
func (e *Engine) Init(ctx context.Context) error {
	now := e.now()

	e.emit(event.Event{
		Level: event.Info, Type: event.TypeSystemStarted, PublicSafe: true,
		Payload: map[string]any{"mode": e.cfg.Execution.Mode, "symbols": len(e.workers)},
	})
	e.emit(event.Event{
		Level: event.Info, Type: event.TypeConfigActivated, PublicSafe: true,
		Payload: map[string]any{"version": e.cfg.Version},
	})

	closed, err := e.store.ClosedTradesOnDay(e.lock.DayKey(now), e.loc)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	e.lock.Rebuild(closed, now)

	if e.reconciler != nil {
		if err := e.reconciler.Run(ctx, now); err != nil {
			if !errors.Is(err, executor.ErrReconcileConflict) {
				return fmt.Errorf("engine init: %w", err)
			}
			// Unknown remote state: refuse entries, keep servicing exits.
			e.setHalted(true)
			e.log.Error("reconciliation conflict, entries halted", zap.Error(err))
		}
	}

	open, err := e.store.OpenTrades()
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	for _, t := range open {
		e.setPosition(t)
	}
	metrics.PositionsOpen.Set(float64(len(open)))
	return nil
}

// Run ticks all symbol workers at the configured cadence until ctx is
// canceled, then shuts down: the current tick finishes up to the
// shutdown deadline, a final equity snapshot is persisted, and
// `system.stopped` is emitted. In-flight live orders are left to the
// exchange and reconciled on next start.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Init(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if addr := e.cfg.Observability.MetricsAddr; addr != "" {
		g.Go(func() error { return e.serveMetrics(gctx, addr) })
	}

	interval := e.cfg.Execution.TickInterval.Std()
	for _, w := range e.workers {
		w := w
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					ctx, cancel := e.tickContext()
					w.tick(ctx)
					cancel()
				}
			}
		})
	}

	err := g.Wait()
	e.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// tickContext bounds one tick's external calls. Derived from the
// background context so a shutdown signal lets the tick finish, capped
// by the shutdown deadline.
func (e *Engine) tickContext() (context.Context, context.CancelFunc) {
	deadline := e.cfg.Execution.ShutdownDeadline.Std()
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), deadline)
}

func (e *Engine) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (e *Engine) shutdown() {
	now := e.now()
	e.snapshotEquity(now, "shutdown")
	e.emit(event.Event{
		Level: event.Info, Type: event.TypeSystemStopped, PublicSafe: true,
		Payload: map[string]any{"open_positions": e.openCount()},
	})
	e.sink.Close()
}

// TickAll runs exactly one tick for every worker, serially. Intended
// for replay tooling and tests where the wall-clock scheduler is in
// the way.
func (e *Engine) TickAll(ctx context.Context) {
	for _, w := range e.workers {
		w.tick(ctx)
	}
}

func (e *Engine) position(symbol string) (trade.Trade, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.positions[symbol]
	return t, ok
}

func (e *Engine) setPosition(t trade.Trade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[t.Symbol] = t
}

func (e *Engine) clearPosition(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.positions, symbol)
}

func (e *Engine) openCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.positions)
}

func (e *Engine) setHalted(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.halted = v
}

func (e *Engine) entriesHalted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// applyOpen debits cash for a fresh entry.
func (e *Engine) applyOpen(t trade.Trade) {
	e.mu.Lock()
	e.cash -= t.EntryNotional
	e.positions[t.Symbol] = t
	open := len(e.positions)
	e.mu.Unlock()

	metrics.PositionsOpen.Set(float64(open))
	metrics.TradesOpened.WithLabelValues(t.Symbol, string(t.Mode)).Inc()
}

// applyClose credits cash with the exit proceeds and feeds the shared
// managers.
func (e *Engine) applyClose(t trade.Trade) {
	e.mu.Lock()
	e.cash += t.ExitPrice*t.EntryQty - t.FeesPaid
	delete(e.positions, t.Symbol)
	open := len(e.positions)
	e.mu.Unlock()

	e.lock.RecordClose(t.RealizedPnL, t.ClosedAt)
	e.breakers.RecordTradeResult(t.RealizedPnL)

	metrics.PositionsOpen.Set(float64(open))
	metrics.TradesClosed.WithLabelValues(t.Symbol, t.Notes).Inc()
	metrics.RealizedToday.Set(e.lock.Snapshot().RealizedUSD)
}

// equityView computes equity = cash + mark value of open positions.
func (e *Engine) equityView(marks map[string]float64) (equity, cash, unrealized float64, open int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cash = e.cash
	equity = e.cash
	for sym, t := range e.positions {
		mark, ok := marks[sym]
		if !ok {
			mark = t.EntryPrice
		}
		equity += mark * t.EntryQty
		unrealized += (mark - t.EntryPrice) * t.EntryQty
	}
	return equity, cash, unrealized, len(e.positions)
}

func (e *Engine) snapshotEquity(now time.Time, meta string) {
	marks := make(map[string]float64)
	e.mu.Lock()
	for _, w := range e.workers {
		if w.lastClose > 0 {
			marks[w.symbol] = w.lastClose
		}
	}
	e.mu.Unlock()

	equity, cash, unrealized, open := e.equityView(marks)
	snap := journal.EquitySnapshot{
		Time:             now,
		EquityUSD:        equity,
		CashUSD:          cash,
		UnrealizedPnLUSD: unrealized,
		RealizedTodayUSD: e.lock.Snapshot().RealizedUSD,
		OpenPositions:    open,
		Meta:             meta,
	}
	if err := e.store.AppendEquity(snap); err != nil {
		e.log.Error("equity snapshot failed", zap.Error(err))
	}
	metrics.EquityGauge.Set(equity)
}
