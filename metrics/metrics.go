// Package metrics registers the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantspot_ticks_total",
			Help: "Ticks processed per symbol.",
		},
		[]string{"symbol"},
	)

	TradesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantspot_trades_opened_total",
			Help: "Trades opened, by symbol and mode.",
		},
		[]string{"symbol", "mode"},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantspot_trades_closed_total",
			Help: "Trades closed, by symbol and exit reason.",
		},
		[]string{"symbol", "reason"},
	)

	GateRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantspot_gate_rejections_total",
			Help: "Entry candidates rejected, by gate.",
		},
		[]string{"gate"},
	)

	BreakersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantspot_breakers_active",
			Help: "Number of currently active circuit breakers.",
		},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantspot_positions_open",
			Help: "Current number of open positions.",
		},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantspot_equity_usd",
			Help: "Current account equity in USD.",
		},
	)

	RealizedToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantspot_realized_pnl_today_usd",
			Help: "Realized PnL for the current lock day in USD.",
		},
	)

	ExchangeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantspot_exchange_errors_total",
			Help: "Transient exchange errors observed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, TradesOpened, TradesClosed, GateRejections,
		BreakersActive, PositionsOpen, EquityGauge, RealizedToday,
		ExchangeErrors,
	)
}
