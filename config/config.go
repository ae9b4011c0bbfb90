// Package config loads and validates the engine's configuration
// snapshot. A snapshot is immutable once loaded; a tick always reads
// exactly one snapshot, and partial updates are never observable.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Execution modes.
const (
	ModeDryRun = "dry_run"
	ModeLive   = "live"
)

// Daily lock modes.
const (
	LockStop      = "STOP"
	LockOverdrive = "OVERDRIVE"
)

// Duration decodes YAML strings like "15s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

var quoteAssetAllowlist = map[string]bool{
	"USD": true, "USDT": true, "USDC": true, "EUR": true,
}

// Snapshot is the complete engine configuration.
type Snapshot struct {
	Version       int                 `yaml:"version"`
	Exchange      ExchangeConfig      `yaml:"exchange"`
	Symbols       []SymbolConfig      `yaml:"symbols"`
	Execution     ExecutionConfig     `yaml:"execution"`
	Risk          RiskConfig          `yaml:"risk"`
	Strategies    StrategiesConfig    `yaml:"strategies"`
	Gates         GatesConfig         `yaml:"gates"`
	Breakers      BreakersConfig      `yaml:"breakers"`
	DailyLock     DailyLockConfig     `yaml:"daily_lock"`
	News          NewsConfig          `yaml:"news"`
	Transparency  TransparencyConfig  `yaml:"transparency"`
	Observability ObservabilityConfig `yaml:"observability"`
	Journal       JournalConfig       `yaml:"journal"`
}

// ExchangeConfig identifies the venue and its fee schedule.
type ExchangeConfig struct {
	Name       string  `yaml:"name"`
	QuoteAsset string  `yaml:"quote_asset"`
	TakerBPS   float64 `yaml:"taker_bps"`
	MakerBPS   float64 `yaml:"maker_bps"`
}

// SymbolConfig is one tradable market.
type SymbolConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
}

// ExecutionConfig drives the scheduler and the executor.
type ExecutionConfig struct {
	Mode                   string   `yaml:"mode"`
	TickInterval           Duration `yaml:"tick_interval"`
	Timeframe              string   `yaml:"timeframe"`
	CandleLimit            int      `yaml:"candle_limit"`
	OrderBookDepth         int      `yaml:"orderbook_depth"`
	StalenessBound         Duration `yaml:"staleness_bound"`
	ShutdownDeadline       Duration `yaml:"shutdown_deadline"`
	MaxConcurrentPositions int      `yaml:"max_concurrent_positions"`
	RetryAttempts          int      `yaml:"retry_attempts"`
	RetryBackoff           Duration `yaml:"retry_backoff"`
	ArmTokenTTL            Duration `yaml:"arm_token_ttl"`
}

// RiskConfig sizes positions.
type RiskConfig struct {
	RiskPerTradePct      float64 `yaml:"risk_per_trade_pct"`
	MaxPositionPctEquity float64 `yaml:"max_position_pct_equity"`
	MinNotionalUSD       float64 `yaml:"min_notional_usd"`
	InitialEquityUSD     float64 `yaml:"initial_equity_usd"`
}

// StrategiesConfig selects strategies and the ensemble policy.
type StrategiesConfig struct {
	MinAgreement        int     `yaml:"min_agreement"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	Trend               bool    `yaml:"trend"`
	MeanReversion       bool    `yaml:"mean_reversion"`
	Breakout            bool    `yaml:"breakout"`
}

// Enabled returns how many strategies are switched on.
func (s StrategiesConfig) Enabled() int {
	n := 0
	for _, on := range []bool{s.Trend, s.MeanReversion, s.Breakout} {
		if on {
			n++
		}
	}
	return n
}

// GatesConfig holds the profitability floor.
type GatesConfig struct {
	MinProfitUSD float64 `yaml:"min_profit_usd"`
}

// BreakersConfig holds trigger thresholds and pause durations in
// minutes.
type BreakersConfig struct {
	VolatilityMultiple   float64 `yaml:"volatility_multiple"`
	VolatilityPauseMin   int     `yaml:"volatility_pause_minutes"`
	SpreadCapBPS         float64 `yaml:"spread_cap_bps"`
	SpreadPauseMin       int     `yaml:"spread_pause_minutes"`
	LossWindow           int     `yaml:"loss_window"`
	LossPauseMin         int     `yaml:"loss_pause_minutes"`
	InstabilityThreshold int     `yaml:"instability_threshold"`
	InstabilityWindowMin int     `yaml:"instability_window_minutes"`
	InstabilityPauseMin  int     `yaml:"instability_pause_minutes"`
}

// DailyLockConfig configures the daily profit lock.
type DailyLockConfig struct {
	Mode              string  `yaml:"mode"`
	TargetUSD         float64 `yaml:"target_usd"`
	TrailingBufferUSD float64 `yaml:"trailing_buffer_usd"`
	Timezone          string  `yaml:"timezone"`
	ForceCloseOnFloor bool    `yaml:"force_close_on_floor"`
}

// Location resolves the configured IANA timezone.
func (d DailyLockConfig) Location() (*time.Location, error) {
	return time.LoadLocation(d.Timezone)
}

// NewsConfig configures the externally-set negative-news pause.
type NewsConfig struct {
	Enabled      bool `yaml:"enabled"`
	PauseMinutes int  `yaml:"pause_minutes"`
}

// TransparencyConfig controls the public event feed.
type TransparencyConfig struct {
	PublicOnly       bool `yaml:"public_only"`
	SubscriberBuffer int  `yaml:"subscriber_buffer"`
}

// ObservabilityConfig controls the metrics endpoint.
type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// JournalConfig locates the SQLite database.
type JournalConfig struct {
	DBPath string `yaml:"db_path"`
}

// Default returns a snapshot with every leaf at its documented default.
func Default() Snapshot {
	return Snapshot{
		Version: 1,
		Exchange: ExchangeConfig{
			Name:       "sim",
			QuoteAsset: "USDT",
			TakerBPS:   10,
			MakerBPS:   5,
		},
		Symbols: []SymbolConfig{{Name: "BTC-USDT", Enabled: true}},
		Execution: ExecutionConfig{
			Mode:                   ModeDryRun,
			TickInterval:           Duration(15 * time.Second),
			Timeframe:              "1m",
			CandleLimit:            200,
			OrderBookDepth:         20,
			StalenessBound:         Duration(2 * time.Minute),
			ShutdownDeadline:       Duration(10 * time.Second),
			MaxConcurrentPositions: 3,
			RetryAttempts:          3,
			RetryBackoff:           Duration(250 * time.Millisecond),
			ArmTokenTTL:            Duration(5 * time.Minute),
		},
		Risk: RiskConfig{
			RiskPerTradePct:      1.0,
			MaxPositionPctEquity: 20.0,
			MinNotionalUSD:       10.0,
			InitialEquityUSD:     1_000,
		},
		Strategies: StrategiesConfig{
			MinAgreement:        2,
			ConfidenceThreshold: 0.6,
			Trend:               true,
			MeanReversion:       true,
			Breakout:            true,
		},
		Gates: GatesConfig{MinProfitUSD: 0.10},
		Breakers: BreakersConfig{
			VolatilityMultiple:   3.0,
			VolatilityPauseMin:   30,
			SpreadCapBPS:         25,
			SpreadPauseMin:       30,
			LossWindow:           3,
			LossPauseMin:         60,
			InstabilityThreshold: 5,
			InstabilityWindowMin: 5,
			InstabilityPauseMin:  15,
		},
		DailyLock: DailyLockConfig{
			Mode:              LockStop,
			TargetUSD:         2.00,
			TrailingBufferUSD: 5.00,
			Timezone:          "UTC",
		},
		News:         NewsConfig{Enabled: false, PauseMinutes: 60},
		Transparency: TransparencyConfig{PublicOnly: true, SubscriberBuffer: 256},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9187",
		},
		Journal: JournalConfig{DBPath: "quantspot.db"},
	}
}

// Load reads a YAML snapshot from path, applies defaults for omitted
// sections, and validates it. Unknown keys are rejected at load time.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML snapshot.
func Parse(data []byte) (Snapshot, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Snapshot{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the snapshot. A failure here is fatal at startup.
func (c Snapshot) Validate() error {
	if !quoteAssetAllowlist[c.Exchange.QuoteAsset] {
		return fmt.Errorf("exchange.quote_asset %q not in allowlist", c.Exchange.QuoteAsset)
	}
	if c.Exchange.TakerBPS < 0 || c.Exchange.MakerBPS < 0 {
		return fmt.Errorf("exchange fee bps must be non-negative")
	}

	enabled := 0
	for _, s := range c.Symbols {
		if s.Name == "" {
			return fmt.Errorf("symbols: empty name")
		}
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("symbols: at least one enabled symbol required")
	}

	switch c.Execution.Mode {
	case ModeDryRun, ModeLive:
	default:
		return fmt.Errorf("execution.mode %q must be %q or %q", c.Execution.Mode, ModeDryRun, ModeLive)
	}
	if c.Execution.TickInterval <= 0 {
		return fmt.Errorf("execution.tick_interval must be positive")
	}
	if c.Execution.CandleLimit <= 0 || c.Execution.OrderBookDepth <= 0 {
		return fmt.Errorf("execution.candle_limit and execution.orderbook_depth must be positive")
	}
	if c.Execution.MaxConcurrentPositions < 1 {
		return fmt.Errorf("execution.max_concurrent_positions must be at least 1")
	}

	if c.Risk.RiskPerTradePct <= 0 || c.Risk.RiskPerTradePct > 100 {
		return fmt.Errorf("risk.risk_per_trade_pct must be in (0, 100]")
	}
	if c.Risk.MaxPositionPctEquity <= 0 || c.Risk.MaxPositionPctEquity > 100 {
		return fmt.Errorf("risk.max_position_pct_equity must be in (0, 100]")
	}
	if c.Risk.MinNotionalUSD < 0 {
		return fmt.Errorf("risk.min_notional_usd must be non-negative")
	}
	if c.Risk.InitialEquityUSD <= 0 {
		return fmt.Errorf("risk.initial_equity_usd must be positive")
	}

	if n := c.Strategies.Enabled(); c.Strategies.MinAgreement < 1 || c.Strategies.MinAgreement > n {
		return fmt.Errorf("strategies.min_agreement %d must be in [1, %d]", c.Strategies.MinAgreement, n)
	}
	if c.Strategies.ConfidenceThreshold < 0 || c.Strategies.ConfidenceThreshold > 1 {
		return fmt.Errorf("strategies.confidence_threshold must be in [0, 1]")
	}

	if c.Gates.MinProfitUSD <= 0 {
		return fmt.Errorf("gates.min_profit_usd must be positive")
	}

	b := c.Breakers
	for _, p := range []struct {
		name string
		min  int
	}{
		{"volatility_pause_minutes", b.VolatilityPauseMin},
		{"spread_pause_minutes", b.SpreadPauseMin},
		{"loss_pause_minutes", b.LossPauseMin},
		{"instability_pause_minutes", b.InstabilityPauseMin},
	} {
		if p.min <= 0 {
			return fmt.Errorf("breakers.%s must be positive", p.name)
		}
	}

	switch c.DailyLock.Mode {
	case LockStop, LockOverdrive:
	default:
		return fmt.Errorf("daily_lock.mode %q must be %q or %q", c.DailyLock.Mode, LockStop, LockOverdrive)
	}
	if c.DailyLock.TargetUSD <= 0 {
		return fmt.Errorf("daily_lock.target_usd must be positive")
	}
	if c.DailyLock.Mode == LockOverdrive && c.DailyLock.TrailingBufferUSD <= 0 {
		return fmt.Errorf("daily_lock.trailing_buffer_usd must be positive in OVERDRIVE mode")
	}
	if _, err := c.DailyLock.Location(); err != nil {
		return fmt.Errorf("daily_lock.timezone %q is not a valid IANA name", c.DailyLock.Timezone)
	}

	if c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path is required")
	}
	return nil
}

// EnabledSymbols lists the symbols the engine trades.
func (c Snapshot) EnabledSymbols() []string {
	var out []string
	for _, s := range c.Symbols {
		if s.Enabled {
			out = append(out, s.Name)
		}
	}
	return out
}
