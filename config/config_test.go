package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
execution:
  mode: dry_run
  tick_interval: 30s
gates:
  min_profit_usd: 0.25
daily_lock:
  mode: OVERDRIVE
  target_usd: 2.0
  trailing_buffer_usd: 5.0
  timezone: America/New_York
`))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Execution.TickInterval.Std())
	assert.InDelta(t, 0.25, cfg.Gates.MinProfitUSD, 1e-9)
	assert.Equal(t, LockOverdrive, cfg.DailyLock.Mode)

	loc, err := cfg.DailyLock.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	// Untouched sections keep their defaults.
	assert.Equal(t, 2, cfg.Strategies.MinAgreement)
	assert.Equal(t, []string{"BTC-USDT"}, cfg.EnabledSymbols())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`
execution:
  mode: dry_run
  tick_intervall: 30s
`))
	require.Error(t, err)
}

func TestValidateRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"quote asset not allowlisted", func(c *Snapshot) { c.Exchange.QuoteAsset = "DOGE" }},
		{"no enabled symbols", func(c *Snapshot) { c.Symbols = []SymbolConfig{{Name: "X", Enabled: false}} }},
		{"bad execution mode", func(c *Snapshot) { c.Execution.Mode = "paper" }},
		{"zero min profit", func(c *Snapshot) { c.Gates.MinProfitUSD = 0 }},
		{"min_agreement above strategy count", func(c *Snapshot) { c.Strategies.MinAgreement = 4 }},
		{"min_agreement below one", func(c *Snapshot) { c.Strategies.MinAgreement = 0 }},
		{"confidence threshold above one", func(c *Snapshot) { c.Strategies.ConfidenceThreshold = 1.5 }},
		{"zero breaker pause", func(c *Snapshot) { c.Breakers.SpreadPauseMin = 0 }},
		{"bad lock mode", func(c *Snapshot) { c.DailyLock.Mode = "PAUSE" }},
		{"bad timezone", func(c *Snapshot) { c.DailyLock.Timezone = "Mars/Olympus" }},
		{"zero risk pct", func(c *Snapshot) { c.Risk.RiskPerTradePct = 0 }},
		{"empty db path", func(c *Snapshot) { c.Journal.DBPath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
exchange:
  name: sim
  quote_asset: USDT
  taker_bps: 10
  maker_bps: 5
symbols:
  - name: ETH-USDT
    enabled: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH-USDT"}, cfg.EnabledSymbols())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
