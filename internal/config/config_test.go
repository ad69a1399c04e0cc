package config

import (
	"os"
	"path/filepath"
	"testing"

	"algotrader/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return dir
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.OrderQueueSize != 256 || cfg.Engine.Dispatchers != 4 {
		t.Errorf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Execution.Mode != "paper" {
		t.Errorf("execution mode = %q, want paper", cfg.Execution.Mode)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.Console {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics enabled by default")
	}
}

func TestLoadParsesBots(t *testing.T) {
	dir := writeConfig(t, `
[engine]
history_size = 512

[execution]
mode = "paper"
slippage_pct = 0.0002

[[bots]]
id = "scalp-btc"
strategy_type = "scalping"
symbol = "BTCUSDT"
timeframe = "5m"

[bots.scalping]
fast_ema_period = 8
slow_ema_period = 21

[bots.risk]
account_balance = 25000.0
max_risk_per_trade = 0.01

[[bots]]
id = "grid-eth"
strategy_type = "grid"
symbol = "ETHUSDT"
timeframe = "15m"

[bots.grid]
levels = 7
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.HistorySize != 512 {
		t.Errorf("history_size = %d, want 512", cfg.Engine.HistorySize)
	}
	if cfg.Execution.SlippagePct != 0.0002 {
		t.Errorf("slippage_pct = %v", cfg.Execution.SlippagePct)
	}
	if len(cfg.Bots) != 2 {
		t.Fatalf("got %d bots, want 2", len(cfg.Bots))
	}
	b := cfg.Bots[0]
	if b.ID != "scalp-btc" || b.StrategyType != "scalping" || b.Symbol != "BTCUSDT" {
		t.Errorf("bot 0 = %+v", b)
	}
	if b.Scalping.FastEMAPeriod != 8 || b.Scalping.SlowEMAPeriod != 21 {
		t.Errorf("scalping params = %+v", b.Scalping)
	}
	if b.Risk.AccountBalance != 25000 || b.Risk.MaxRiskPerTrade != 0.01 {
		t.Errorf("risk params = %+v", b.Risk)
	}
	if cfg.Bots[1].Grid.Levels != 7 {
		t.Errorf("grid levels = %d, want 7", cfg.Bots[1].Grid.Levels)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"unknown strategy", `
[[bots]]
id = "b1"
strategy_type = "martingale"
symbol = "BTCUSDT"
`},
		{"duplicate bot id", `
[[bots]]
id = "b1"
strategy_type = "scalping"
symbol = "BTCUSDT"

[[bots]]
id = "b1"
strategy_type = "grid"
symbol = "ETHUSDT"
`},
		{"missing symbol", `
[[bots]]
id = "b1"
strategy_type = "dca"
`},
		{"live mode unsupported", `
[execution]
mode = "live"
`},
		{"risk fraction out of range", `
[[bots]]
id = "b1"
strategy_type = "scalping"
symbol = "BTCUSDT"

[bots.risk]
max_risk_per_trade = 1.5
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.toml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, errors.ErrConfigInvalid) {
				t.Errorf("error %v does not wrap ErrConfigInvalid", err)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ALGOTRADER_LOG_LEVEL", "debug")
	t.Setenv("ALGOTRADER_DB_PATH", "/tmp/override.db")
	t.Setenv("ALGOTRADER_METRICS_LISTEN", ":9999")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9999" {
		t.Errorf("metrics = %+v, want enabled on :9999", cfg.Metrics)
	}
}
