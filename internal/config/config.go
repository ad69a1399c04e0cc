// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"algotrader/internal/errors"
	"algotrader/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Engine    EngineConfig       `mapstructure:"engine"`
	Execution ExecutionConfig    `mapstructure:"execution"`
	Logging   LoggingConfig      `mapstructure:"logging"`
	Database  DatabaseConfig     `mapstructure:"database"`
	Metrics   MetricsConfig      `mapstructure:"metrics"`
	Bots      []models.BotConfig `mapstructure:"bots"`
}

// EngineConfig holds engine tunables.
type EngineConfig struct {
	OrderQueueSize int `mapstructure:"order_queue_size"`
	Dispatchers    int `mapstructure:"dispatchers"`
	BarBuffer      int `mapstructure:"bar_buffer"`
	HistorySize    int `mapstructure:"history_size"`
}

// ExecutionConfig selects the execution client.
type ExecutionConfig struct {
	Mode        string  `mapstructure:"mode"` // "paper"
	SlippagePct float64 `mapstructure:"slippage_pct"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// DatabaseConfig holds persistence configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/algotrader"
	}
	return filepath.Join(home, ".config", "algotrader")
}

// Load loads configuration from the specified directory. If configDir
// is empty, the default config directory is used. A missing config file
// yields the defaults.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("engine.order_queue_size", 256)
	v.SetDefault("engine.dispatchers", 4)
	v.SetDefault("engine.bar_buffer", 64)
	v.SetDefault("engine.history_size", 256)

	v.SetDefault("execution.mode", "paper")
	v.SetDefault("execution.slippage_pct", 0.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "engine.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("database.path", filepath.Join(configDir, "algotrader.db"))

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALGOTRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ALGOTRADER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ALGOTRADER_EXECUTION_MODE"); v != "" {
		cfg.Execution.Mode = v
	}
	if v := os.Getenv("ALGOTRADER_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
		cfg.Metrics.Enabled = true
	}
}

// Validate validates the configuration. Every rejection wraps
// errors.ErrConfigInvalid so callers can match the class.
func (c *Config) Validate() error {
	if c.Execution.Mode != "" && c.Execution.Mode != "paper" {
		return errors.Wrapf(errors.ErrConfigInvalid, "invalid execution mode: %s (only 'paper' is supported)", c.Execution.Mode)
	}
	if c.Execution.SlippagePct < 0 || c.Execution.SlippagePct > 0.1 {
		return errors.Wrap(errors.ErrConfigInvalid, "slippage_pct must be between 0 and 0.1")
	}

	seen := make(map[string]bool)
	for _, bot := range c.Bots {
		if bot.ID == "" {
			return errors.Wrap(errors.ErrConfigInvalid, "bot id is required")
		}
		if seen[bot.ID] {
			return errors.Wrapf(errors.ErrConfigInvalid, "duplicate bot id: %s", bot.ID)
		}
		seen[bot.ID] = true
		switch bot.StrategyType {
		case "scalping", "dca", "grid":
		default:
			return errors.Wrapf(errors.ErrConfigInvalid, "bot %s: invalid strategy_type: %s", bot.ID, bot.StrategyType)
		}
		if bot.Symbol == "" {
			return errors.Wrapf(errors.ErrConfigInvalid, "bot %s: symbol is required", bot.ID)
		}
		if bot.Risk.MaxRiskPerTrade < 0 || bot.Risk.MaxRiskPerTrade > 1 {
			return errors.Wrapf(errors.ErrConfigInvalid, "bot %s: max_risk_per_trade must be between 0 and 1", bot.ID)
		}
		if bot.Risk.MaxDrawdown < 0 || bot.Risk.MaxDrawdown > 1 {
			return errors.Wrapf(errors.ErrConfigInvalid, "bot %s: max_drawdown must be between 0 and 1", bot.ID)
		}
	}
	return nil
}
