// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"algotrader/internal/models"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "algotrader", "logs", "engine.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithBot adds a bot id to the logger context.
func WithBot(logger zerolog.Logger, botID string) zerolog.Logger {
	return logger.With().Str("bot_id", botID).Logger()
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithStrategy adds a strategy id to the logger context.
func WithStrategy(logger zerolog.Logger, strategyID string) zerolog.Logger {
	return logger.With().Str("strategy", strategyID).Logger()
}

// LogSignal logs a generated signal.
func LogSignal(logger zerolog.Logger, sig *models.Signal) {
	logger.Info().
		Str("event", "signal").
		Str("strategy", sig.StrategyID).
		Str("symbol", sig.Symbol).
		Str("direction", string(sig.Direction)).
		Float64("entry", sig.EntryPrice).
		Float64("stop_loss", sig.StopLoss).
		Float64("take_profit", sig.TakeProfit).
		Float64("confidence", sig.Confidence).
		Msg("Signal generated")
}

// LogPositionOpened logs a position open.
func LogPositionOpened(logger zerolog.Logger, pos *models.Position) {
	logger.Info().
		Str("event", "position_opened").
		Int64("position_id", int64(pos.ID)).
		Str("symbol", pos.Symbol).
		Str("direction", string(pos.Direction)).
		Float64("lot_size", pos.LotSize).
		Float64("entry", pos.EntryPrice).
		Msg("Position opened")
}

// LogPositionClosed logs a position close.
func LogPositionClosed(logger zerolog.Logger, pos *models.Position) {
	logger.Info().
		Str("event", "position_closed").
		Int64("position_id", int64(pos.ID)).
		Str("symbol", pos.Symbol).
		Float64("close_price", pos.ClosePrice).
		Float64("profit", pos.Profit).
		Str("reason", string(pos.CloseReason)).
		Msg("Position closed")
}

// LogRejection logs a risk-manager rejection with all failed reasons.
func LogRejection(logger zerolog.Logger, sig *models.Signal, reasons []string) {
	logger.Warn().
		Str("event", "risk_rejected").
		Str("strategy", sig.StrategyID).
		Str("symbol", sig.Symbol).
		Str("direction", string(sig.Direction)).
		Strs("reasons", reasons).
		Msg("Signal rejected")
}
