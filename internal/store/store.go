// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"algotrader/internal/models"
)

// Store defines the interface for trading data persistence.
type Store interface {
	// Candle cache
	SaveBars(ctx context.Context, bars []models.Bar) error
	GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, error)
	GetBarsFreshness(ctx context.Context, symbol string, timeframe models.Timeframe) (time.Time, error)

	// Trade journal
	LogTrade(ctx context.Context, trade *models.Trade) error
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)

	// Performance snapshots
	SavePerformance(ctx context.Context, botID string, m models.PerformanceMetrics, ts time.Time) error
	GetPerformance(ctx context.Context, botID string) ([]PerformanceSnapshot, error)

	// Lifecycle
	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	BotID     string
	Symbol    string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// PerformanceSnapshot is one persisted metrics row.
type PerformanceSnapshot struct {
	BotID     string
	Timestamp time.Time
	Metrics   models.PerformanceMetrics
}
