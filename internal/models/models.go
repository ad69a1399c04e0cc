// Package models provides domain models for the trading core.
package models

import (
	"time"
)

// Direction represents the side of a signal or position.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Opposite returns the opposing direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// Timeframe represents a bar aggregation interval.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Bar represents OHLCV data for one symbol/timeframe interval.
// Bars are immutable once produced and strictly ordered by timestamp
// per (symbol, timeframe).
type Bar struct {
	Symbol    string
	Timeframe Timeframe
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Signal is a candidate trade emitted by a strategy. It is immutable;
// it is either discarded, rejected by the risk manager, or promoted to
// an order.
type Signal struct {
	StrategyID string
	Symbol     string
	Direction  Direction
	EntryPrice float64
	StopLoss   float64 // 0 = none
	TakeProfit float64 // 0 = none
	LotSize    float64
	Confidence float64 // [0, 1]
	Timestamp  time.Time
	Metadata   map[string]string
}

// PositionID identifies a position within the owning strategy instance.
type PositionID int64

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonSignal     CloseReason = "signal_exit"
	CloseReasonExhausted  CloseReason = "safety_orders_exhausted"
	CloseReasonManual     CloseReason = "manual"
	CloseReasonEndOfRun   CloseReason = "end_of_run"
)

// Position is an open or closed trade owned exclusively by the strategy
// instance that opened it. It is mutated only through Open, UpdateUnrealized
// and Close.
type Position struct {
	ID          PositionID
	StrategyID  string
	Symbol      string
	Direction   Direction
	LotSize     float64
	EntryPrice  float64
	StopLoss    float64
	TakeProfit  float64
	OpenTime    time.Time
	Status      PositionStatus
	ClosePrice  float64
	CloseTime   time.Time
	Profit      float64
	Unrealized  float64
	CloseReason CloseReason
}

// UpdateUnrealized recomputes the unrealized P&L at the given price.
func (p *Position) UpdateUnrealized(price float64) {
	if p.Status != PositionOpen {
		return
	}
	if p.Direction == DirectionBuy {
		p.Unrealized = (price - p.EntryPrice) * p.LotSize
	} else {
		p.Unrealized = (p.EntryPrice - price) * p.LotSize
	}
}

// Close marks the position closed at the given price. It is the caller's
// contract never to close an already-closed position.
func (p *Position) Close(price float64, ts time.Time, reason CloseReason) {
	p.Status = PositionClosed
	p.ClosePrice = price
	p.CloseTime = ts
	p.CloseReason = reason
	if p.Direction == DirectionBuy {
		p.Profit = (price - p.EntryPrice) * p.LotSize
	} else {
		p.Profit = (p.EntryPrice - price) * p.LotSize
	}
	p.Unrealized = 0
}

// DealStatus represents the state of a DCA deal.
type DealStatus string

const (
	DealOpen   DealStatus = "open"
	DealClosed DealStatus = "closed"
)

// SafetyOrder is one averaging-down fill inside a DCA deal.
type SafetyOrder struct {
	Price  float64
	Volume float64
	Time   time.Time
}

// Deal aggregates a DCA base order plus its safety orders. The invariant
// AveragePrice == TotalInvested / TotalVolume holds after every addition.
type Deal struct {
	ID               PositionID
	Symbol           string
	Direction        Direction
	BaseOrder        SafetyOrder
	SafetyOrders     []SafetyOrder
	AveragePrice     float64
	TotalVolume      float64
	TotalInvested    float64
	TakeProfitPrice  float64
	StopLossPrice    float64
	SafetyOrderCount int
	Status           DealStatus
	OpenTime         time.Time
	CloseTime        time.Time
	ClosePrice       float64
	Profit           float64
	CloseReason      CloseReason
}

// GridOrderStatus represents the state of an order on a grid level.
type GridOrderStatus string

const (
	GridOrderPending GridOrderStatus = "pending"
	GridOrderFilled  GridOrderStatus = "filled"
)

// GridOrder is a pending or filled order attached to one grid level.
// At most one pending order exists per level at a time.
type GridOrder struct {
	Level      int
	Price      float64
	Direction  Direction
	LotSize    float64
	Status     GridOrderStatus
	PositionID PositionID
}

// GridLevel is one rung of the grid price ladder.
type GridLevel struct {
	Index int
	Price float64
}

// RiskState tracks the per-bot risk accounting mutated only by the risk
// manager and read by emergency-stop checks.
type RiskState struct {
	Balance            float64
	Equity             float64
	DailyRiskUsed      float64
	DailyLoss          float64
	CurrentDrawdown    float64 // fraction of peak equity
	MaxDrawdownReached float64
	PeakEquity         float64
	ConsecutiveLosses  int
	Day                time.Time
}

// NewRiskState creates a risk state seeded with the starting balance.
func NewRiskState(balance float64) *RiskState {
	return &RiskState{
		Balance:    balance,
		Equity:     balance,
		PeakEquity: balance,
	}
}

// RecordEquity updates equity, the high-water mark and drawdown.
func (r *RiskState) RecordEquity(equity float64) {
	r.Equity = equity
	if equity > r.PeakEquity {
		r.PeakEquity = equity
	}
	if r.PeakEquity > 0 {
		r.CurrentDrawdown = (r.PeakEquity - equity) / r.PeakEquity
	}
	if r.CurrentDrawdown > r.MaxDrawdownReached {
		r.MaxDrawdownReached = r.CurrentDrawdown
	}
}

// RollDay resets the daily counters when the bar date advances.
func (r *RiskState) RollDay(ts time.Time) {
	day := ts.Truncate(24 * time.Hour)
	if !day.Equal(r.Day) {
		r.Day = day
		r.DailyRiskUsed = 0
		r.DailyLoss = 0
	}
}

// PerformanceMetrics is the incrementally maintained trade ledger summary.
type PerformanceMetrics struct {
	TotalTrades       int
	WinningTrades     int
	LosingTrades      int
	TotalProfit       float64
	TotalLoss         float64 // absolute value
	WinRate           float64 // [0, 1]
	ProfitFactor      float64
	MaxDrawdown       float64
	SharpeRatio       float64
	ConsecutiveWins   int
	ConsecutiveLosses int
}

// BotConfig enumerates everything needed to provision one bot.
type BotConfig struct {
	ID           string         `mapstructure:"id"`
	StrategyType string         `mapstructure:"strategy_type"` // scalping, dca, grid
	Symbol       string         `mapstructure:"symbol"`
	Timeframe    Timeframe      `mapstructure:"timeframe"`
	Scalping     ScalpingConfig `mapstructure:"scalping"`
	DCA          DCAConfig      `mapstructure:"dca"`
	Grid         GridConfig     `mapstructure:"grid"`
	Risk         RiskParams     `mapstructure:"risk"`
}

// ScalpingConfig holds scalping strategy tunables.
type ScalpingConfig struct {
	FastEMAPeriod        int     `mapstructure:"fast_ema_period"`
	SlowEMAPeriod        int     `mapstructure:"slow_ema_period"`
	RSIPeriod            int     `mapstructure:"rsi_period"`
	RSIOversold          float64 `mapstructure:"rsi_oversold"`
	RSIOverbought        float64 `mapstructure:"rsi_overbought"`
	BollingerPeriod      int     `mapstructure:"bollinger_period"`
	BollingerDeviation   float64 `mapstructure:"bollinger_deviation"`
	VolumeSurgeRatio     float64 `mapstructure:"volume_surge_ratio"`
	MaxSpreadPct         float64 `mapstructure:"max_spread_pct"`
	MinAgreement         float64 `mapstructure:"min_agreement"` // fraction of conditions that must agree
	StopLossPct          float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct        float64 `mapstructure:"take_profit_pct"`
	MaxPositions         int     `mapstructure:"max_positions"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
}

// DCAConfig holds DCA strategy tunables.
type DCAConfig struct {
	BaseOrderVolume   float64       `mapstructure:"base_order_volume"`
	SafetyOrderVolume float64       `mapstructure:"safety_order_volume"`
	MaxSafetyOrders   int           `mapstructure:"max_safety_orders"`
	PriceDeviation    float64       `mapstructure:"price_deviation"` // first safety-order step, fraction
	StepScale         float64       `mapstructure:"step_scale"`      // geometric step multiplier
	VolumeScale       float64       `mapstructure:"volume_scale"`
	TakeProfitPct     float64       `mapstructure:"take_profit_pct"`
	StopLossPct       float64       `mapstructure:"stop_loss_pct"` // 0 = disabled
	RSIPeriod         int           `mapstructure:"rsi_period"`
	RSIOversold       float64       `mapstructure:"rsi_oversold"`
	BollingerPeriod   int           `mapstructure:"bollinger_period"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
}

// GridSpacing selects how grid levels are spaced.
type GridSpacing string

const (
	GridSpacingArithmetic GridSpacing = "arithmetic"
	GridSpacingGeometric  GridSpacing = "geometric"
)

// GridConfig holds grid strategy tunables.
type GridConfig struct {
	Levels             int           `mapstructure:"levels"`
	Spacing            GridSpacing   `mapstructure:"spacing"`
	OrderVolume        float64       `mapstructure:"order_volume"`
	MaxGridOrders      int           `mapstructure:"max_grid_orders"`
	ATRPeriod          int           `mapstructure:"atr_period"`
	ATRMultiplier      float64       `mapstructure:"atr_multiplier"`
	TakeProfitPct      float64       `mapstructure:"take_profit_pct"`
	StopLossPct        float64       `mapstructure:"stop_loss_pct"`
	Hedging            bool          `mapstructure:"hedging"`
	RebalanceRatio     float64       `mapstructure:"rebalance_ratio"` // volatility-change trigger
	RebalanceCooldown  time.Duration `mapstructure:"rebalance_cooldown"`
	SupportResistance  bool          `mapstructure:"support_resistance"`
	LookbackBars       int           `mapstructure:"lookback_bars"`
}

// RiskParams are the per-bot risk-manager options.
type RiskParams struct {
	AccountBalance     float64            `mapstructure:"account_balance"`
	MaxPositions       int                `mapstructure:"max_positions"`
	MaxRiskPerTrade    float64            `mapstructure:"max_risk_per_trade"`
	MaxDailyRisk       float64            `mapstructure:"max_daily_risk"`
	MaxDrawdown        float64            `mapstructure:"max_drawdown"`
	MaxDailyLoss       float64            `mapstructure:"max_daily_loss"`
	MinRiskReward      float64            `mapstructure:"min_risk_reward"`
	CorrelationLimit   float64            `mapstructure:"correlation_limit"`
	Correlations       map[string]float64 `mapstructure:"correlations"` // "SYMA/SYMB" -> coefficient
	MaxVolatilityPct   float64            `mapstructure:"max_volatility_pct"` // ATR / price ceiling
	MaxLeverage        float64            `mapstructure:"max_leverage"`
	MaxPositionPct     float64            `mapstructure:"max_position_pct"` // balance fraction cap on notional
	MaxPortfolioHeat   float64            `mapstructure:"max_portfolio_heat"`
	MaxConsecutiveLoss int                `mapstructure:"max_consecutive_loss"`
	ATRStopMultiplier  float64            `mapstructure:"atr_stop_multiplier"`
	ATRTakeMultiplier  float64            `mapstructure:"atr_take_multiplier"`
	TrailingStopPct    float64            `mapstructure:"trailing_stop_pct"`
}

// Trade is the immutable record emitted to the persistence collaborator
// when a position closes.
type Trade struct {
	ID         PositionID
	BotID      string
	StrategyID string
	Symbol     string
	Direction  Direction
	LotSize    float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	Profit     float64
	Reason     CloseReason
}
