// Package strategy implements the per-bot signal state machines.
package strategy

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"algotrader/internal/indicators"
	"algotrader/internal/models"
)

// Kind identifies a strategy variant.
type Kind string

const (
	KindScalping Kind = "scalping"
	KindDCA      Kind = "dca"
	KindGrid     Kind = "grid"
)

// Strategy is the common contract of all signal state machines.
//
// Analyze must be called with strictly increasing bar timestamps per
// symbol and never blocks. It returns at most one new entry Signal per
// call; exits and ladder fills for existing positions are processed
// internally during the same call and drained afterwards through
// TakeOpened/TakeClosed, which gives callers an explicit synchronization
// point instead of callback reentrancy.
//
// Malformed or insufficient input yields a nil Signal, never an error.
type Strategy interface {
	ID() string
	Kind() Kind
	Symbol() string

	Analyze(bar models.Bar, snap *indicators.Snapshot) *models.Signal
	OnFill(sig *models.Signal, fillPrice float64) *models.Position
	TakeOpened() []*models.Position
	TakeClosed() []*models.Position
	OpenPositions() []*models.Position

	// CloseAll flattens every open position at the given price. The
	// closes drain through TakeClosed like any other.
	CloseAll(price float64, ts time.Time, reason models.CloseReason)

	Start()
	Stop()
	IsActive() bool
	Metrics() models.PerformanceMetrics

	// WarmupBars is the minimum history length before Analyze can emit.
	WarmupBars() int
}

// base carries the state shared by all strategy variants: the position
// ledger, the performance tracker and the open/closed drain queues.
// State is never shared between strategy instances.
type base struct {
	id      string
	symbol  string
	active  bool
	nextID  models.PositionID
	open    map[models.PositionID]*models.Position
	opened  []*models.Position
	closed  []*models.Position
	tracker *Tracker
	log     zerolog.Logger
}

func newBase(id, symbol string, log zerolog.Logger) base {
	return base{
		id:      id,
		symbol:  symbol,
		open:    make(map[models.PositionID]*models.Position),
		tracker: NewTracker(),
		log:     log.With().Str("strategy", id).Str("symbol", symbol).Logger(),
	}
}

func (b *base) ID() string     { return b.id }
func (b *base) Symbol() string { return b.symbol }
func (b *base) Start()         { b.active = true }
func (b *base) Stop()          { b.active = false }
func (b *base) IsActive() bool { return b.active }

func (b *base) Metrics() models.PerformanceMetrics {
	return b.tracker.Metrics()
}

func (b *base) OpenPositions() []*models.Position {
	out := make([]*models.Position, 0, len(b.open))
	for _, p := range b.open {
		out = append(out, p)
	}
	return out
}

// TakeOpened drains positions opened internally since the last call
// (safety orders, grid level fills).
func (b *base) TakeOpened() []*models.Position {
	out := b.opened
	b.opened = nil
	return out
}

// TakeClosed drains positions closed since the last call.
func (b *base) TakeClosed() []*models.Position {
	out := b.closed
	b.closed = nil
	return out
}

// openPosition records a new position in the ledger.
func (b *base) openPosition(direction models.Direction, lotSize, entry, stopLoss, takeProfit float64, ts time.Time, internal bool) *models.Position {
	b.nextID++
	pos := &models.Position{
		ID:         b.nextID,
		StrategyID: b.id,
		Symbol:     b.symbol,
		Direction:  direction,
		LotSize:    lotSize,
		EntryPrice: entry,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		OpenTime:   ts,
		Status:     models.PositionOpen,
	}
	b.open[pos.ID] = pos
	if internal {
		b.opened = append(b.opened, pos)
	}
	return pos
}

// CloseAll flattens every open position at the given price.
func (b *base) CloseAll(price float64, ts time.Time, reason models.CloseReason) {
	for _, pos := range b.OpenPositions() {
		b.closePosition(pos, price, ts, reason)
	}
}

// closePosition closes an open position and feeds the tracker.
func (b *base) closePosition(pos *models.Position, price float64, ts time.Time, reason models.CloseReason) {
	if pos.Status != models.PositionOpen {
		return
	}
	pos.Close(price, ts, reason)
	delete(b.open, pos.ID)
	b.closed = append(b.closed, pos)
	b.tracker.Record(pos.Profit)
}

// checkStops applies stop-loss and take-profit triggers against one bar's
// range. Stop-loss takes precedence when both are crossed in the same bar.
// Positions close at the triggered level, not at the bar close.
func (b *base) checkStops(bar models.Bar) {
	for _, pos := range b.OpenPositions() {
		if pos.Direction == models.DirectionBuy {
			if pos.StopLoss > 0 && bar.Low <= pos.StopLoss {
				b.closePosition(pos, pos.StopLoss, bar.Timestamp, models.CloseReasonStopLoss)
				continue
			}
			if pos.TakeProfit > 0 && bar.High >= pos.TakeProfit {
				b.closePosition(pos, pos.TakeProfit, bar.Timestamp, models.CloseReasonTakeProfit)
			}
		} else {
			if pos.StopLoss > 0 && bar.High >= pos.StopLoss {
				b.closePosition(pos, pos.StopLoss, bar.Timestamp, models.CloseReasonStopLoss)
				continue
			}
			if pos.TakeProfit > 0 && bar.Low <= pos.TakeProfit {
				b.closePosition(pos, pos.TakeProfit, bar.Timestamp, models.CloseReasonTakeProfit)
			}
		}
	}
}

// New constructs the strategy variant selected by cfg.
func New(cfg models.BotConfig, log zerolog.Logger) (Strategy, error) {
	switch Kind(cfg.StrategyType) {
	case KindScalping:
		return NewScalping(cfg.ID, cfg.Symbol, cfg.Scalping, log), nil
	case KindDCA:
		return NewDCA(cfg.ID, cfg.Symbol, cfg.DCA, log), nil
	case KindGrid:
		return NewGrid(cfg.ID, cfg.Symbol, cfg.Grid, log), nil
	default:
		return nil, fmt.Errorf("unknown strategy type %q", cfg.StrategyType)
	}
}

// SnapshotConfig derives the indicator period set a bot's strategy needs.
func SnapshotConfig(cfg models.BotConfig) indicators.SnapshotConfig {
	sc := indicators.DefaultSnapshotConfig()
	switch Kind(cfg.StrategyType) {
	case KindScalping:
		s := cfg.Scalping
		if s.FastEMAPeriod > 0 {
			sc.FastEMAPeriod = s.FastEMAPeriod
		}
		if s.SlowEMAPeriod > 0 {
			sc.SlowEMAPeriod = s.SlowEMAPeriod
		}
		if s.RSIPeriod > 0 {
			sc.RSIPeriod = s.RSIPeriod
		}
		if s.BollingerPeriod > 0 {
			sc.BollingerPeriod = s.BollingerPeriod
		}
		if s.BollingerDeviation > 0 {
			sc.BollingerDeviation = s.BollingerDeviation
		}
	case KindDCA:
		d := cfg.DCA
		if d.RSIPeriod > 0 {
			sc.RSIPeriod = d.RSIPeriod
		}
		if d.BollingerPeriod > 0 {
			sc.BollingerPeriod = d.BollingerPeriod
		}
	case KindGrid:
		g := cfg.Grid
		if g.ATRPeriod > 0 {
			sc.ATRPeriod = g.ATRPeriod
		}
	}
	return sc
}
