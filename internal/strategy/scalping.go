package strategy

import (
	"math"

	"github.com/rs/zerolog"

	"algotrader/internal/indicators"
	"algotrader/internal/models"
)

// Scalping is a stateless-per-bar entry decision with multi-indicator
// confirmation: trend via EMA cross, momentum via RSI/MACD, mean reversion
// via Bollinger Band proximity, volume surge, and a spread ceiling. An
// entry is emitted only when at least MinAgreement of the directional
// votes point the same way.
type Scalping struct {
	base
	cfg models.ScalpingConfig
}

// NewScalping creates a scalping strategy with defaults applied.
func NewScalping(id, symbol string, cfg models.ScalpingConfig, log zerolog.Logger) *Scalping {
	applyScalpingDefaults(&cfg)
	return &Scalping{
		base: newBase(id, symbol, log),
		cfg:  cfg,
	}
}

func applyScalpingDefaults(cfg *models.ScalpingConfig) {
	if cfg.FastEMAPeriod <= 0 {
		cfg.FastEMAPeriod = 8
	}
	if cfg.SlowEMAPeriod <= 0 {
		cfg.SlowEMAPeriod = 21
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.RSIOversold <= 0 {
		cfg.RSIOversold = 30
	}
	if cfg.RSIOverbought <= 0 {
		cfg.RSIOverbought = 70
	}
	if cfg.BollingerPeriod <= 0 {
		cfg.BollingerPeriod = 20
	}
	if cfg.BollingerDeviation <= 0 {
		cfg.BollingerDeviation = 2.0
	}
	if cfg.VolumeSurgeRatio <= 0 {
		cfg.VolumeSurgeRatio = 1.5
	}
	if cfg.MaxSpreadPct <= 0 {
		cfg.MaxSpreadPct = 0.01
	}
	if cfg.MinAgreement <= 0 {
		cfg.MinAgreement = 0.8
	}
	if cfg.StopLossPct <= 0 {
		cfg.StopLossPct = 0.005
	}
	if cfg.TakeProfitPct <= 0 {
		cfg.TakeProfitPct = 0.01
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 1
	}
	if cfg.MaxConsecutiveLosses <= 0 {
		cfg.MaxConsecutiveLosses = 3
	}
}

func (s *Scalping) Kind() Kind { return KindScalping }

func (s *Scalping) WarmupBars() int {
	warmup := s.cfg.SlowEMAPeriod + 1
	if p := s.cfg.RSIPeriod + 2; p > warmup {
		warmup = p
	}
	if p := s.cfg.BollingerPeriod; p > warmup {
		warmup = p
	}
	return warmup
}

// Analyze processes exits for open positions and evaluates a new entry.
func (s *Scalping) Analyze(bar models.Bar, snap *indicators.Snapshot) *models.Signal {
	if !s.active || snap == nil {
		return nil
	}

	s.checkStops(bar)
	s.checkMomentumExit(bar, snap)

	// Circuit breakers.
	if len(s.open) >= s.cfg.MaxPositions {
		return nil
	}
	if s.tracker.ConsecutiveLosses() >= s.cfg.MaxConsecutiveLosses {
		return nil
	}

	// Spread ceiling gates any entry.
	if bar.Close <= 0 || (bar.High-bar.Low)/bar.Close > s.cfg.MaxSpreadPct {
		return nil
	}

	direction, confidence, ok := s.vote(bar, snap)
	if !ok {
		return nil
	}

	entry := bar.Close
	var stopLoss, takeProfit float64
	if direction == models.DirectionBuy {
		stopLoss = entry * (1 - s.cfg.StopLossPct)
		takeProfit = entry * (1 + s.cfg.TakeProfitPct)
	} else {
		stopLoss = entry * (1 + s.cfg.StopLossPct)
		takeProfit = entry * (1 - s.cfg.TakeProfitPct)
	}

	return &models.Signal{
		StrategyID: s.id,
		Symbol:     s.symbol,
		Direction:  direction,
		EntryPrice: entry,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Confidence: confidence,
		Timestamp:  bar.Timestamp,
		Metadata:   map[string]string{"strategy_kind": string(KindScalping)},
	}
}

// vote tallies the directional conditions. Neutral conditions do not
// count against agreement; at least two directional votes are required.
func (s *Scalping) vote(bar models.Bar, snap *indicators.Snapshot) (models.Direction, float64, bool) {
	var buy, sell int

	if snap.HasTrend {
		switch {
		case snap.FastEMA > snap.SlowEMA:
			buy++
		case snap.FastEMA < snap.SlowEMA:
			sell++
		}
	}

	if snap.HasRSI {
		// Momentum reading; the overbought/oversold extremes are treated
		// as exhausted and carry no entry vote.
		switch {
		case snap.RSI > 50 && snap.RSI < s.cfg.RSIOverbought:
			buy++
		case snap.RSI < 50 && snap.RSI > s.cfg.RSIOversold:
			sell++
		}
	}

	if snap.HasMACD {
		switch {
		case snap.MACDHist > 0:
			buy++
		case snap.MACDHist < 0:
			sell++
		}
	}

	if snap.HasBollinger {
		// Mean reversion: only a close at or beyond a band votes.
		switch {
		case bar.Close <= snap.BollingerLower:
			buy++
		case bar.Close >= snap.BollingerUpper:
			sell++
		}
	}

	if snap.HasVolume && snap.AvgVolume > 0 && bar.Volume >= s.cfg.VolumeSurgeRatio*snap.AvgVolume {
		// A surge confirms the bar's own direction.
		switch {
		case bar.Close > bar.Open:
			buy++
		case bar.Close < bar.Open:
			sell++
		}
	}

	total := buy + sell
	if total < 2 {
		return "", 0, false
	}

	agreement := float64(buy) / float64(total)
	if agreement >= s.cfg.MinAgreement {
		return models.DirectionBuy, math.Min(agreement, 1), true
	}
	if 1-agreement >= s.cfg.MinAgreement {
		return models.DirectionSell, math.Min(1-agreement, 1), true
	}
	return "", 0, false
}

// checkMomentumExit closes positions when RSI crosses back through the
// opposite threshold.
func (s *Scalping) checkMomentumExit(bar models.Bar, snap *indicators.Snapshot) {
	if !snap.HasRSI {
		return
	}
	for _, pos := range s.OpenPositions() {
		if pos.Direction == models.DirectionBuy {
			if snap.PrevRSI < s.cfg.RSIOverbought && snap.RSI >= s.cfg.RSIOverbought {
				s.closePosition(pos, bar.Close, bar.Timestamp, models.CloseReasonSignal)
			}
		} else {
			if snap.PrevRSI > s.cfg.RSIOversold && snap.RSI <= s.cfg.RSIOversold {
				s.closePosition(pos, bar.Close, bar.Timestamp, models.CloseReasonSignal)
			}
		}
	}
}

// OnFill records the accepted, filled entry as a new position.
func (s *Scalping) OnFill(sig *models.Signal, fillPrice float64) *models.Position {
	return s.openPosition(sig.Direction, sig.LotSize, fillPrice, sig.StopLoss, sig.TakeProfit, sig.Timestamp, false)
}
