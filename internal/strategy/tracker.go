package strategy

import (
	"math"

	"algotrader/internal/models"
)

// Tracker maintains PerformanceMetrics incrementally, updated after every
// closed trade.
type Tracker struct {
	metrics models.PerformanceMetrics
	returns []float64

	realized   float64
	peak       float64
	maxDDValue float64
}

// NewTracker creates an empty performance tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record folds one closed trade's profit into the metrics.
func (t *Tracker) Record(profit float64) {
	m := &t.metrics
	m.TotalTrades++

	if profit > 0 {
		m.WinningTrades++
		m.TotalProfit += profit
		m.ConsecutiveWins++
		m.ConsecutiveLosses = 0
	} else {
		m.LosingTrades++
		m.TotalLoss += -profit
		m.ConsecutiveLosses++
		m.ConsecutiveWins = 0
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.TotalLoss > 0 {
		m.ProfitFactor = m.TotalProfit / m.TotalLoss
	} else if m.TotalProfit > 0 {
		m.ProfitFactor = math.Inf(1)
	} else {
		m.ProfitFactor = 0
	}

	t.realized += profit
	if t.realized > t.peak {
		t.peak = t.realized
	}
	if dd := t.peak - t.realized; dd > t.maxDDValue {
		t.maxDDValue = dd
	}
	m.MaxDrawdown = t.maxDDValue

	t.returns = append(t.returns, profit)
	m.SharpeRatio = sharpe(t.returns)
}

// Metrics returns a copy of the current metrics.
func (t *Tracker) Metrics() models.PerformanceMetrics {
	return t.metrics
}

// ConsecutiveLosses returns the current losing streak.
func (t *Tracker) ConsecutiveLosses() int {
	return t.metrics.ConsecutiveLosses
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return mean / sd
}
