// Package risk validates signals against account-level limits and owns
// position sizing.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"algotrader/internal/models"
)

// Check is the outcome of one validation rule. Validate always runs the
// full rule set so a rejection log carries every failed rule, not just
// the first.
type Check struct {
	Name   string
	Passed bool
	Reason string
}

// ValidatedSignal is a signal that cleared every check, with the lot
// size and risk amount the manager assigned.
type ValidatedSignal struct {
	Signal     *models.Signal
	LotSize    float64
	RiskAmount float64
}

// Manager enforces the per-bot risk limits. It is not safe for
// concurrent use; each bot owns one Manager.
type Manager struct {
	params models.RiskParams
	state  *models.RiskState
	log    zerolog.Logger
}

// NewManager creates a risk manager seeded with the starting balance.
func NewManager(params models.RiskParams, log zerolog.Logger) *Manager {
	applyRiskDefaults(&params)
	return &Manager{
		params: params,
		state:  models.NewRiskState(params.AccountBalance),
		log:    log.With().Str("component", "risk").Logger(),
	}
}

func applyRiskDefaults(p *models.RiskParams) {
	if p.AccountBalance <= 0 {
		p.AccountBalance = 10000
	}
	if p.MaxPositions <= 0 {
		p.MaxPositions = 5
	}
	if p.MaxRiskPerTrade <= 0 {
		p.MaxRiskPerTrade = 0.02
	}
	if p.MaxDailyRisk <= 0 {
		p.MaxDailyRisk = 0.06
	}
	if p.MaxDrawdown <= 0 {
		p.MaxDrawdown = 0.20
	}
	if p.MaxDailyLoss <= 0 {
		p.MaxDailyLoss = 0.05
	}
	if p.MinRiskReward <= 0 {
		p.MinRiskReward = 1.5
	}
	if p.CorrelationLimit <= 0 {
		p.CorrelationLimit = 0.7
	}
	if p.MaxConsecutiveLoss <= 0 {
		p.MaxConsecutiveLoss = 5
	}
	if p.ATRStopMultiplier <= 0 {
		p.ATRStopMultiplier = 2.0
	}
	if p.ATRTakeMultiplier <= 0 {
		p.ATRTakeMultiplier = 3.0
	}
	// MaxVolatilityPct, MaxLeverage, MaxPositionPct, MaxPortfolioHeat
	// and TrailingStopPct stay disabled at zero.
}

// State exposes the risk accounting for the engine and emergency checks.
func (m *Manager) State() *models.RiskState {
	return m.state
}

// Params returns the effective limits after defaulting.
func (m *Manager) Params() models.RiskParams {
	return m.params
}

// Validate runs every rule against the signal and, when all pass,
// returns the sized signal. On rejection the ValidatedSignal is nil and
// the caller reports the failed checks.
func (m *Manager) Validate(sig *models.Signal, open []*models.Position, atr float64) (*ValidatedSignal, []Check) {
	m.state.RollDay(sig.Timestamp)

	lot, riskAmount := m.size(sig, atr)

	checks := []Check{
		m.checkPositionCount(open),
		m.checkDailyRisk(riskAmount),
		m.checkDrawdown(),
		m.checkRiskReward(sig),
		m.checkCorrelation(sig, open),
		m.checkVolatility(sig, atr),
		m.checkLeverage(sig, lot),
		m.checkPortfolioHeat(riskAmount, open),
	}

	for _, c := range checks {
		if !c.Passed {
			return nil, checks
		}
	}
	if lot <= 0 {
		checks = append(checks, Check{
			Name:   "position_size",
			Reason: "computed lot size is zero",
		})
		return nil, checks
	}

	return &ValidatedSignal{Signal: sig, LotSize: lot, RiskAmount: riskAmount}, checks
}

// size computes the fixed-fractional lot: the balance fraction risked
// per trade divided by the stop distance, clamped by the notional and
// leverage caps when enabled.
func (m *Manager) size(sig *models.Signal, atr float64) (lot, riskAmount float64) {
	stop := sig.StopLoss
	if stop == 0 && atr > 0 {
		stop, _ = m.ATRStops(sig.Direction, sig.EntryPrice, atr)
	}

	riskAmount = m.state.Balance * m.params.MaxRiskPerTrade

	dist := math.Abs(sig.EntryPrice - stop)
	if stop == 0 || dist == 0 {
		// No stop to size against: fall back to the notional cap.
		if m.params.MaxPositionPct > 0 && sig.EntryPrice > 0 {
			lot = m.state.Balance * m.params.MaxPositionPct / sig.EntryPrice
		}
		return lot, riskAmount
	}

	lot = riskAmount / dist
	if m.params.MaxPositionPct > 0 && sig.EntryPrice > 0 {
		if maxLot := m.state.Balance * m.params.MaxPositionPct / sig.EntryPrice; lot > maxLot {
			lot = maxLot
		}
	}
	if m.params.MaxLeverage > 0 && sig.EntryPrice > 0 {
		if maxLot := m.state.Balance * m.params.MaxLeverage / sig.EntryPrice; lot > maxLot {
			lot = maxLot
		}
	}
	return lot, lot * dist
}

func (m *Manager) checkPositionCount(open []*models.Position) Check {
	c := Check{Name: "position_count", Passed: len(open) < m.params.MaxPositions}
	if !c.Passed {
		c.Reason = fmt.Sprintf("open positions %d at limit %d", len(open), m.params.MaxPositions)
	}
	return c
}

func (m *Manager) checkDailyRisk(riskAmount float64) Check {
	budget := m.state.Balance * m.params.MaxDailyRisk
	c := Check{Name: "daily_risk", Passed: m.state.DailyRiskUsed+riskAmount <= budget}
	if !c.Passed {
		c.Reason = fmt.Sprintf("daily risk %.2f + %.2f exceeds budget %.2f",
			m.state.DailyRiskUsed, riskAmount, budget)
	}
	if c.Passed && m.params.MaxDailyLoss > 0 {
		limit := m.state.Balance * m.params.MaxDailyLoss
		if m.state.DailyLoss >= limit {
			c.Passed = false
			c.Reason = fmt.Sprintf("daily loss %.2f at limit %.2f", m.state.DailyLoss, limit)
		}
	}
	return c
}

func (m *Manager) checkDrawdown() Check {
	c := Check{Name: "drawdown", Passed: m.state.CurrentDrawdown < m.params.MaxDrawdown}
	if !c.Passed {
		c.Reason = fmt.Sprintf("drawdown %.2f%% at limit %.2f%%",
			m.state.CurrentDrawdown*100, m.params.MaxDrawdown*100)
	}
	return c
}

func (m *Manager) checkRiskReward(sig *models.Signal) Check {
	c := Check{Name: "risk_reward", Passed: true}
	if sig.StopLoss == 0 || sig.TakeProfit == 0 {
		return c
	}
	risk := math.Abs(sig.EntryPrice - sig.StopLoss)
	reward := math.Abs(sig.TakeProfit - sig.EntryPrice)
	if risk == 0 {
		return c
	}
	ratio := reward / risk
	if ratio < m.params.MinRiskReward {
		c.Passed = false
		c.Reason = fmt.Sprintf("risk/reward %.2f below minimum %.2f", ratio, m.params.MinRiskReward)
	}
	return c
}

// checkCorrelation rejects a signal while a position is already open in
// its symbol, or in any symbol whose configured correlation with it
// reaches the limit. Direction does not matter: a hedge in the same
// symbol is still stacked exposure.
func (m *Manager) checkCorrelation(sig *models.Signal, open []*models.Position) Check {
	c := Check{Name: "correlation", Passed: true}
	for _, pos := range open {
		if pos.Symbol == sig.Symbol {
			c.Passed = false
			c.Reason = fmt.Sprintf("position already open in %s", sig.Symbol)
			return c
		}
		corr := m.correlation(sig.Symbol, pos.Symbol)
		if math.Abs(corr) >= m.params.CorrelationLimit {
			c.Passed = false
			c.Reason = fmt.Sprintf("correlated exposure: %s vs open %s (%.2f >= %.2f)",
				sig.Symbol, pos.Symbol, corr, m.params.CorrelationLimit)
			return c
		}
	}
	return c
}

func (m *Manager) correlation(a, b string) float64 {
	if v, ok := m.params.Correlations[a+"/"+b]; ok {
		return v
	}
	if v, ok := m.params.Correlations[b+"/"+a]; ok {
		return v
	}
	return 0
}

func (m *Manager) checkVolatility(sig *models.Signal, atr float64) Check {
	c := Check{Name: "volatility", Passed: true}
	if m.params.MaxVolatilityPct <= 0 || atr <= 0 || sig.EntryPrice <= 0 {
		return c
	}
	ratio := atr / sig.EntryPrice
	if ratio > m.params.MaxVolatilityPct {
		c.Passed = false
		c.Reason = fmt.Sprintf("volatility %.2f%% above ceiling %.2f%%",
			ratio*100, m.params.MaxVolatilityPct*100)
	}
	return c
}

func (m *Manager) checkLeverage(sig *models.Signal, lot float64) Check {
	c := Check{Name: "leverage", Passed: true}
	if m.params.MaxLeverage <= 0 || m.state.Balance <= 0 {
		return c
	}
	leverage := lot * sig.EntryPrice / m.state.Balance
	if leverage > m.params.MaxLeverage {
		c.Passed = false
		c.Reason = fmt.Sprintf("leverage %.2fx above limit %.2fx", leverage, m.params.MaxLeverage)
	}
	return c
}

// openHeat sums the stop-distance exposure across the open positions.
func (m *Manager) openHeat(open []*models.Position) float64 {
	var heat float64
	for _, pos := range open {
		if pos.StopLoss > 0 {
			heat += math.Abs(pos.EntryPrice-pos.StopLoss) * pos.LotSize
		}
	}
	return heat
}

// checkPortfolioHeat bounds the total balance fraction at risk across
// open positions plus the candidate.
func (m *Manager) checkPortfolioHeat(riskAmount float64, open []*models.Position) Check {
	c := Check{Name: "portfolio_heat", Passed: true}
	if m.params.MaxPortfolioHeat <= 0 || m.state.Balance <= 0 {
		return c
	}
	frac := (riskAmount + m.openHeat(open)) / m.state.Balance
	if frac > m.params.MaxPortfolioHeat {
		c.Passed = false
		c.Reason = fmt.Sprintf("portfolio heat %.2f%% above limit %.2f%%",
			frac*100, m.params.MaxPortfolioHeat*100)
	}
	return c
}

// Commit books an accepted signal's risk against the daily budget.
func (m *Manager) Commit(vs *ValidatedSignal) {
	m.state.DailyRiskUsed += vs.RiskAmount
}

// RecordClose folds a closed trade into the balance and daily counters.
func (m *Manager) RecordClose(profit float64) {
	m.state.Balance += profit
	if profit < 0 {
		m.state.DailyLoss += -profit
		m.state.ConsecutiveLosses++
	} else {
		m.state.ConsecutiveLosses = 0
	}
	m.state.RecordEquity(m.state.Balance)
}

// KellyFraction returns the half-Kelly balance fraction derived from
// the realized trade statistics, clamped to [0, MaxRiskPerTrade*5].
func (m *Manager) KellyFraction(metrics models.PerformanceMetrics) float64 {
	if metrics.TotalTrades == 0 || metrics.LosingTrades == 0 || metrics.WinningTrades == 0 {
		return m.params.MaxRiskPerTrade
	}
	avgWin := metrics.TotalProfit / float64(metrics.WinningTrades)
	avgLoss := metrics.TotalLoss / float64(metrics.LosingTrades)
	if avgLoss == 0 || avgWin == 0 {
		return m.params.MaxRiskPerTrade
	}
	payoff := avgWin / avgLoss
	w := metrics.WinRate
	kelly := w - (1-w)/payoff
	if kelly <= 0 {
		return 0
	}
	half := kelly / 2
	if limit := m.params.MaxRiskPerTrade * 5; half > limit {
		return limit
	}
	return half
}

// ATRStops derives stop-loss and take-profit levels from volatility.
func (m *Manager) ATRStops(direction models.Direction, entry, atr float64) (stopLoss, takeProfit float64) {
	if atr <= 0 {
		return 0, 0
	}
	if direction == models.DirectionBuy {
		return entry - atr*m.params.ATRStopMultiplier, entry + atr*m.params.ATRTakeMultiplier
	}
	return entry + atr*m.params.ATRStopMultiplier, entry - atr*m.params.ATRTakeMultiplier
}

// TrailStop ratchets the position's stop toward the price. The stop
// only ever tightens; an adverse move never loosens it.
func (m *Manager) TrailStop(pos *models.Position, price float64) {
	if m.params.TrailingStopPct <= 0 || pos.Status != models.PositionOpen {
		return
	}
	if pos.Direction == models.DirectionBuy {
		candidate := price * (1 - m.params.TrailingStopPct)
		if candidate > pos.StopLoss {
			pos.StopLoss = candidate
		}
	} else {
		candidate := price * (1 + m.params.TrailingStopPct)
		if pos.StopLoss == 0 || candidate < pos.StopLoss {
			pos.StopLoss = candidate
		}
	}
}

// EmergencyStop reports whether trading must halt, with one reason per
// breached limit: drawdown, daily loss, the portfolio heat of the open
// positions, and the losing streak.
func (m *Manager) EmergencyStop(open []*models.Position) (bool, []string) {
	var reasons []string

	if m.state.CurrentDrawdown >= m.params.MaxDrawdown {
		reasons = append(reasons, fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%",
			m.state.CurrentDrawdown*100, m.params.MaxDrawdown*100))
	}
	if limit := m.state.Balance * m.params.MaxDailyLoss; m.params.MaxDailyLoss > 0 && m.state.DailyLoss >= limit {
		reasons = append(reasons, fmt.Sprintf("daily loss %.2f breached limit %.2f",
			m.state.DailyLoss, limit))
	}
	if m.params.MaxPortfolioHeat > 0 && m.state.Balance > 0 {
		if frac := m.openHeat(open) / m.state.Balance; frac > m.params.MaxPortfolioHeat {
			reasons = append(reasons, fmt.Sprintf("portfolio heat %.2f%% breached limit %.2f%%",
				frac*100, m.params.MaxPortfolioHeat*100))
		}
	}
	if m.state.ConsecutiveLosses >= m.params.MaxConsecutiveLoss {
		reasons = append(reasons, fmt.Sprintf("consecutive losses %d breached limit %d",
			m.state.ConsecutiveLosses, m.params.MaxConsecutiveLoss))
	}

	if len(reasons) > 0 {
		m.log.Error().Str("reasons", strings.Join(reasons, "; ")).Msg("Emergency stop triggered")
		return true, reasons
	}
	return false, nil
}
