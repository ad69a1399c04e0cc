// Package backtest replays historical bars through a strategy and its
// risk manager, single-threaded and deterministic.
package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"algotrader/internal/indicators"
	"algotrader/internal/models"
	"algotrader/internal/risk"
	"algotrader/internal/strategy"
)

// Config holds a backtest run's parameters.
type Config struct {
	Bot            models.BotConfig
	InitialBalance float64
	// SlippagePct shifts every fill against the trade's direction.
	SlippagePct float64
	// CommissionPct is charged on the notional of each side.
	CommissionPct float64
	HistorySize   int
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
	Drawdown  float64
}

// Result is the full report of one run.
type Result struct {
	InitialBalance float64
	FinalBalance   float64
	TotalReturn    float64
	TotalReturnPct float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	ProfitFactor  float64

	AvgWin      float64
	AvgLoss     float64
	LargestWin  float64
	LargestLoss float64

	MaxDrawdown    float64
	MaxDrawdownPct float64
	SharpeRatio    float64
	RecoveryFactor float64
	CalmarRatio    float64

	TotalCommission float64
	EquityCurve     []EquityPoint
	Trades          []models.Trade
}

// Runner replays bars through one bot configuration.
type Runner struct {
	cfg   Config
	strat strategy.Strategy
	risk  *risk.Manager
	log   zerolog.Logger
}

// NewRunner creates a backtest runner.
func NewRunner(cfg Config, log zerolog.Logger) (*Runner, error) {
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 10000
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 256
	}
	cfg.Bot.Risk.AccountBalance = cfg.InitialBalance

	strat, err := strategy.New(cfg.Bot, log)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:   cfg,
		strat: strat,
		risk:  risk.NewManager(cfg.Bot.Risk, log),
		log:   log.With().Str("component", "backtest").Logger(),
	}, nil
}

// Run replays the bars in order and returns the report. Bars must be
// sorted by timestamp; out-of-order bars are skipped the way the live
// feed would reject them.
func (r *Runner) Run(bars []models.Bar) *Result {
	res := &Result{InitialBalance: r.cfg.InitialBalance}

	history := indicators.NewHistory(r.cfg.HistorySize)
	builder := indicators.NewBuilder(strategy.SnapshotConfig(r.cfg.Bot))
	r.strat.Start()

	peak := r.cfg.InitialBalance
	prevEquity := r.cfg.InitialBalance
	var returns []float64
	var lastBar models.Bar

	for _, bar := range bars {
		if !history.Add(bar) {
			continue
		}
		lastBar = bar

		snap := builder.Compute(history.Bars())
		if sig := r.strat.Analyze(bar, snap); sig != nil {
			var atr float64
			if snap != nil && snap.HasATR {
				atr = snap.ATR
			}
			r.processSignal(res, sig, atr)
		}
		for _, pos := range r.strat.TakeOpened() {
			r.applyFill(res, pos)
		}
		for _, pos := range r.strat.TakeClosed() {
			r.settle(res, pos)
		}

		equity := r.equity(bar)
		r.risk.State().RecordEquity(equity)
		if equity > peak {
			peak = equity
		}
		dd := peak - equity
		if dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
			if peak > 0 {
				res.MaxDrawdownPct = dd / peak
			}
		}
		res.EquityCurve = append(res.EquityCurve, EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    equity,
			Drawdown:  dd,
		})
		if prevEquity > 0 {
			returns = append(returns, equity/prevEquity-1)
		}
		prevEquity = equity
	}

	// Flatten whatever is still open at the last bar's close.
	if !lastBar.Timestamp.IsZero() {
		r.strat.CloseAll(lastBar.Close, lastBar.Timestamp, models.CloseReasonEndOfRun)
		for _, pos := range r.strat.TakeClosed() {
			r.settle(res, pos)
		}
	}

	r.finalize(res, returns)
	return res
}

// processSignal gates the signal through the risk battery and hands the
// fill to the strategy. Entry frictions are booked in applyFill so that
// ladder fills the strategy opens on its own pay them too.
func (r *Runner) processSignal(res *Result, sig *models.Signal, atr float64) {
	vs, _ := r.risk.Validate(sig, r.strat.OpenPositions(), atr)
	if vs == nil {
		return
	}
	r.risk.Commit(vs)

	sig.LotSize = vs.LotSize
	if pos := r.strat.OnFill(sig, sig.EntryPrice); pos != nil {
		r.applyFill(res, pos)
	}
}

// applyFill books entry frictions on one opened position: slippage
// shifts the entry against the direction and the opening commission
// comes off the balance.
func (r *Runner) applyFill(res *Result, pos *models.Position) {
	if pos.Direction == models.DirectionBuy {
		pos.EntryPrice *= 1 + r.cfg.SlippagePct
	} else {
		pos.EntryPrice *= 1 - r.cfg.SlippagePct
	}
	commission := pos.EntryPrice * pos.LotSize * r.cfg.CommissionPct
	res.TotalCommission += commission
	r.risk.State().Balance -= commission
}

// settle books one closed position: the closing commission comes out of
// the realized profit before it hits the balance.
func (r *Runner) settle(res *Result, pos *models.Position) {
	commission := pos.ClosePrice * pos.LotSize * r.cfg.CommissionPct
	res.TotalCommission += commission
	net := pos.Profit - commission
	r.risk.RecordClose(net)

	res.Trades = append(res.Trades, models.Trade{
		ID:         pos.ID,
		BotID:      r.cfg.Bot.ID,
		StrategyID: pos.StrategyID,
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		LotSize:    pos.LotSize,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  pos.ClosePrice,
		OpenTime:   pos.OpenTime,
		CloseTime:  pos.CloseTime,
		Profit:     net,
		Reason:     pos.CloseReason,
	})
}

func (r *Runner) equity(bar models.Bar) float64 {
	eq := r.risk.State().Balance
	for _, pos := range r.strat.OpenPositions() {
		pos.UpdateUnrealized(bar.Close)
		eq += pos.Unrealized
	}
	return eq
}

func (r *Runner) finalize(res *Result, returns []float64) {
	res.FinalBalance = r.risk.State().Balance
	res.TotalReturn = res.FinalBalance - res.InitialBalance
	if res.InitialBalance > 0 {
		res.TotalReturnPct = res.TotalReturn / res.InitialBalance
	}

	var grossProfit, grossLoss float64
	for _, t := range res.Trades {
		res.TotalTrades++
		if t.Profit > 0 {
			res.WinningTrades++
			grossProfit += t.Profit
			if t.Profit > res.LargestWin {
				res.LargestWin = t.Profit
			}
		} else {
			res.LosingTrades++
			grossLoss += -t.Profit
			if -t.Profit > res.LargestLoss {
				res.LargestLoss = -t.Profit
			}
		}
	}
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades)
	}
	if res.WinningTrades > 0 {
		res.AvgWin = grossProfit / float64(res.WinningTrades)
	}
	if res.LosingTrades > 0 {
		res.AvgLoss = grossLoss / float64(res.LosingTrades)
	}
	switch {
	case grossLoss > 0:
		res.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		res.ProfitFactor = math.Inf(1)
	}

	res.SharpeRatio = sharpe(returns)
	if res.MaxDrawdown > 0 {
		res.RecoveryFactor = res.TotalReturn / res.MaxDrawdown
	}
	if res.MaxDrawdownPct > 0 {
		res.CalmarRatio = res.TotalReturnPct / res.MaxDrawdownPct
	}
}

// Comparison is one row of a multi-bot comparison.
type Comparison struct {
	BotID          string
	TotalReturn    float64
	TotalReturnPct float64
	WinRate        float64
	MaxDrawdownPct float64
	SharpeRatio    float64
	TotalTrades    int
	ProfitFactor   float64
}

// Compare summarizes several runs over the same bar series, sorted by
// Sharpe ratio descending with the bot id as tie-breaker.
func Compare(results map[string]*Result) []Comparison {
	rows := make([]Comparison, 0, len(results))
	for botID, res := range results {
		rows = append(rows, Comparison{
			BotID:          botID,
			TotalReturn:    res.TotalReturn,
			TotalReturnPct: res.TotalReturnPct,
			WinRate:        res.WinRate,
			MaxDrawdownPct: res.MaxDrawdownPct,
			SharpeRatio:    res.SharpeRatio,
			TotalTrades:    res.TotalTrades,
			ProfitFactor:   res.ProfitFactor,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SharpeRatio != rows[j].SharpeRatio {
			return rows[i].SharpeRatio > rows[j].SharpeRatio
		}
		return rows[i].BotID < rows[j].BotID
	})
	return rows
}

// sharpe is the mean over the standard deviation of per-bar equity
// returns, unannualized.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, v := range returns {
		sum += v
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, v := range returns {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(returns))
	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return mean / sd
}
