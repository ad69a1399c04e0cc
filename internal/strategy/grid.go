package strategy

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"algotrader/internal/indicators"
	"algotrader/internal/models"
)

// Grid lays a ladder of price levels around the current price, sized
// from recent volatility, and trades the oscillation: pending buys on
// interior levels at or below the center, pending sells above. A filled
// level self-heals after its position closes, and the whole ladder is
// rebuilt when price escapes the bounds or volatility shifts.
type Grid struct {
	base
	cfg models.GridConfig

	initialized   bool
	center        float64
	lowerBound    float64
	upperBound    float64
	spacing       float64
	initATR       float64
	levels        []models.GridLevel
	pending       map[int]*models.GridOrder
	levelByPos    map[models.PositionID]int
	lastRebalance time.Time
}

// NewGrid creates a grid strategy with defaults applied.
func NewGrid(id, symbol string, cfg models.GridConfig, log zerolog.Logger) *Grid {
	applyGridDefaults(&cfg)
	return &Grid{
		base:       newBase(id, symbol, log),
		cfg:        cfg,
		pending:    make(map[int]*models.GridOrder),
		levelByPos: make(map[models.PositionID]int),
	}
}

func applyGridDefaults(cfg *models.GridConfig) {
	if cfg.Levels < 3 {
		cfg.Levels = 5
	}
	if cfg.Spacing == "" {
		cfg.Spacing = models.GridSpacingArithmetic
	}
	if cfg.OrderVolume <= 0 {
		cfg.OrderVolume = 1
	}
	if cfg.MaxGridOrders <= 0 {
		cfg.MaxGridOrders = cfg.Levels
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.ATRMultiplier <= 0 {
		cfg.ATRMultiplier = 3.0
	}
	if cfg.TakeProfitPct <= 0 {
		cfg.TakeProfitPct = 0.01
	}
	if cfg.RebalanceRatio <= 0 {
		cfg.RebalanceRatio = 1.5
	}
	if cfg.RebalanceCooldown <= 0 {
		cfg.RebalanceCooldown = 4 * time.Hour
	}
	if cfg.LookbackBars <= 0 {
		cfg.LookbackBars = 100
	}
}

func (g *Grid) Kind() Kind { return KindGrid }

func (g *Grid) WarmupBars() int {
	return g.cfg.ATRPeriod + 1
}

// Levels returns the current price ladder, lowest first.
func (g *Grid) Levels() []models.GridLevel {
	return g.levels
}

// PendingOrders returns the orders currently resting on levels.
func (g *Grid) PendingOrders() []*models.GridOrder {
	out := make([]*models.GridOrder, 0, len(g.pending))
	for _, o := range g.pending {
		out = append(out, o)
	}
	return out
}

// Bounds returns the grid's lower and upper price bounds.
func (g *Grid) Bounds() (lower, upper float64) {
	return g.lowerBound, g.upperBound
}

// Analyze advances the grid by one bar. All grid trading is internal:
// fills and closes surface through TakeOpened/TakeClosed and the method
// never emits an entry Signal.
func (g *Grid) Analyze(bar models.Bar, snap *indicators.Snapshot) *models.Signal {
	if !g.active || snap == nil {
		return nil
	}

	if !g.initialized {
		if snap.HasATR && snap.ATR > 0 {
			g.build(bar, snap)
		}
		return nil
	}

	g.checkStops(bar)
	g.healFilledLevels()
	g.processFills(bar)
	g.maybeRebalance(bar, snap)
	return nil
}

// build computes the bounds from volatility, optionally snaps them to
// nearby support/resistance, lays the levels and places the interior
// pending orders.
func (g *Grid) build(bar models.Bar, snap *indicators.Snapshot) {
	g.center = bar.Close
	g.initATR = snap.ATR

	half := snap.ATR * g.cfg.ATRMultiplier
	g.lowerBound = g.center - half
	g.upperBound = g.center + half

	if g.cfg.SupportResistance {
		if snap.HasSupport && snap.Support > g.lowerBound && snap.Support < g.center {
			g.lowerBound = snap.Support
		}
		if snap.HasResistance && snap.Resistance < g.upperBound && snap.Resistance > g.center {
			g.upperBound = snap.Resistance
		}
	}
	if g.lowerBound <= 0 {
		g.lowerBound = g.center * 0.5
	}

	g.levels = g.layLevels()
	g.spacing = (g.upperBound - g.lowerBound) / float64(g.cfg.Levels-1)

	g.pending = make(map[int]*models.GridOrder)
	for _, lv := range g.levels[1 : len(g.levels)-1] {
		g.placeOrder(lv)
	}

	g.initialized = true
	g.lastRebalance = bar.Timestamp

	g.log.Info().
		Float64("lower", g.lowerBound).
		Float64("upper", g.upperBound).
		Int("levels", len(g.levels)).
		Int("pending", len(g.pending)).
		Msg("Grid built")
}

// layLevels spaces cfg.Levels rungs across [lowerBound, upperBound],
// bounds included.
func (g *Grid) layLevels() []models.GridLevel {
	n := g.cfg.Levels
	levels := make([]models.GridLevel, n)

	switch g.cfg.Spacing {
	case models.GridSpacingGeometric:
		ratio := math.Pow(g.upperBound/g.lowerBound, 1/float64(n-1))
		price := g.lowerBound
		for i := 0; i < n; i++ {
			levels[i] = models.GridLevel{Index: i, Price: price}
			price *= ratio
		}
		levels[n-1].Price = g.upperBound
	default:
		step := (g.upperBound - g.lowerBound) / float64(n-1)
		for i := 0; i < n; i++ {
			levels[i] = models.GridLevel{Index: i, Price: g.lowerBound + step*float64(i)}
		}
	}
	return levels
}

// placeOrder rests one order on a level: a buy at or below the center,
// a sell above it. At most one pending order per level.
func (g *Grid) placeOrder(lv models.GridLevel) {
	if _, exists := g.pending[lv.Index]; exists {
		return
	}
	direction := models.DirectionBuy
	if lv.Price > g.center {
		direction = models.DirectionSell
	}
	g.pending[lv.Index] = &models.GridOrder{
		Level:     lv.Index,
		Price:     lv.Price,
		Direction: direction,
		LotSize:   g.cfg.OrderVolume,
		Status:    models.GridOrderPending,
	}
}

// healFilledLevels re-arms levels whose positions have closed.
func (g *Grid) healFilledLevels() {
	for posID, idx := range g.levelByPos {
		if _, stillOpen := g.open[posID]; stillOpen {
			continue
		}
		delete(g.levelByPos, posID)
		if idx >= 0 && idx < len(g.levels) {
			g.placeOrder(g.levels[idx])
		}
	}
}

// processFills fills any pending order whose level the bar's range
// crossed. The position opens at the level price, not the bar close.
// Levels are walked in index order so fills are deterministic under the
// MaxGridOrders cap.
func (g *Grid) processFills(bar models.Bar) {
	for idx := range g.levels {
		order, ok := g.pending[idx]
		if !ok {
			continue
		}
		crossed := (order.Direction == models.DirectionBuy && bar.Low <= order.Price) ||
			(order.Direction == models.DirectionSell && bar.High >= order.Price)
		if !crossed {
			continue
		}
		if len(g.open) >= g.cfg.MaxGridOrders {
			return
		}

		var stopLoss, takeProfit float64
		if order.Direction == models.DirectionBuy {
			takeProfit = order.Price * (1 + g.cfg.TakeProfitPct)
			if g.cfg.StopLossPct > 0 {
				stopLoss = order.Price * (1 - g.cfg.StopLossPct)
			}
		} else {
			takeProfit = order.Price * (1 - g.cfg.TakeProfitPct)
			if g.cfg.StopLossPct > 0 {
				stopLoss = order.Price * (1 + g.cfg.StopLossPct)
			}
		}

		pos := g.openPosition(order.Direction, order.LotSize, order.Price, stopLoss, takeProfit, bar.Timestamp, true)
		order.Status = models.GridOrderFilled
		order.PositionID = pos.ID
		delete(g.pending, idx)
		g.levelByPos[pos.ID] = idx

		if g.cfg.Hedging {
			g.placeHedge(order)
		}
	}
}

// placeHedge rests the opposite order one level away from a fill.
func (g *Grid) placeHedge(filled *models.GridOrder) {
	idx := filled.Level
	if filled.Direction == models.DirectionBuy {
		idx++
	} else {
		idx--
	}
	if idx <= 0 || idx >= len(g.levels)-1 {
		return
	}
	if _, exists := g.pending[idx]; exists {
		return
	}
	g.pending[idx] = &models.GridOrder{
		Level:     idx,
		Price:     g.levels[idx].Price,
		Direction: filled.Direction.Opposite(),
		LotSize:   filled.LotSize,
		Status:    models.GridOrderPending,
	}
}

// maybeRebalance rebuilds the ladder when price escapes the bounds or
// volatility drifts past the rebalance ratio, at most once per cooldown.
func (g *Grid) maybeRebalance(bar models.Bar, snap *indicators.Snapshot) {
	if bar.Timestamp.Sub(g.lastRebalance) < g.cfg.RebalanceCooldown {
		return
	}

	breach := bar.Close < g.lowerBound || bar.Close > g.upperBound

	volShift := false
	if snap.HasATR && g.initATR > 0 {
		ratio := snap.ATR / g.initATR
		volShift = ratio >= g.cfg.RebalanceRatio || ratio <= 1/g.cfg.RebalanceRatio
	}

	if !breach && !volShift {
		return
	}
	if !snap.HasATR || snap.ATR <= 0 {
		return
	}

	g.log.Info().
		Bool("bound_breach", breach).
		Bool("volatility_shift", volShift).
		Float64("close", bar.Close).
		Msg("Rebalancing grid")

	// Open positions are kept; only the resting ladder moves.
	g.levelByPos = make(map[models.PositionID]int)
	g.build(bar, snap)
}

// OnFill is a no-op: the grid never emits entry signals, all fills are
// internal level fills.
func (g *Grid) OnFill(sig *models.Signal, fillPrice float64) *models.Position {
	return nil
}
