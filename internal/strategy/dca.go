package strategy

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"algotrader/internal/indicators"
	"algotrader/internal/models"
)

// DCA is a per-symbol state machine (idle -> dealOpen -> closed) that
// averages down with safety orders at geometrically spaced price steps
// and takes profit from the volume-weighted average entry.
type DCA struct {
	base
	cfg models.DCAConfig

	deal            *models.Deal
	dealPositions   []*models.Position
	basePrice       float64
	nextSafetyPrice float64
	lastClose       time.Time
	nextDealID      models.PositionID
}

// NewDCA creates a DCA strategy with defaults applied.
func NewDCA(id, symbol string, cfg models.DCAConfig, log zerolog.Logger) *DCA {
	applyDCADefaults(&cfg)
	return &DCA{
		base: newBase(id, symbol, log),
		cfg:  cfg,
	}
}

func applyDCADefaults(cfg *models.DCAConfig) {
	if cfg.BaseOrderVolume <= 0 {
		cfg.BaseOrderVolume = 1
	}
	if cfg.SafetyOrderVolume <= 0 {
		cfg.SafetyOrderVolume = cfg.BaseOrderVolume
	}
	if cfg.MaxSafetyOrders <= 0 {
		cfg.MaxSafetyOrders = 5
	}
	if cfg.PriceDeviation <= 0 {
		cfg.PriceDeviation = 0.01
	}
	if cfg.StepScale <= 0 {
		cfg.StepScale = 1.0
	}
	if cfg.VolumeScale <= 0 {
		cfg.VolumeScale = 1.0
	}
	if cfg.TakeProfitPct <= 0 {
		cfg.TakeProfitPct = 0.015
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.RSIOversold <= 0 {
		cfg.RSIOversold = 30
	}
	if cfg.BollingerPeriod <= 0 {
		cfg.BollingerPeriod = 20
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
}

func (d *DCA) Kind() Kind { return KindDCA }

func (d *DCA) WarmupBars() int {
	warmup := d.cfg.RSIPeriod + 2
	if d.cfg.BollingerPeriod > warmup {
		warmup = d.cfg.BollingerPeriod
	}
	return warmup
}

// Deal returns the active deal, or nil when idle.
func (d *DCA) Deal() *models.Deal {
	return d.deal
}

// NextSafetyOrderPrice returns the trigger price for the next safety
// order, or 0 when no deal is open.
func (d *DCA) NextSafetyOrderPrice() float64 {
	return d.nextSafetyPrice
}

// Analyze advances the deal state machine by one bar.
func (d *DCA) Analyze(bar models.Bar, snap *indicators.Snapshot) *models.Signal {
	if !d.active || snap == nil {
		return nil
	}

	if d.deal != nil {
		d.manageDeal(bar)
		return nil
	}

	// Cooldown blocks re-entry after a close.
	if !d.lastClose.IsZero() && bar.Timestamp.Sub(d.lastClose) < d.cfg.Cooldown {
		return nil
	}

	if !d.startCondition(bar, snap) {
		return nil
	}

	entry := bar.Close
	sig := &models.Signal{
		StrategyID: d.id,
		Symbol:     d.symbol,
		Direction:  models.DirectionBuy,
		EntryPrice: entry,
		LotSize:    d.cfg.BaseOrderVolume,
		TakeProfit: entry * (1 + d.cfg.TakeProfitPct),
		Confidence: 0.6,
		Timestamp:  bar.Timestamp,
		Metadata:   map[string]string{"strategy_kind": string(KindDCA), "order": "base"},
	}
	if d.cfg.StopLossPct > 0 {
		sig.StopLoss = entry * (1 - d.cfg.StopLossPct)
	}
	return sig
}

// startCondition fires on oversold RSI below the lower Bollinger Band,
// a bullish EMA cross, or a support bounce.
func (d *DCA) startCondition(bar models.Bar, snap *indicators.Snapshot) bool {
	if snap.HasRSI && snap.HasBollinger &&
		snap.RSI <= d.cfg.RSIOversold && bar.Close < snap.BollingerLower {
		return true
	}
	if snap.HasTrend &&
		snap.PrevFastEMA <= snap.PrevSlowEMA && snap.FastEMA > snap.SlowEMA {
		return true
	}
	if snap.HasSupport && snap.Support > 0 &&
		bar.Low <= snap.Support*1.001 && bar.Close > snap.Support {
		return true
	}
	return false
}

// OnFill opens the deal from the accepted base order.
func (d *DCA) OnFill(sig *models.Signal, fillPrice float64) *models.Position {
	pos := d.openPosition(sig.Direction, sig.LotSize, fillPrice, 0, 0, sig.Timestamp, false)

	d.nextDealID++
	d.basePrice = fillPrice
	d.deal = &models.Deal{
		ID:        d.nextDealID,
		Symbol:    d.symbol,
		Direction: sig.Direction,
		BaseOrder: models.SafetyOrder{
			Price:  fillPrice,
			Volume: sig.LotSize,
			Time:   sig.Timestamp,
		},
		AveragePrice:    fillPrice,
		TotalVolume:     sig.LotSize,
		TotalInvested:   fillPrice * sig.LotSize,
		TakeProfitPrice: fillPrice * (1 + d.cfg.TakeProfitPct),
		Status:          models.DealOpen,
		OpenTime:        sig.Timestamp,
	}
	if d.cfg.StopLossPct > 0 {
		d.deal.StopLossPrice = fillPrice * (1 - d.cfg.StopLossPct)
	}
	d.dealPositions = []*models.Position{pos}
	d.nextSafetyPrice = d.safetyPrice(1)
	return pos
}

// safetyPrice returns the trigger for safety order k (1-based):
// basePrice * (1 - sum of deviation*stepScale^(i-1) for i=1..k).
func (d *DCA) safetyPrice(k int) float64 {
	var drop float64
	for i := 1; i <= k; i++ {
		drop += d.cfg.PriceDeviation * math.Pow(d.cfg.StepScale, float64(i-1))
	}
	return d.basePrice * (1 - drop)
}

func (d *DCA) manageDeal(bar models.Bar) {
	deal := d.deal

	// Stop-loss takes precedence over take-profit on a gap-through bar.
	if deal.StopLossPrice > 0 && bar.Low <= deal.StopLossPrice {
		d.closeDeal(deal.StopLossPrice, bar.Timestamp, models.CloseReasonStopLoss)
		return
	}
	if bar.High >= deal.TakeProfitPrice {
		d.closeDeal(deal.TakeProfitPrice, bar.Timestamp, models.CloseReasonTakeProfit)
		return
	}

	// Safety-order ladder.
	if deal.SafetyOrderCount < d.cfg.MaxSafetyOrders && bar.Low <= d.nextSafetyPrice {
		d.addSafetyOrder(d.nextSafetyPrice, bar.Timestamp)
		return
	}

	// Ladder exhausted and price keeps falling: close the deal rather
	// than ride an unbounded loss.
	if deal.SafetyOrderCount >= d.cfg.MaxSafetyOrders && bar.Low <= d.safetyPrice(deal.SafetyOrderCount+1) {
		d.closeDeal(bar.Close, bar.Timestamp, models.CloseReasonExhausted)
	}
}

// addSafetyOrder fills one averaging level and recomputes the
// volume-weighted average and take-profit. The invariant
// AveragePrice == TotalInvested/TotalVolume holds after every addition.
func (d *DCA) addSafetyOrder(price float64, ts time.Time) {
	deal := d.deal
	k := deal.SafetyOrderCount + 1
	volume := d.cfg.SafetyOrderVolume * math.Pow(d.cfg.VolumeScale, float64(k-1))

	pos := d.openPosition(deal.Direction, volume, price, 0, 0, ts, true)
	d.dealPositions = append(d.dealPositions, pos)

	deal.SafetyOrders = append(deal.SafetyOrders, models.SafetyOrder{
		Price:  price,
		Volume: volume,
		Time:   ts,
	})
	deal.SafetyOrderCount = k
	deal.TotalVolume += volume
	deal.TotalInvested += price * volume
	deal.AveragePrice = deal.TotalInvested / deal.TotalVolume
	deal.TakeProfitPrice = deal.AveragePrice * (1 + d.cfg.TakeProfitPct)

	d.nextSafetyPrice = d.safetyPrice(k + 1)

	d.log.Debug().
		Int("safety_order", k).
		Float64("price", price).
		Float64("average", deal.AveragePrice).
		Float64("take_profit", deal.TakeProfitPrice).
		Msg("Safety order added")
}

// CloseAll finalizes the active deal along with its positions.
func (d *DCA) CloseAll(price float64, ts time.Time, reason models.CloseReason) {
	if d.deal != nil {
		d.closeDeal(price, ts, reason)
		return
	}
	d.base.CloseAll(price, ts, reason)
}

func (d *DCA) closeDeal(price float64, ts time.Time, reason models.CloseReason) {
	deal := d.deal

	for _, pos := range d.dealPositions {
		if pos.Status == models.PositionOpen {
			d.closePosition(pos, price, ts, reason)
		}
	}

	deal.Status = models.DealClosed
	deal.ClosePrice = price
	deal.CloseTime = ts
	deal.CloseReason = reason
	deal.Profit = (price - deal.AveragePrice) * deal.TotalVolume

	d.log.Info().
		Float64("close_price", price).
		Float64("profit", deal.Profit).
		Str("reason", string(reason)).
		Msg("Deal closed")

	d.deal = nil
	d.dealPositions = nil
	d.nextSafetyPrice = 0
	d.lastClose = ts
}
