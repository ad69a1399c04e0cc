package indicators

import (
	"algotrader/internal/models"
)

// SnapshotConfig selects the periods used when building a Snapshot.
type SnapshotConfig struct {
	FastEMAPeriod      int
	SlowEMAPeriod      int
	RSIPeriod          int
	MACDFast           int
	MACDSlow           int
	MACDSignal         int
	BollingerPeriod    int
	BollingerDeviation float64
	ATRPeriod          int
	VolumePeriod       int
	SRWindow           int
}

// DefaultSnapshotConfig returns the standard period set.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		FastEMAPeriod:      8,
		SlowEMAPeriod:      21,
		RSIPeriod:          14,
		MACDFast:           12,
		MACDSlow:           26,
		MACDSignal:         9,
		BollingerPeriod:    20,
		BollingerDeviation: 2.0,
		ATRPeriod:          14,
		VolumePeriod:       20,
		SRWindow:           5,
	}
}

// Snapshot is the per-bar indicator view handed to strategies. Each Has*
// flag reports whether enough history existed to compute that group.
type Snapshot struct {
	Bar models.Bar

	FastEMA     float64
	PrevFastEMA float64
	SlowEMA     float64
	PrevSlowEMA float64
	HasTrend    bool

	RSI     float64
	PrevRSI float64
	HasRSI  bool

	MACD       float64
	MACDSignal float64
	MACDHist   float64
	HasMACD    bool

	BollingerUpper  float64
	BollingerMiddle float64
	BollingerLower  float64
	HasBollinger    bool

	ATR    float64
	HasATR bool

	AvgVolume float64
	HasVolume bool

	Support       float64
	HasSupport    bool
	Resistance    float64
	HasResistance bool
}

// Builder computes Snapshots over a bar history, memoizing intermediate
// series in a Cache.
type Builder struct {
	cfg   SnapshotConfig
	cache *Cache

	fastEMA   *EMA
	slowEMA   *EMA
	rsi       *RSI
	macd      *MACD
	bollinger *BollingerBands
	atr       *ATR
	sr        *SupportResistance
}

// NewBuilder creates a snapshot builder for the given period set.
func NewBuilder(cfg SnapshotConfig) *Builder {
	return &Builder{
		cfg:       cfg,
		cache:     NewCache(),
		fastEMA:   NewEMA(cfg.FastEMAPeriod),
		slowEMA:   NewEMA(cfg.SlowEMAPeriod),
		rsi:       NewRSI(cfg.RSIPeriod),
		macd:      NewMACD(cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal),
		bollinger: NewBollingerBands(cfg.BollingerPeriod, cfg.BollingerDeviation),
		atr:       NewATR(cfg.ATRPeriod),
		sr:        NewSupportResistance(cfg.SRWindow),
	}
}

// Compute builds the Snapshot for the most recent bar of the series.
func (b *Builder) Compute(bars []models.Bar) *Snapshot {
	if len(bars) == 0 {
		return nil
	}
	snap := &Snapshot{Bar: bars[len(bars)-1]}

	fast := b.cache.Get(b.fastEMA, bars)
	slow := b.cache.Get(b.slowEMA, bars)
	if f, ok := last(fast); ok {
		if s, ok2 := last(slow); ok2 {
			pf, okPF := prev(fast)
			ps, okPS := prev(slow)
			if okPF && okPS {
				snap.FastEMA, snap.SlowEMA = f, s
				snap.PrevFastEMA, snap.PrevSlowEMA = pf, ps
				snap.HasTrend = true
			}
		}
	}

	rsi := b.cache.Get(b.rsi, bars)
	if v, ok := last(rsi); ok {
		if p, ok2 := prev(rsi); ok2 {
			snap.RSI, snap.PrevRSI = v, p
			snap.HasRSI = true
		}
	}

	if macd := b.cache.GetMulti(b.macd, bars); macd != nil {
		m, okM := last(macd["macd"])
		s, okS := last(macd["signal"])
		h, okH := last(macd["histogram"])
		if okM && okS && okH {
			snap.MACD, snap.MACDSignal, snap.MACDHist = m, s, h
			snap.HasMACD = true
		}
	}

	if bb := b.cache.GetMulti(b.bollinger, bars); bb != nil {
		u, okU := last(bb["upper"])
		m, okM := last(bb["middle"])
		l, okL := last(bb["lower"])
		if okU && okM && okL {
			snap.BollingerUpper, snap.BollingerMiddle, snap.BollingerLower = u, m, l
			snap.HasBollinger = true
		}
	}

	if v, ok := last(b.cache.Get(b.atr, bars)); ok {
		snap.ATR = v
		snap.HasATR = true
	}

	if len(bars) >= b.cfg.VolumePeriod && b.cfg.VolumePeriod > 0 {
		var total float64
		for _, bar := range bars[len(bars)-b.cfg.VolumePeriod:] {
			total += bar.Volume
		}
		snap.AvgVolume = total / float64(b.cfg.VolumePeriod)
		snap.HasVolume = true
	}

	sup, okSup, res, okRes := b.sr.Nearest(bars, snap.Bar.Close)
	snap.Support, snap.HasSupport = sup, okSup
	snap.Resistance, snap.HasResistance = res, okRes

	return snap
}
