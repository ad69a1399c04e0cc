package indicators

import (
	"fmt"
	"math"

	"algotrader/internal/models"
)

// RSI calculates the Relative Strength Index using Wilder smoothing of
// average gains and losses.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI_%d", r.period)
}

// Period returns the warmup length; one extra bar is needed for the first
// price change.
func (r *RSI) Period() int {
	return r.period + 1
}

func (r *RSI) Calculate(bars []models.Bar) []float64 {
	if r.period <= 0 || len(bars) < r.period+1 {
		return nil
	}

	n := len(bars)
	closes := closePrices(bars)
	result := make([]float64, 0, n-r.period)

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := mean(gains[1 : r.period+1])
	avgLoss := mean(losses[1 : r.period+1])
	result = append(result, rsiValue(avgGain, avgLoss))

	for i := r.period + 1; i < n; i++ {
		avgGain = (avgGain*float64(r.period-1) + gains[i]) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + losses[i]) / float64(r.period)
		result = append(result, rsiValue(avgGain, avgLoss))
	}

	return result
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// Stochastic calculates the Stochastic Oscillator. The "percent_k" and
// "percent_d" series share offset Period()-1.
type Stochastic struct {
	kPeriod int
	dPeriod int
}

// NewStochastic creates a new Stochastic indicator.
func NewStochastic(kPeriod, dPeriod int) *Stochastic {
	return &Stochastic{
		kPeriod: kPeriod,
		dPeriod: dPeriod,
	}
}

func (s *Stochastic) Name() string {
	return fmt.Sprintf("Stochastic_%d_%d", s.kPeriod, s.dPeriod)
}

func (s *Stochastic) Period() int {
	return s.kPeriod + s.dPeriod - 1
}

func (s *Stochastic) Calculate(bars []models.Bar) map[string][]float64 {
	if s.kPeriod <= 0 || s.dPeriod <= 0 || len(bars) < s.Period() {
		return nil
	}

	n := len(bars)
	highs := highPrices(bars)
	lows := lowPrices(bars)
	closes := closePrices(bars)

	rawK := make([]float64, 0, n-s.kPeriod+1)
	for i := s.kPeriod - 1; i < n; i++ {
		hh := highest(highs[i-s.kPeriod+1 : i+1])
		ll := lowest(lows[i-s.kPeriod+1 : i+1])
		if hh == ll {
			rawK = append(rawK, 50)
		} else {
			rawK = append(rawK, 100*(closes[i]-ll)/(hh-ll))
		}
	}

	percentD := SMASeries(rawK, s.dPeriod)
	percentK := rawK[s.dPeriod-1:]

	return map[string][]float64{
		"percent_k": percentK,
		"percent_d": percentD,
	}
}

// WilliamsR calculates Williams %R, bounded to [-100, 0].
type WilliamsR struct {
	period int
}

// NewWilliamsR creates a new Williams %R indicator.
func NewWilliamsR(period int) *WilliamsR {
	return &WilliamsR{period: period}
}

func (w *WilliamsR) Name() string {
	return fmt.Sprintf("WilliamsR_%d", w.period)
}

func (w *WilliamsR) Period() int {
	return w.period
}

func (w *WilliamsR) Calculate(bars []models.Bar) []float64 {
	if w.period <= 0 || len(bars) < w.period {
		return nil
	}

	n := len(bars)
	highs := highPrices(bars)
	lows := lowPrices(bars)
	closes := closePrices(bars)
	result := make([]float64, 0, n-w.period+1)

	for i := w.period - 1; i < n; i++ {
		hh := highest(highs[i-w.period+1 : i+1])
		ll := lowest(lows[i-w.period+1 : i+1])
		if hh == ll {
			result = append(result, -50)
			continue
		}
		wr := -100 * (hh - closes[i]) / (hh - ll)
		result = append(result, math.Max(-100, math.Min(0, wr)))
	}

	return result
}

// CCI calculates the Commodity Channel Index.
type CCI struct {
	period int
}

// NewCCI creates a new CCI indicator.
func NewCCI(period int) *CCI {
	return &CCI{period: period}
}

func (c *CCI) Name() string {
	return fmt.Sprintf("CCI_%d", c.period)
}

func (c *CCI) Period() int {
	return c.period
}

func (c *CCI) Calculate(bars []models.Bar) []float64 {
	if c.period <= 0 || len(bars) < c.period {
		return nil
	}

	n := len(bars)
	tp := make([]float64, n)
	for i := range bars {
		tp[i] = typicalPrice(bars[i])
	}

	result := make([]float64, 0, n-c.period+1)
	for i := c.period - 1; i < n; i++ {
		window := tp[i-c.period+1 : i+1]
		sma := mean(window)

		var meanDev float64
		for _, v := range window {
			meanDev += math.Abs(v - sma)
		}
		meanDev /= float64(c.period)

		if meanDev == 0 {
			result = append(result, 0)
		} else {
			result = append(result, (tp[i]-sma)/(0.015*meanDev))
		}
	}

	return result
}

// Momentum calculates the price-difference Momentum indicator.
type Momentum struct {
	period int
}

// NewMomentum creates a new Momentum indicator.
func NewMomentum(period int) *Momentum {
	return &Momentum{period: period}
}

func (m *Momentum) Name() string {
	return fmt.Sprintf("Momentum_%d", m.period)
}

func (m *Momentum) Period() int {
	return m.period + 1
}

func (m *Momentum) Calculate(bars []models.Bar) []float64 {
	if m.period <= 0 || len(bars) < m.period+1 {
		return nil
	}

	closes := closePrices(bars)
	result := make([]float64, 0, len(bars)-m.period)
	for i := m.period; i < len(bars); i++ {
		result = append(result, closes[i]-closes[i-m.period])
	}
	return result
}
