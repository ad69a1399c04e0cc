package indicators

import (
	"fmt"
	"math"

	"algotrader/internal/models"
)

// SMA calculates Simple Moving Average.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA_%d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

func (s *SMA) Calculate(bars []models.Bar) []float64 {
	return SMASeries(closePrices(bars), s.period)
}

// SMASeries calculates SMA on raw values. Output length is
// len(values)-period+1.
func SMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	result := make([]float64, 0, len(values)-period+1)
	windowSum := sum(values[:period])
	result = append(result, windowSum/float64(period))
	for i := period; i < len(values); i++ {
		windowSum += values[i] - values[i-period]
		result = append(result, windowSum/float64(period))
	}
	return result
}

// EMA calculates Exponential Moving Average with multiplier 2/(period+1),
// seeded with the first input value. The warmup period-1 values are
// dropped so the output aligns with SMA of the same period.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

func (e *EMA) Name() string {
	return fmt.Sprintf("EMA_%d", e.period)
}

func (e *EMA) Period() int {
	return e.period
}

func (e *EMA) Calculate(bars []models.Bar) []float64 {
	return EMASeries(closePrices(bars), e.period)
}

// EMASeries calculates EMA on raw values. Output length is
// len(values)-period+1.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	multiplier := 2.0 / float64(period+1)
	result := make([]float64, 0, len(values)-period+1)
	ema := values[0]
	for i := 1; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		if i >= period-1 {
			result = append(result, ema)
		}
	}
	if period == 1 {
		// No smoothing window to warm up.
		return append([]float64{values[0]}, result...)
	}
	return result
}

// MACD calculates Moving Average Convergence Divergence. All three output
// series ("macd", "signal", "histogram") share offset Period()-1.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD indicator (standard periods are 12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

func (m *MACD) Period() int {
	return m.slowPeriod + m.signalPeriod - 1
}

func (m *MACD) Calculate(bars []models.Bar) map[string][]float64 {
	if m.fastPeriod <= 0 || m.slowPeriod <= 0 || m.signalPeriod <= 0 {
		return nil
	}
	if len(bars) < m.Period() {
		return nil
	}

	closes := closePrices(bars)
	fastEMA := EMASeries(closes, m.fastPeriod)
	slowEMA := EMASeries(closes, m.slowPeriod)

	// Align fast EMA to the slow EMA's offset.
	fastEMA = fastEMA[m.slowPeriod-m.fastPeriod:]

	macdLine := make([]float64, len(slowEMA))
	for i := range slowEMA {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := EMASeries(macdLine, m.signalPeriod)
	macdTrim := macdLine[m.signalPeriod-1:]

	histogram := make([]float64, len(signalLine))
	for i := range signalLine {
		histogram[i] = macdTrim[i] - signalLine[i]
	}

	return map[string][]float64{
		"macd":      macdTrim,
		"signal":    signalLine,
		"histogram": histogram,
	}
}

// ParabolicSAR calculates the Parabolic Stop and Reverse indicator. The
// "direction" series is 1 for an uptrend and -1 for a downtrend.
type ParabolicSAR struct {
	afStart float64
	afStep  float64
	afMax   float64
}

// NewParabolicSAR creates a new Parabolic SAR indicator. Standard
// parameters are 0.02, 0.02, 0.2.
func NewParabolicSAR(afStart, afStep, afMax float64) *ParabolicSAR {
	return &ParabolicSAR{
		afStart: afStart,
		afStep:  afStep,
		afMax:   afMax,
	}
}

func (p *ParabolicSAR) Name() string {
	return "ParabolicSAR"
}

func (p *ParabolicSAR) Period() int {
	return 2
}

func (p *ParabolicSAR) Calculate(bars []models.Bar) map[string][]float64 {
	if len(bars) < 2 {
		return nil
	}

	n := len(bars)
	sar := make([]float64, n)
	direction := make([]float64, n)

	isUpTrend := bars[1].Close > bars[0].Close
	af := p.afStart
	var ep float64

	if isUpTrend {
		sar[0] = bars[0].Low
		ep = bars[0].High
		direction[0] = 1
	} else {
		sar[0] = bars[0].High
		ep = bars[0].Low
		direction[0] = -1
	}

	for i := 1; i < n; i++ {
		sar[i] = sar[i-1] + af*(ep-sar[i-1])
		if isUpTrend {
			sar[i] = math.Min(sar[i], bars[i-1].Low)
			if i >= 2 {
				sar[i] = math.Min(sar[i], bars[i-2].Low)
			}
			if bars[i].Low < sar[i] {
				// Reverse to downtrend.
				isUpTrend = false
				sar[i] = ep
				ep = bars[i].Low
				af = p.afStart
			} else if bars[i].High > ep {
				ep = bars[i].High
				af = math.Min(af+p.afStep, p.afMax)
			}
		} else {
			sar[i] = math.Max(sar[i], bars[i-1].High)
			if i >= 2 {
				sar[i] = math.Max(sar[i], bars[i-2].High)
			}
			if bars[i].High > sar[i] {
				isUpTrend = true
				sar[i] = ep
				ep = bars[i].High
				af = p.afStart
			} else if bars[i].Low < ep {
				ep = bars[i].Low
				af = math.Min(af+p.afStep, p.afMax)
			}
		}

		if isUpTrend {
			direction[i] = 1
		} else {
			direction[i] = -1
		}
	}

	return map[string][]float64{
		"sar":       sar[1:],
		"direction": direction[1:],
	}
}
