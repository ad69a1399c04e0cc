package indicators

import (
	"fmt"

	"algotrader/internal/models"
)

// ATR calculates the Average True Range as a rolling SMA of true range.
// The first bar's true range is its high-low span.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(bars []models.Bar) []float64 {
	if a.period <= 0 || len(bars) < a.period {
		return nil
	}

	n := len(bars)
	tr := make([]float64, n)
	tr[0] = bars[0].High - bars[0].Low
	for i := 1; i < n; i++ {
		tr[i] = trueRange(bars[i], bars[i-1])
	}

	return SMASeries(tr, a.period)
}

// BollingerBands calculates Bollinger Bands. The "upper", "middle" and
// "lower" series share offset Period()-1, with upper >= middle >= lower
// at every index.
type BollingerBands struct {
	period    int
	deviation float64
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(period int, deviation float64) *BollingerBands {
	return &BollingerBands{
		period:    period,
		deviation: deviation,
	}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BollingerBands_%d_%.1f", b.period, b.deviation)
}

func (b *BollingerBands) Period() int {
	return b.period
}

func (b *BollingerBands) Calculate(bars []models.Bar) map[string][]float64 {
	if b.period <= 0 || b.deviation <= 0 || len(bars) < b.period {
		return nil
	}

	n := len(bars)
	closes := closePrices(bars)
	out := n - b.period + 1

	middle := make([]float64, 0, out)
	upper := make([]float64, 0, out)
	lower := make([]float64, 0, out)

	for i := b.period - 1; i < n; i++ {
		window := closes[i-b.period+1 : i+1]
		sma := mean(window)
		sd := stdDev(window)

		middle = append(middle, sma)
		upper = append(upper, sma+b.deviation*sd)
		lower = append(lower, sma-b.deviation*sd)
	}

	return map[string][]float64{
		"upper":  upper,
		"middle": middle,
		"lower":  lower,
	}
}
