package indicators

import (
	"algotrader/internal/models"
)

// Level is a detected support or resistance price with the bar index
// where the extremum occurred.
type Level struct {
	Price float64
	Index int
}

// SupportResistance detects local extrema over a symmetric lookback
// window: a bar's high is resistance when it is the maximum of the
// window centered on it, and likewise for support lows.
type SupportResistance struct {
	window int
}

// NewSupportResistance creates a new support/resistance detector.
func NewSupportResistance(window int) *SupportResistance {
	return &SupportResistance{window: window}
}

func (s *SupportResistance) Name() string {
	return "SupportResistance"
}

func (s *SupportResistance) Period() int {
	return 2*s.window + 1
}

// Detect returns all support and resistance levels found in bars.
func (s *SupportResistance) Detect(bars []models.Bar) (supports, resistances []Level) {
	if s.window <= 0 || len(bars) < s.Period() {
		return nil, nil
	}

	for i := s.window; i < len(bars)-s.window; i++ {
		isSupport := true
		isResistance := true
		for j := i - s.window; j <= i+s.window; j++ {
			if j == i {
				continue
			}
			if bars[j].Low < bars[i].Low {
				isSupport = false
			}
			if bars[j].High > bars[i].High {
				isResistance = false
			}
			if !isSupport && !isResistance {
				break
			}
		}
		if isSupport {
			supports = append(supports, Level{Price: bars[i].Low, Index: i})
		}
		if isResistance {
			resistances = append(resistances, Level{Price: bars[i].High, Index: i})
		}
	}

	return supports, resistances
}

// Nearest returns the closest support below price and the closest
// resistance above it. A zero value with ok=false means none was found.
func (s *SupportResistance) Nearest(bars []models.Bar, price float64) (support float64, supportOK bool, resistance float64, resistanceOK bool) {
	supports, resistances := s.Detect(bars)

	for _, lv := range supports {
		if lv.Price < price && (!supportOK || lv.Price > support) {
			support = lv.Price
			supportOK = true
		}
	}
	for _, lv := range resistances {
		if lv.Price > price && (!resistanceOK || lv.Price < resistance) {
			resistance = lv.Price
			resistanceOK = true
		}
	}

	return support, supportOK, resistance, resistanceOK
}
