package indicators

import (
	"algotrader/internal/models"
)

// History keeps a rolling window of recent bars for one symbol/timeframe.
// Appends must arrive in strictly increasing timestamp order; out-of-order
// bars are dropped.
type History struct {
	max  int
	bars []models.Bar
}

// NewHistory creates a bar history bounded to max bars.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 256
	}
	return &History{max: max}
}

// Add appends a bar and reports whether it was accepted.
func (h *History) Add(bar models.Bar) bool {
	if n := len(h.bars); n > 0 && !bar.Timestamp.After(h.bars[n-1].Timestamp) {
		return false
	}
	h.bars = append(h.bars, bar)
	if len(h.bars) > h.max {
		h.bars = h.bars[len(h.bars)-h.max:]
	}
	return true
}

// Bars returns the current window. The slice is shared; callers must not
// mutate it.
func (h *History) Bars() []models.Bar {
	return h.bars
}

// Len returns the number of buffered bars.
func (h *History) Len() int {
	return len(h.bars)
}

// Last returns the most recent bar, or false when empty.
func (h *History) Last() (models.Bar, bool) {
	if len(h.bars) == 0 {
		return models.Bar{}, false
	}
	return h.bars[len(h.bars)-1], true
}
