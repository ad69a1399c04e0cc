// Package indicators provides technical indicator calculations over bar series.
//
// All indicators are pure functions of their input: they never mutate the
// bars passed in. Outputs are trimmed series where output[i] corresponds to
// input[i+offset] with offset = Period()-1. An indicator that needs more
// history than is available returns an empty series, never an error.
package indicators

import (
	"fmt"
	"sync"

	"algotrader/internal/models"
)

// Indicator defines the interface for single-value technical indicators.
type Indicator interface {
	Name() string
	Period() int
	Calculate(bars []models.Bar) []float64
}

// MultiValueIndicator defines the interface for indicators that return
// several aligned series sharing the same offset.
type MultiValueIndicator interface {
	Name() string
	Period() int
	Calculate(bars []models.Bar) map[string][]float64
}

// Cache memoizes indicator outputs by (indicator name, input length, last
// bar timestamp). Bars arrive in strictly increasing timestamp order per
// symbol, so the triple identifies the input series even after a rolling
// window starts discarding old bars.
type Cache struct {
	mu     sync.Mutex
	single map[string][]float64
	multi  map[string]map[string][]float64
}

// NewCache creates an empty indicator cache.
func NewCache() *Cache {
	return &Cache{
		single: make(map[string][]float64),
		multi:  make(map[string]map[string][]float64),
	}
}

func cacheKey(name string, bars []models.Bar) string {
	if len(bars) == 0 {
		return name + ":0"
	}
	return fmt.Sprintf("%s:%d:%d", name, len(bars), bars[len(bars)-1].Timestamp.UnixNano())
}

// Get returns the memoized output of ind over bars, computing it on a miss.
func (c *Cache) Get(ind Indicator, bars []models.Bar) []float64 {
	key := cacheKey(ind.Name(), bars)
	c.mu.Lock()
	if v, ok := c.single[key]; ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	v := ind.Calculate(bars)

	c.mu.Lock()
	if len(c.single) >= maxCacheEntries {
		c.single = make(map[string][]float64)
	}
	c.single[key] = v
	c.mu.Unlock()
	return v
}

// maxCacheEntries bounds the memo maps; recomputing after a flush is cheap
// relative to letting the cache grow with every bar.
const maxCacheEntries = 1024

// GetMulti returns the memoized output of a multi-value indicator.
func (c *Cache) GetMulti(ind MultiValueIndicator, bars []models.Bar) map[string][]float64 {
	key := cacheKey(ind.Name(), bars)
	c.mu.Lock()
	if v, ok := c.multi[key]; ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	v := ind.Calculate(bars)

	c.mu.Lock()
	if len(c.multi) >= maxCacheEntries {
		c.multi = make(map[string]map[string][]float64)
	}
	c.multi[key] = v
	c.mu.Unlock()
	return v
}

// Reset drops all memoized values. Called when the underlying series is
// replaced rather than extended (e.g. a grid rebalance on fresh history).
func (c *Cache) Reset() {
	c.mu.Lock()
	c.single = make(map[string][]float64)
	c.multi = make(map[string]map[string][]float64)
	c.mu.Unlock()
}
