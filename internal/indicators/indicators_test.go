package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"algotrader/internal/models"
)

// barGen generates one valid bar with OHLC constraints enforced: High is
// the window maximum, Low the minimum, and the bar is never flat.
func barGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Bar{}), map[string]gopter.Gen{
		"Open":   gen.Float64Range(50, 500),
		"High":   gen.Float64Range(50, 500),
		"Low":    gen.Float64Range(50, 500),
		"Close":  gen.Float64Range(50, 500),
		"Volume": gen.Float64Range(100, 1e6),
	}).Map(func(b models.Bar) models.Bar {
		b.Symbol = "TESTUSDT"
		b.Timeframe = models.Timeframe5m
		b.High = math.Max(b.High, math.Max(b.Open, b.Close))
		b.Low = math.Min(b.Low, math.Min(b.Open, b.Close))
		if b.High <= b.Low {
			b.High = b.Low + 1
		}
		return b
	})
}

// barSliceGen generates a bar series of at least minLen bars with strictly
// increasing timestamps.
func barSliceGen(minLen, maxLen int) gopter.Gen {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return gen.SliceOfN(maxLen, barGen()).Map(func(bars []models.Bar) []models.Bar {
		if len(bars) == 0 {
			bars = append(bars, models.Bar{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000})
		}
		for len(bars) < minLen {
			bars = append(bars, bars[len(bars)-1])
		}
		for i := range bars {
			bars[i].Timestamp = start.Add(time.Duration(i) * 5 * time.Minute)
		}
		return bars
	})
}

// seriesBars builds a deterministic mildly rising series for table tests.
func seriesBars(n int) []models.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		close := 100 + 0.3*float64(i)
		bars[i] = models.Bar{
			Symbol:    "TESTUSDT",
			Timeframe: models.Timeframe5m,
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      close - 0.1,
			High:      close + 0.2,
			Low:       close - 0.2,
			Close:     close,
			Volume:    1000,
		}
	}
	return bars
}

func closesToBars(closes []float64) []models.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Symbol:    "TESTUSDT",
			Timeframe: models.Timeframe5m,
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c,
			High:      c + 0.1,
			Low:       c - 0.1,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func TestOscillatorsWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	inRange := func(values []float64, lo, hi float64) bool {
		for _, v := range values {
			if v < lo || v > hi || math.IsNaN(v) {
				return false
			}
		}
		return true
	}

	properties.Property("RSI stays in [0, 100]", prop.ForAll(
		func(bars []models.Bar) bool {
			return inRange(NewRSI(14).Calculate(bars), 0, 100)
		},
		barSliceGen(20, 60),
	))

	properties.Property("Stochastic %K and %D stay in [0, 100]", prop.ForAll(
		func(bars []models.Bar) bool {
			out := NewStochastic(14, 3).Calculate(bars)
			if out == nil {
				return false
			}
			return inRange(out["percent_k"], 0, 100) && inRange(out["percent_d"], 0, 100)
		},
		barSliceGen(20, 60),
	))

	properties.Property("Williams %R stays in [-100, 0]", prop.ForAll(
		func(bars []models.Bar) bool {
			return inRange(NewWilliamsR(14).Calculate(bars), -100, 0)
		},
		barSliceGen(20, 60),
	))

	properties.Property("MFI stays in [0, 100]", prop.ForAll(
		func(bars []models.Bar) bool {
			return inRange(NewMFI(14).Calculate(bars), 0, 100)
		},
		barSliceGen(20, 60),
	))

	properties.TestingRun(t)
}

// Every single-value indicator trims its warmup so that output[i] lines up
// with input[i+Period()-1], and returns an empty series when the input is
// shorter than the warmup.
func TestTrimmedSeriesLength(t *testing.T) {
	indicators := []Indicator{
		NewSMA(14),
		NewEMA(21),
		NewRSI(14),
		NewWilliamsR(14),
		NewCCI(20),
		NewMomentum(10),
		NewMFI(14),
		NewATR(14),
	}

	for _, n := range []int{0, 5, 13, 14, 15, 22, 40} {
		bars := seriesBars(n)
		for _, ind := range indicators {
			got := len(ind.Calculate(bars))
			want := n - ind.Period() + 1
			if want < 0 {
				want = 0
			}
			if got != want {
				t.Errorf("%s over %d bars: got %d values, want %d", ind.Name(), n, got, want)
			}
		}
	}
}

func TestSMAKnownValues(t *testing.T) {
	got := SMASeries([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("sma[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEMAKnownValues(t *testing.T) {
	// period 3, multiplier 0.5, seeded with the first value.
	got := EMASeries([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{2.25, 3.125, 4.0625}
	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("ema[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRSISaturatesOnOneWayMoves(t *testing.T) {
	rising := make([]float64, 20)
	falling := make([]float64, 20)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 100 - float64(i)
	}

	rsi := NewRSI(14)
	for _, v := range rsi.Calculate(closesToBars(rising)) {
		if v != 100 {
			t.Errorf("rising closes: RSI = %v, want 100", v)
		}
	}
	for _, v := range rsi.Calculate(closesToBars(falling)) {
		if v != 0 {
			t.Errorf("falling closes: RSI = %v, want 0", v)
		}
	}
}

func TestBollingerBandOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("lower <= middle <= upper at every index", prop.ForAll(
		func(bars []models.Bar) bool {
			out := NewBollingerBands(20, 2.0).Calculate(bars)
			if out == nil {
				return false
			}
			upper, middle, lower := out["upper"], out["middle"], out["lower"]
			if len(upper) != len(middle) || len(middle) != len(lower) {
				return false
			}
			for i := range middle {
				if lower[i] > middle[i] || middle[i] > upper[i] {
					return false
				}
			}
			return true
		},
		barSliceGen(25, 60),
	))

	properties.TestingRun(t)
}

func TestMACDSeriesAligned(t *testing.T) {
	macd := NewMACD(12, 26, 9)
	for _, n := range []int{34, 50, 80} {
		out := macd.Calculate(seriesBars(n))
		if out == nil {
			t.Fatalf("no output for %d bars", n)
		}
		want := n - macd.Period() + 1
		for _, series := range []string{"macd", "signal", "histogram"} {
			if len(out[series]) != want {
				t.Errorf("%d bars: %s has %d values, want %d", n, series, len(out[series]), want)
			}
		}
	}
	if out := macd.Calculate(seriesBars(33)); out != nil {
		t.Errorf("expected no output below the warmup, got %d series", len(out))
	}
}

func TestATRIsPositive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ATR > 0 for non-flat bars", prop.ForAll(
		func(bars []models.Bar) bool {
			for _, v := range NewATR(14).Calculate(bars) {
				if v <= 0 {
					return false
				}
			}
			return true
		},
		barSliceGen(20, 60),
	))

	properties.TestingRun(t)
}

func TestSupportResistanceDetect(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	lows := []float64{9.0, 8.5, 8.0, 8.5, 9.0, 9.2, 9.1}
	highs := []float64{9.5, 9.6, 9.7, 10.5, 11.0, 10.4, 10.2}
	bars := make([]models.Bar, len(lows))
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      lows[i] + 0.1,
			High:      highs[i],
			Low:       lows[i],
			Close:     highs[i] - 0.1,
			Volume:    1000,
		}
	}

	sr := NewSupportResistance(2)
	supports, resistances := sr.Detect(bars)
	if len(supports) != 1 || supports[0].Price != 8.0 || supports[0].Index != 2 {
		t.Errorf("supports = %+v, want one level at 8.0 (index 2)", supports)
	}
	if len(resistances) != 1 || resistances[0].Price != 11.0 || resistances[0].Index != 4 {
		t.Errorf("resistances = %+v, want one level at 11.0 (index 4)", resistances)
	}

	sup, okSup, res, okRes := sr.Nearest(bars, 10.0)
	if !okSup || sup != 8.0 {
		t.Errorf("nearest support = %v (%v), want 8.0", sup, okSup)
	}
	if !okRes || res != 11.0 {
		t.Errorf("nearest resistance = %v (%v), want 11.0", res, okRes)
	}

	if s, r := sr.Detect(bars[:4]); s != nil || r != nil {
		t.Errorf("expected no levels below the window size, got %v / %v", s, r)
	}
}

func TestParabolicSARTrailsAnUptrend(t *testing.T) {
	bars := seriesBars(30)
	out := NewParabolicSAR(0.02, 0.02, 0.2).Calculate(bars)
	if out == nil {
		t.Fatal("no output")
	}
	sar, direction := out["sar"], out["direction"]
	if len(sar) != len(bars)-1 || len(direction) != len(bars)-1 {
		t.Fatalf("lengths = %d / %d, want %d", len(sar), len(direction), len(bars)-1)
	}

	prev := math.Inf(-1)
	for i := range sar {
		bar := bars[i+1]
		if direction[i] != 1 {
			t.Fatalf("direction[%d] = %v in a clean uptrend", i, direction[i])
		}
		if sar[i] >= bar.Low {
			t.Fatalf("sar[%d] = %v not below the bar low %v", i, sar[i], bar.Low)
		}
		if sar[i] <= prev {
			t.Fatalf("sar[%d] = %v did not ratchet up from %v", i, sar[i], prev)
		}
		prev = sar[i]
	}
}

func TestParabolicSARReversesAndLatches(t *testing.T) {
	closes := make([]float64, 20)
	for i := 0; i < 10; i++ {
		closes[i] = 100 + 0.5*float64(i)
	}
	for i := 10; i < 20; i++ {
		closes[i] = closes[9] - 1.5*float64(i-9)
	}
	bars := closesToBars(closes)

	out := NewParabolicSAR(0.02, 0.02, 0.2).Calculate(bars)
	sar, direction := out["sar"], out["direction"]

	if direction[0] != 1 {
		t.Fatalf("direction[0] = %v, want uptrend", direction[0])
	}
	flip := -1
	for i, d := range direction {
		if d == -1 {
			flip = i
			break
		}
	}
	if flip == -1 {
		t.Fatal("no reversal in a collapsing series")
	}
	for i := flip; i < len(direction); i++ {
		if direction[i] != -1 {
			t.Fatalf("direction[%d] = %v after the reversal", i, direction[i])
		}
		if sar[i] < bars[i+1].High {
			t.Fatalf("sar[%d] = %v below the bar high %v in a downtrend", i, sar[i], bars[i+1].High)
		}
	}
}

// A lower acceleration cap must trail wider: the capped stop never
// overtakes the uncapped one while the trend runs.
func TestParabolicSARAccelerationCap(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, 25)
	for i := range bars {
		c := 100 + 2.0*float64(i)
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c, High: c + 0.1, Low: c - 0.1, Close: c,
			Volume: 1000,
		}
	}

	slow := NewParabolicSAR(0.02, 0.02, 0.04).Calculate(bars)["sar"]
	fast := NewParabolicSAR(0.02, 0.02, 0.2).Calculate(bars)["sar"]
	for i := range slow {
		if slow[i] > fast[i] {
			t.Fatalf("capped sar[%d] = %v above uncapped %v", i, slow[i], fast[i])
		}
	}
	if slow[len(slow)-1] >= fast[len(fast)-1] {
		t.Fatalf("caps indistinguishable at the end: %v vs %v",
			slow[len(slow)-1], fast[len(fast)-1])
	}
}

func TestParabolicSARDirectionIsBinary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("direction is 1 or -1 and aligned with sar", prop.ForAll(
		func(bars []models.Bar) bool {
			out := NewParabolicSAR(0.02, 0.02, 0.2).Calculate(bars)
			if out == nil {
				return len(bars) < 2
			}
			sar, direction := out["sar"], out["direction"]
			if len(sar) != len(bars)-1 || len(direction) != len(bars)-1 {
				return false
			}
			for _, d := range direction {
				if d != 1 && d != -1 {
					return false
				}
			}
			return true
		},
		barSliceGen(2, 60),
	))

	properties.TestingRun(t)
}

func TestVolumeProfileValueArea(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	prices := []float64{100, 101, 102, 103}
	volumes := []float64{500, 200, 100, 300}
	bars := make([]models.Bar, len(prices))
	for i := range bars {
		p := prices[i]
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      p, High: p, Low: p, Close: p,
			Volume: volumes[i],
		}
	}

	res := NewVolumeProfile(4).CalculateProfile(bars)
	if res == nil {
		t.Fatal("no profile")
	}
	// Bins of 0.75 over [100, 103]: one bar lands in each, the top one
	// clamped into the last bin.
	wantVolumes := []float64{500, 200, 100, 300}
	if len(res.Volumes) != 4 {
		t.Fatalf("bins = %d, want 4", len(res.Volumes))
	}
	for i, want := range wantVolumes {
		if res.Volumes[i] != want {
			t.Fatalf("bin %d volume = %v, want %v", i, res.Volumes[i], want)
		}
	}
	if res.POC != res.PriceLevels[0] {
		t.Fatalf("POC = %v, want the heaviest bin %v", res.POC, res.PriceLevels[0])
	}
	// 70% of 1100 is 770: the area grows upward from the POC through the
	// next two bins (500+200+100) and never below it.
	if res.VAL != res.PriceLevels[0] || res.VAH != res.PriceLevels[2] {
		t.Fatalf("value area = [%v, %v], want [%v, %v]",
			res.VAL, res.VAH, res.PriceLevels[0], res.PriceLevels[2])
	}
	if res.VAL > res.POC || res.POC > res.VAH {
		t.Fatalf("value area ordering violated: %v <= %v <= %v", res.VAL, res.POC, res.VAH)
	}
}

func TestVolumeProfileSinglePrice(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, 3)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      100, High: 100, Low: 100, Close: 100,
			Volume: 1000,
		}
	}

	res := NewVolumeProfile(10).CalculateProfile(bars)
	if res == nil {
		t.Fatal("no profile")
	}
	if len(res.PriceLevels) != 1 || res.PriceLevels[0] != 100 {
		t.Fatalf("levels = %v, want the single traded price", res.PriceLevels)
	}
	if res.POC != 100 || res.VAH != 100 || res.VAL != 100 {
		t.Fatalf("POC/VAH/VAL = %v/%v/%v, want 100", res.POC, res.VAH, res.VAL)
	}

	if NewVolumeProfile(0).CalculateProfile(bars) != nil {
		t.Error("profile produced with no bins")
	}
	if NewVolumeProfile(10).CalculateProfile(nil) != nil {
		t.Error("profile produced with no bars")
	}
}

func TestHistoryRejectsOutOfOrderBars(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	h := NewHistory(3)

	for i := 0; i < 4; i++ {
		bar := models.Bar{Timestamp: start.Add(time.Duration(i) * time.Minute), Close: float64(i)}
		if !h.Add(bar) {
			t.Fatalf("bar %d rejected", i)
		}
	}
	if h.Len() != 3 {
		t.Errorf("window length = %d, want 3", h.Len())
	}
	if last, ok := h.Last(); !ok || last.Close != 3 {
		t.Errorf("last bar close = %v, want 3", last.Close)
	}

	// Duplicate and stale timestamps are both dropped.
	if h.Add(models.Bar{Timestamp: start.Add(3 * time.Minute)}) {
		t.Error("duplicate timestamp accepted")
	}
	if h.Add(models.Bar{Timestamp: start.Add(time.Minute)}) {
		t.Error("stale timestamp accepted")
	}
	if h.Len() != 3 {
		t.Errorf("window length after rejects = %d, want 3", h.Len())
	}
}

type countingIndicator struct {
	calls int
}

func (c *countingIndicator) Name() string { return "counting_1" }

func (c *countingIndicator) Period() int { return 1 }

func (c *countingIndicator) Calculate(bars []models.Bar) []float64 {
	c.calls++
	return []float64{float64(len(bars))}
}

func TestCacheTracksRollingWindow(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cache := NewCache()
	ind := &countingIndicator{}
	h := NewHistory(3)

	for i := 0; i < 3; i++ {
		h.Add(models.Bar{Timestamp: start.Add(time.Duration(i) * time.Minute)})
	}

	cache.Get(ind, h.Bars())
	cache.Get(ind, h.Bars())
	if ind.calls != 1 {
		t.Fatalf("calls = %d after repeated Get, want 1", ind.calls)
	}

	// Advancing the rolling window keeps the length at 3 but moves the
	// last timestamp, so the memo must miss.
	h.Add(models.Bar{Timestamp: start.Add(3 * time.Minute)})
	cache.Get(ind, h.Bars())
	if ind.calls != 2 {
		t.Fatalf("calls = %d after window advance, want 2", ind.calls)
	}

	cache.Reset()
	cache.Get(ind, h.Bars())
	if ind.calls != 3 {
		t.Fatalf("calls = %d after Reset, want 3", ind.calls)
	}
}

func TestBuilderSnapshotFlags(t *testing.T) {
	builder := NewBuilder(DefaultSnapshotConfig())

	if snap := builder.Compute(nil); snap != nil {
		t.Fatal("expected nil snapshot for empty history")
	}

	short := builder.Compute(seriesBars(5))
	if short.HasTrend || short.HasRSI || short.HasMACD || short.HasBollinger {
		t.Errorf("flags set on 5 bars: %+v", short)
	}
	if short.HasATR {
		t.Error("HasATR set below the ATR warmup")
	}

	full := builder.Compute(seriesBars(60))
	if !full.HasTrend || !full.HasRSI || !full.HasMACD || !full.HasBollinger || !full.HasATR || !full.HasVolume {
		t.Fatalf("flags missing on 60 bars: %+v", full)
	}
	if full.FastEMA <= full.SlowEMA {
		t.Errorf("rising series: fast EMA %v should lead slow EMA %v", full.FastEMA, full.SlowEMA)
	}
	if full.BollingerLower > full.BollingerMiddle || full.BollingerMiddle > full.BollingerUpper {
		t.Errorf("band ordering violated: %v / %v / %v",
			full.BollingerLower, full.BollingerMiddle, full.BollingerUpper)
	}
	if full.ATR <= 0 {
		t.Errorf("ATR = %v, want > 0", full.ATR)
	}
	if full.AvgVolume != 1000 {
		t.Errorf("AvgVolume = %v, want 1000", full.AvgVolume)
	}
}
