package indicators

import (
	"fmt"

	"algotrader/internal/models"
)

// MFI calculates the Money Flow Index.
type MFI struct {
	period int
}

// NewMFI creates a new MFI indicator.
func NewMFI(period int) *MFI {
	return &MFI{period: period}
}

func (m *MFI) Name() string {
	return fmt.Sprintf("MFI_%d", m.period)
}

// Period returns the warmup length; one extra bar is needed for the first
// typical-price comparison.
func (m *MFI) Period() int {
	return m.period + 1
}

func (m *MFI) Calculate(bars []models.Bar) []float64 {
	if m.period <= 0 || len(bars) < m.period+1 {
		return nil
	}

	n := len(bars)
	rawMF := make([]float64, n)
	tp := make([]float64, n)
	for i := range bars {
		tp[i] = typicalPrice(bars[i])
		rawMF[i] = tp[i] * bars[i].Volume
	}

	result := make([]float64, 0, n-m.period)
	for i := m.period; i < n; i++ {
		var positiveMF, negativeMF float64
		for j := i - m.period + 1; j <= i; j++ {
			if tp[j] > tp[j-1] {
				positiveMF += rawMF[j]
			} else if tp[j] < tp[j-1] {
				negativeMF += rawMF[j]
			}
		}

		if negativeMF == 0 {
			result = append(result, 100)
		} else {
			ratio := positiveMF / negativeMF
			result = append(result, 100-(100/(1+ratio)))
		}
	}

	return result
}

// VolumeProfileResult holds the aggregated volume-at-price distribution.
type VolumeProfileResult struct {
	PriceLevels []float64
	Volumes     []float64
	POC         float64 // Point of Control (price level with highest volume)
	VAH         float64 // Value Area High
	VAL         float64 // Value Area Low
}

// VolumeProfile aggregates traded volume into price bins.
type VolumeProfile struct {
	numBins int
}

// NewVolumeProfile creates a new Volume Profile calculator.
func NewVolumeProfile(numBins int) *VolumeProfile {
	return &VolumeProfile{numBins: numBins}
}

func (v *VolumeProfile) Name() string {
	return fmt.Sprintf("VolumeProfile_%d", v.numBins)
}

func (v *VolumeProfile) Period() int {
	return 1
}

// CalculateProfile distributes each bar's volume at its typical price and
// returns the point of control plus the 70% value area around it.
func (v *VolumeProfile) CalculateProfile(bars []models.Bar) *VolumeProfileResult {
	if len(bars) == 0 || v.numBins <= 0 {
		return nil
	}

	maxPrice := highest(highPrices(bars))
	minPrice := lowest(lowPrices(bars))

	if maxPrice == minPrice {
		return &VolumeProfileResult{
			PriceLevels: []float64{maxPrice},
			Volumes:     []float64{bars[0].Volume},
			POC:         maxPrice,
			VAH:         maxPrice,
			VAL:         minPrice,
		}
	}

	binSize := (maxPrice - minPrice) / float64(v.numBins)
	priceLevels := make([]float64, v.numBins)
	volumes := make([]float64, v.numBins)
	for i := 0; i < v.numBins; i++ {
		priceLevels[i] = minPrice + float64(i)*binSize + binSize/2
	}

	for _, b := range bars {
		idx := int((typicalPrice(b) - minPrice) / binSize)
		if idx >= v.numBins {
			idx = v.numBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		volumes[idx] += b.Volume
	}

	pocIdx := 0
	for i, vol := range volumes {
		if vol > volumes[pocIdx] {
			pocIdx = i
		}
	}

	var totalVol float64
	for _, vol := range volumes {
		totalVol += vol
	}
	targetVol := totalVol * 0.7

	// Expand around the POC until the value area captures 70% of volume.
	vahIdx, valIdx := pocIdx, pocIdx
	vaVol := volumes[pocIdx]
	for vaVol < targetVol && (vahIdx < v.numBins-1 || valIdx > 0) {
		var upperVol, lowerVol float64
		if vahIdx < v.numBins-1 {
			upperVol = volumes[vahIdx+1]
		}
		if valIdx > 0 {
			lowerVol = volumes[valIdx-1]
		}

		if upperVol >= lowerVol && vahIdx < v.numBins-1 {
			vahIdx++
			vaVol += volumes[vahIdx]
		} else if valIdx > 0 {
			valIdx--
			vaVol += volumes[valIdx]
		} else {
			break
		}
	}

	return &VolumeProfileResult{
		PriceLevels: priceLevels,
		Volumes:     volumes,
		POC:         priceLevels[pocIdx],
		VAH:         priceLevels[vahIdx],
		VAL:         priceLevels[valIdx],
	}
}
