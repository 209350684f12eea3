package indicators

import "math"

// OBV is the on-balance volume running sum, seeded at 0 on the first bar.
func OBV(closes, volumes []float64) []float64 {
	obv := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv[i] = obv[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			obv[i] = obv[i-1] - volumes[i]
		default:
			obv[i] = obv[i-1]
		}
	}
	return obv
}

// OBVChange is the percent change of OBV over period bars. OBV starts at zero,
// so a zero base is measured against the volume traded inside the window.
func OBVChange(closes, volumes []float64, period int) []float64 {
	obv := OBV(closes, volumes)
	result := nanSlice(len(closes))
	if period <= 0 {
		return result
	}
	for i := period; i < len(closes); i++ {
		base := math.Abs(obv[i-period])
		if base == 0 {
			for j := i - period + 1; j <= i; j++ {
				base += volumes[j]
			}
		}
		if base == 0 {
			result[i] = 0
			continue
		}
		result[i] = (obv[i] - obv[i-period]) / base * 100
	}
	return result
}

// OBVDivergence is OBV percent change minus price percent change over period.
// Positive values mean volume is confirming upward pressure faster than price.
func OBVDivergence(closes, volumes []float64, period int) []float64 {
	obvChange := OBVChange(closes, volumes, period)
	result := nanSlice(len(closes))
	for i := period; i < len(closes) && period > 0; i++ {
		priceChange := PercentChange(closes[i-period], closes[i])
		if math.IsNaN(priceChange) || math.IsNaN(obvChange[i]) {
			continue
		}
		result[i] = obvChange[i] - priceChange
	}
	return result
}

// VolumeChange compares each volume with the average of the prior period bars.
func VolumeChange(volumes []float64, period int) []float64 {
	result := nanSlice(len(volumes))
	if period <= 0 {
		return result
	}
	for i := period; i < len(volumes); i++ {
		avg := 0.0
		for j := i - period; j < i; j++ {
			avg += volumes[j]
		}
		avg /= float64(period)
		if avg == 0 {
			result[i] = 0
			continue
		}
		result[i] = (volumes[i] - avg) / avg * 100
	}
	return result
}
