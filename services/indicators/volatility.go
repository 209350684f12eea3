package indicators

import "math"

// BandsResult holds Bollinger Band lines aligned to the input.
type BandsResult struct {
	Upper    []float64
	Middle   []float64
	Lower    []float64
	Width    []float64 // (upper-lower)/middle*100
	PercentB []float64 // (close-lower)/(upper-lower)
}

// Bollinger computes SMA(period) ± multiplier × population standard deviation.
func Bollinger(closes []float64, period int, multiplier float64) BandsResult {
	n := len(closes)
	res := BandsResult{
		Upper: nanSlice(n), Middle: SMA(closes, period), Lower: nanSlice(n),
		Width: nanSlice(n), PercentB: nanSlice(n),
	}

	for i := 0; i < n; i++ {
		mid := res.Middle[i]
		if math.IsNaN(mid) {
			continue
		}
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mid
			variance += d * d
		}
		band := multiplier * math.Sqrt(variance/float64(period))
		res.Upper[i] = mid + band
		res.Lower[i] = mid - band

		if mid == 0 {
			res.Width[i] = 0
		} else {
			res.Width[i] = (res.Upper[i] - res.Lower[i]) / mid * 100
		}
		if spread := res.Upper[i] - res.Lower[i]; spread == 0 {
			res.PercentB[i] = 0.5
		} else {
			res.PercentB[i] = (closes[i] - res.Lower[i]) / spread
		}
	}
	return res
}

// TrueRange uses the previous close; index 0 has no true range.
func TrueRange(s Series) []float64 {
	tr := nanSlice(s.Len())
	for i := 1; i < s.Len(); i++ {
		prevClose := s.Close[i-1]
		tr[i] = math.Max(s.High[i]-s.Low[i],
			math.Max(math.Abs(s.High[i]-prevClose), math.Abs(s.Low[i]-prevClose)))
	}
	return tr
}

// ATR seeds with the mean of the first period true ranges (index period) and
// then applies Wilder smoothing ((period-1)*prev + TR)/period.
func ATR(s Series, period int) []float64 {
	n := s.Len()
	result := nanSlice(n)
	if period <= 0 || n < period+1 {
		return result
	}

	tr := TrueRange(s)
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += tr[i]
	}
	atr /= float64(period)
	result[period] = atr

	p := float64(period)
	for i := period + 1; i < n; i++ {
		atr = (atr*(p-1) + tr[i]) / p
		result[i] = atr
	}
	return result
}
