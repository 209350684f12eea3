// Package indicators computes technical indicators over chronologically ordered
// daily series. Per-bar outputs have the same length as the input; bars without
// enough lookback hold NaN.
package indicators

import "math"

// Series is a column view of OHLCV bars.
type Series struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Len returns the number of bars in the series.
func (s Series) Len() int { return len(s.Close) }

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Last returns the final value of a per-bar series, or NaN when empty.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// Prev returns the value before the final one, or NaN.
func Prev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return values[len(values)-2]
}

// Valid reports whether v is a usable indicator value.
func Valid(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// SMA is the arithmetic mean of the trailing period values.
func SMA(values []float64, period int) []float64 {
	result := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return result
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

// EMA seeds with the SMA of the first period values, then applies
// ema[i] = (v[i]-ema[i-1])*k + ema[i-1] with k = 2/(period+1).
func EMA(values []float64, period int) []float64 {
	result := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return result
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	result[period-1] = seed / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		result[i] = (values[i]-result[i-1])*k + result[i-1]
	}
	return result
}

// MeanReversion is the percent deviation of each close from its SMA(period).
func MeanReversion(closes []float64, period int) []float64 {
	sma := SMA(closes, period)
	result := nanSlice(len(closes))
	for i, m := range sma {
		if math.IsNaN(m) {
			continue
		}
		if m == 0 {
			result[i] = 0
			continue
		}
		result[i] = (closes[i] - m) / m * 100
	}
	return result
}

// PercentChange returns (to-from)/from*100, NaN when from is zero.
func PercentChange(from, to float64) float64 {
	if from == 0 || !Valid(from) || !Valid(to) {
		return math.NaN()
	}
	return (to - from) / from * 100
}
