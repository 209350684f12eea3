package indicators

import "math"

// rsiLossFloor keeps RS finite when a window has no losses.
const rsiLossFloor = 0.001

// RSI uses Wilder smoothing. The first value (index period) averages the first
// period changes; later values use (avg*(period-1)+x)/period.
func RSI(closes []float64, period int) []float64 {
	result := nanSlice(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return result
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	result[period] = rsiValue(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		result[i] = rsiValue(avgGain, avgLoss)
	}
	return result
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss < rsiLossFloor {
		avgLoss = rsiLossFloor
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the three MACD lines, aligned to the input.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(fast)-EMA(slow). The signal EMA runs only over the
// contiguous valid MACD values and is re-aligned afterwards.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	n := len(closes)
	res := MACDResult{MACD: nanSlice(n), Signal: nanSlice(n), Histogram: nanSlice(n)}
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return res
	}

	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	firstValid := -1
	for i := 0; i < n; i++ {
		if math.IsNaN(fastEMA[i]) || math.IsNaN(slowEMA[i]) {
			continue
		}
		res.MACD[i] = fastEMA[i] - slowEMA[i]
		if firstValid < 0 {
			firstValid = i
		}
	}
	if firstValid < 0 {
		return res
	}

	signalLine := EMA(res.MACD[firstValid:], signal)
	for i, v := range signalLine {
		idx := firstValid + i
		res.Signal[idx] = v
		if !math.IsNaN(v) {
			res.Histogram[idx] = res.MACD[idx] - v
		}
	}
	return res
}

// MFI is the money flow index. Flow direction follows the typical price
// (high+low+close)/3 versus the prior bar; MFI is 100 when negative flow is 0.
func MFI(s Series, period int) []float64 {
	n := s.Len()
	result := nanSlice(n)
	if period <= 0 || n < period+1 {
		return result
	}

	typical := make([]float64, n)
	for i := 0; i < n; i++ {
		typical[i] = (s.High[i] + s.Low[i] + s.Close[i]) / 3
	}

	for i := period; i < n; i++ {
		pos, neg := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			flow := typical[j] * s.Volume[j]
			switch {
			case typical[j] > typical[j-1]:
				pos += flow
			case typical[j] < typical[j-1]:
				neg += flow
			}
		}
		if neg == 0 {
			result[i] = 100
			continue
		}
		result[i] = 100 - 100/(1+pos/neg)
	}
	return result
}
