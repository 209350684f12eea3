package indicators

import "math"

// GapDirection tags a detected opening gap.
type GapDirection string

const (
	GapUp   GapDirection = "up"
	GapDown GapDirection = "down"
)

// Gap is an opening gap versus the prior close.
type Gap struct {
	Index     int
	Percent   float64
	Direction GapDirection
}

// GapPercent is (open-prevClose)/prevClose*100, NaN when prevClose is zero.
func GapPercent(prevClose, open float64) float64 {
	return PercentChange(prevClose, open)
}

// DetectGap reports the gap at bar i when |gap| >= minPercent.
func DetectGap(s Series, i int, minPercent float64) (Gap, bool) {
	if i < 1 || i >= s.Len() {
		return Gap{}, false
	}
	pct := GapPercent(s.Close[i-1], s.Open[i])
	if math.IsNaN(pct) || math.Abs(pct) < minPercent {
		return Gap{}, false
	}
	dir := GapUp
	if pct < 0 {
		dir = GapDown
	}
	return Gap{Index: i, Percent: pct, Direction: dir}, true
}

// Gaps scans every bar for gaps of at least minPercent.
func Gaps(s Series, minPercent float64) []Gap {
	var out []Gap
	for i := 1; i < s.Len(); i++ {
		if g, ok := DetectGap(s, i, minPercent); ok {
			out = append(out, g)
		}
	}
	return out
}

const (
	doubleBottomMinSeparation = 10
	doubleBottomMinRisePct    = 5.0
)

// DoubleBottom describes a confirmed double-bottom at the latest bar.
type DoubleBottom struct {
	FirstIndex   int
	SecondIndex  int
	FirstLow     float64
	SecondLow    float64
	NecklineHigh float64
}

// DetectDoubleBottom scans the trailing lookback bars for local lows (strictly
// below both neighbours). A pair at least 10 bars apart, within maxVariation
// percent of each other, with an intervening rise of 5% above the first low and
// a latest close above that intervening high, confirms the pattern. The first
// qualifying pair wins.
func DetectDoubleBottom(s Series, lookback int, maxVariation float64) (DoubleBottom, bool) {
	n := s.Len()
	if n < 3 || lookback < 3 {
		return DoubleBottom{}, false
	}
	start := n - lookback
	if start < 0 {
		start = 0
	}

	var minima []int
	for i := start + 1; i < n-1; i++ {
		if s.Low[i] < s.Low[i-1] && s.Low[i] < s.Low[i+1] {
			minima = append(minima, i)
		}
	}

	current := s.Close[n-1]
	for a := 0; a < len(minima); a++ {
		for b := a + 1; b < len(minima); b++ {
			i, j := minima[a], minima[b]
			if j-i < doubleBottomMinSeparation {
				continue
			}
			first, second := s.Low[i], s.Low[j]
			if first <= 0 {
				continue
			}
			if math.Abs(second-first)/first*100 > maxVariation {
				continue
			}
			high := math.Inf(-1)
			for k := i + 1; k < j; k++ {
				high = math.Max(high, s.High[k])
			}
			if (high-first)/first*100 < doubleBottomMinRisePct {
				continue
			}
			if current > high {
				return DoubleBottom{
					FirstIndex: i, SecondIndex: j,
					FirstLow: first, SecondLow: second, NecklineHigh: high,
				}, true
			}
		}
	}
	return DoubleBottom{}, false
}
