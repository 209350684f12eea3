package engine

import (
	"math"

	"strategy-backtester/services/indicators"
)

// Indicator names a technical indicator.
type Indicator string

const (
	IndicatorRSI              Indicator = "rsi"
	IndicatorMACD             Indicator = "macd"
	IndicatorMARelative       Indicator = "ma_relative"
	IndicatorBollinger        Indicator = "bbands"
	IndicatorVolumeChange     Indicator = "volume_change"
	IndicatorOBV              Indicator = "obv"
	IndicatorATR              Indicator = "atr"
	IndicatorMFI              Indicator = "mfi"
	IndicatorGap              Indicator = "gap"
	IndicatorDoubleBottom     Indicator = "double_bottom"
	IndicatorMeanReversion    Indicator = "mean_reversion"
	IndicatorDayTradingSignal Indicator = "day_trading_signal"
)

// Known reports whether the indicator has an evaluator.
func (i Indicator) Known() bool {
	_, ok := technicalRegistry[i]
	return ok
}

// technicalOutcome is either a scalar compared against the condition
// threshold, or a decided event that bypasses the comparison.
type technicalOutcome struct {
	value   float64
	decided bool
	hit     bool
}

func scalar(v float64) technicalOutcome { return technicalOutcome{value: v} }
func event(hit bool) technicalOutcome   { return technicalOutcome{decided: true, hit: hit} }

type indicatorDef struct {
	eval func(s indicators.Series, p Params) technicalOutcome
	// minimum bars in the history window before eval may run
	need func(p Params) int
}

var technicalRegistry = map[Indicator]indicatorDef{
	IndicatorRSI: {
		eval: func(s indicators.Series, p Params) technicalOutcome {
			return scalar(indicators.Last(indicators.RSI(s.Close, p.Int("period", 14))))
		},
		need: func(p Params) int { return 2 * p.Int("period", 14) },
	},
	IndicatorMACD: {
		eval: evalMACD,
		need: func(p Params) int {
			fast, slow, signal := p.Int("fastPeriod", 12), p.Int("slowPeriod", 26), p.Int("signalPeriod", 9)
			return max(max(fast, slow)+10, slow+signal)
		},
	},
	IndicatorMARelative: {
		eval: evalMARelative,
		need: func(p Params) int { return max(p.Int("period", 20), p.Int("slowPeriod", 0)) + 1 },
	},
	IndicatorBollinger: {
		eval: evalBollinger,
		need: func(p Params) int { return p.Int("period", 20) },
	},
	IndicatorVolumeChange: {
		eval: func(s indicators.Series, p Params) technicalOutcome {
			return scalar(indicators.Last(indicators.VolumeChange(s.Volume, p.Int("period", 20))))
		},
		need: func(p Params) int { return p.Int("period", 20) + 1 },
	},
	IndicatorOBV: {
		eval: evalOBV,
		need: func(p Params) int { return p.Int("period", 14) + 1 },
	},
	IndicatorATR: {
		eval: func(s indicators.Series, p Params) technicalOutcome {
			atr := indicators.Last(indicators.ATR(s, p.Int("period", 14)))
			if p.String("valueType", "") == "value" {
				return scalar(atr)
			}
			last := indicators.Last(s.Close)
			if last == 0 {
				return scalar(math.NaN())
			}
			return scalar(atr / last * 100)
		},
		need: func(p Params) int { return p.Int("period", 14) + 1 },
	},
	IndicatorMFI: {
		eval: func(s indicators.Series, p Params) technicalOutcome {
			return scalar(indicators.Last(indicators.MFI(s, p.Int("period", 14))))
		},
		need: func(p Params) int { return p.Int("period", 14) + 1 },
	},
	IndicatorGap: {
		eval: evalGap,
		need: func(Params) int { return 2 },
	},
	IndicatorDoubleBottom: {
		eval: func(s indicators.Series, p Params) technicalOutcome {
			_, ok := indicators.DetectDoubleBottom(s, p.Int("lookback", 30), p.Float("maxVariation", 3))
			return event(ok)
		},
		need: func(p Params) int { return p.Int("lookback", 30) },
	},
	IndicatorMeanReversion: {
		eval: func(s indicators.Series, p Params) technicalOutcome {
			return scalar(indicators.Last(indicators.MeanReversion(s.Close, p.Int("period", 20))))
		},
		need: func(p Params) int { return p.Int("period", 20) },
	},
	IndicatorDayTradingSignal: {
		eval: evalDayTradingSignal,
		need: func(Params) int { return 2 },
	},
}

// RequiredHistory is the number of bars c needs before it can be evaluated.
// Unknown indicators report zero.
func RequiredHistory(c TechnicalCondition) int {
	def, ok := technicalRegistry[c.Indicator]
	if !ok {
		return 0
	}
	return def.need(c.Params)
}

func evalMACD(s indicators.Series, p Params) technicalOutcome {
	res := indicators.MACD(s.Close, p.Int("fastPeriod", 12), p.Int("slowPeriod", 26), p.Int("signalPeriod", 9))
	cur, prev := indicators.Last(res.Histogram), indicators.Prev(res.Histogram)

	switch crossoverParam(p) {
	case "bullish", "above":
		return event(indicators.Valid(cur) && indicators.Valid(prev) && prev <= 0 && cur > 0)
	case "bearish", "below":
		return event(indicators.Valid(cur) && indicators.Valid(prev) && prev >= 0 && cur < 0)
	}
	switch p.String("valueType", "histogram") {
	case "macd":
		return scalar(indicators.Last(res.MACD))
	case "signal":
		return scalar(indicators.Last(res.Signal))
	}
	return scalar(cur)
}

// evalMARelative compares close against SMA(period), or SMA(fastPeriod)
// against SMA(slowPeriod) when slowPeriod is set.
func evalMARelative(s indicators.Series, p Params) technicalOutcome {
	var line, base []float64
	if p.Has("slowPeriod") {
		line = indicators.SMA(s.Close, p.Int("fastPeriod", 50))
		base = indicators.SMA(s.Close, p.Int("slowPeriod", 200))
	} else {
		line = s.Close
		base = indicators.SMA(s.Close, p.Int("period", 20))
	}
	cur, curBase := indicators.Last(line), indicators.Last(base)
	prev, prevBase := indicators.Prev(line), indicators.Prev(base)

	switch crossoverParam(p) {
	case "above", "bullish":
		return event(allValid(cur, curBase, prev, prevBase) && prev <= prevBase && cur > curBase)
	case "below", "bearish":
		return event(allValid(cur, curBase, prev, prevBase) && prev >= prevBase && cur < curBase)
	}
	if curBase == 0 {
		return scalar(math.NaN())
	}
	return scalar((cur - curBase) / curBase * 100)
}

func evalBollinger(s indicators.Series, p Params) technicalOutcome {
	mult := p.Float("multiplier", p.Float("stdDev", 2))
	bands := indicators.Bollinger(s.Close, p.Int("period", 20), mult)
	last := indicators.Last(s.Close)

	switch p.String("position", "") {
	case "above_upper":
		upper := indicators.Last(bands.Upper)
		return event(indicators.Valid(upper) && last > upper)
	case "below_lower":
		lower := indicators.Last(bands.Lower)
		return event(indicators.Valid(lower) && last < lower)
	}
	if p.String("valueType", "") == "width" {
		return scalar(indicators.Last(bands.Width))
	}
	return scalar(indicators.Last(bands.PercentB))
}

func evalOBV(s indicators.Series, p Params) technicalOutcome {
	period := p.Int("period", 14)
	if p.String("valueType", "") != "divergence" {
		return scalar(indicators.Last(indicators.OBVChange(s.Close, s.Volume, period)))
	}
	div := indicators.Last(indicators.OBVDivergence(s.Close, s.Volume, period))
	threshold := p.Float("threshold", 0)
	switch p.String("direction", "") {
	case "positive":
		return event(indicators.Valid(div) && div > threshold)
	case "negative":
		return event(indicators.Valid(div) && div < -threshold)
	}
	return scalar(div)
}

func evalGap(s indicators.Series, p Params) technicalOutcome {
	last := s.Len() - 1
	dir := p.String("direction", "")
	if dir == "" {
		if last < 1 {
			return scalar(math.NaN())
		}
		return scalar(indicators.GapPercent(s.Close[last-1], s.Open[last]))
	}
	return event(gapMatches(s, last, p.Float("minGapPercent", 2), dir))
}

func evalDayTradingSignal(s indicators.Series, p Params) technicalOutcome {
	dir := p.String("gapDirection", p.String("direction", ""))
	return event(gapMatches(s, s.Len()-1, p.Float("minGapPercent", 3), dir))
}

// gapMatches reports a gap at bar i of at least minPercent in dir. An
// empty or "any" direction matches both.
func gapMatches(s indicators.Series, i int, minPercent float64, dir string) bool {
	gap, ok := indicators.DetectGap(s, i, minPercent)
	if !ok {
		return false
	}
	switch dir {
	case "", "any", "both":
		return true
	case "up":
		return gap.Direction == indicators.GapUp
	case "down":
		return gap.Direction == indicators.GapDown
	}
	return false
}

func crossoverParam(p Params) string {
	return p.String("crossover", p.String("signalType", ""))
}

func allValid(vs ...float64) bool {
	for _, v := range vs {
		if !indicators.Valid(v) {
			return false
		}
	}
	return true
}

func seriesOf(bars []PriceBar) indicators.Series {
	s := indicators.Series{
		Open:   make([]float64, len(bars)),
		High:   make([]float64, len(bars)),
		Low:    make([]float64, len(bars)),
		Close:  make([]float64, len(bars)),
		Volume: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Open[i], s.High[i], s.Low[i], s.Close[i], s.Volume[i] = b.Open, b.High, b.Low, b.Close, b.Volume
	}
	return s
}
