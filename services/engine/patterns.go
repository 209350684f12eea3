package engine

// patternTable maps pattern names onto the concrete condition they stand
// for. Technical entries default to "equal 1" so event indicators fire on
// a hit; parameters supplied on the pattern override the table's.
var patternTable = map[string]Condition{
	"gap_up":                  technical(IndicatorGap, Params{"direction": "up"}),
	"gap_down":                technical(IndicatorGap, Params{"direction": "down"}),
	"day_trade_gap_up":        technical(IndicatorDayTradingSignal, Params{"gapDirection": "up"}),
	"day_trade_gap_down":      technical(IndicatorDayTradingSignal, Params{"gapDirection": "down"}),
	"obv_positive_divergence": technical(IndicatorOBV, Params{"valueType": "divergence", "direction": "positive"}),
	"obv_negative_divergence": technical(IndicatorOBV, Params{"valueType": "divergence", "direction": "negative"}),
	"double_bottom":           technical(IndicatorDoubleBottom, nil),
	"macd_bullish_crossover":  technical(IndicatorMACD, Params{"crossover": "bullish"}),
	"macd_bearish_crossover":  technical(IndicatorMACD, Params{"crossover": "bearish"}),
	"golden_cross":            technical(IndicatorMARelative, Params{"fastPeriod": 50, "slowPeriod": 200, "crossover": "above"}),
	"death_cross":             technical(IndicatorMARelative, Params{"fastPeriod": 50, "slowPeriod": 200, "crossover": "below"}),
	"price_cross_above_ma":    technical(IndicatorMARelative, Params{"crossover": "above"}),
	"price_cross_below_ma":    technical(IndicatorMARelative, Params{"crossover": "below"}),
	"bollinger_breakout":      technical(IndicatorBollinger, Params{"position": "above_upper"}),
	"bollinger_oversold":      technical(IndicatorBollinger, Params{"position": "below_lower"}),
	"bollinger_squeeze":       TechnicalCondition{Indicator: IndicatorBollinger, Operator: OpLessThan, Value: 5, Params: Params{"valueType": "width"}},
	"rsi_oversold":            TechnicalCondition{Indicator: IndicatorRSI, Operator: OpLessThan, Value: 30},
	"rsi_overbought":          TechnicalCondition{Indicator: IndicatorRSI, Operator: OpGreaterThan, Value: 70},
	"three_up_days":           ConsecutiveCondition{Days: 3, Direction: DirectionUp},
	"three_down_days":         ConsecutiveCondition{Days: 3, Direction: DirectionDown},
}

func technical(ind Indicator, p Params) TechnicalCondition {
	return TechnicalCondition{Indicator: ind, Operator: OpEqual, Value: 1, Params: p}
}

// ResolvePattern returns the condition a pattern stands for.
func ResolvePattern(p PatternCondition) (Condition, bool) {
	base, ok := patternTable[p.Pattern]
	if !ok {
		return nil, false
	}
	switch c := base.(type) {
	case TechnicalCondition:
		c.Params = c.Params.merge(p.Params)
		if p.Params.Has("value") {
			c.Value = p.Params.Float("value", c.Value)
		}
		return c, true
	case ConsecutiveCondition:
		c.Days = p.Params.Int("days", c.Days)
		return c, true
	}
	return base, true
}

// resolve unwraps pattern conditions. The bool is false for unknown patterns.
func resolve(c Condition) (Condition, bool) {
	if p, ok := c.(PatternCondition); ok {
		return ResolvePattern(p)
	}
	return c, c != nil
}

// IsDayTrade reports whether c resolves to an intraday gap signal. Such
// actions size and fill at the open and are flattened at the close.
func IsDayTrade(c Condition) bool {
	r, ok := resolve(c)
	if !ok {
		return false
	}
	tc, ok := r.(TechnicalCondition)
	return ok && tc.Indicator == IndicatorDayTradingSignal
}

// PatternNames lists the known patterns.
func PatternNames() []string {
	names := make([]string, 0, len(patternTable))
	for name := range patternTable {
		names = append(names, name)
	}
	return names
}
