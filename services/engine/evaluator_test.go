package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	assert.True(t, Compare(5, OpGreaterThan, 4))
	assert.False(t, Compare(4, OpGreaterThan, 4))
	assert.True(t, Compare(4, OpGreaterThanEqual, 4))
	assert.True(t, Compare(-6, OpLessThan, -5))
	assert.True(t, Compare(-5, OpLessThanEqual, -5))
	assert.True(t, Compare(1, OpEqual, 1))
	assert.False(t, Compare(1, "between", 1))
	assert.False(t, Compare(math.NaN(), OpLessThan, 100))
	assert.False(t, Compare(math.Inf(1), OpGreaterThan, 0))
}

func TestConsecutiveBoundaries(t *testing.T) {
	ev := NewEvaluator(nil)
	up := ConsecutiveCondition{Days: 3, Direction: DirectionUp}

	assert.False(t, ev.Evaluate(up, EvalContext{History: flatBars(10, 11)}), "two bars is insufficient")
	assert.True(t, ev.Evaluate(up, EvalContext{History: flatBars(10, 11, 12)}))
	assert.False(t, ev.Evaluate(up, EvalContext{History: flatBars(10, 12, 11)}))
	assert.True(t, ev.Evaluate(up, EvalContext{History: flatBars(50, 10, 11, 12)}), "only trailing bars count")

	down := ConsecutiveCondition{Days: 2, Direction: DirectionDown}
	assert.True(t, ev.Evaluate(down, EvalContext{History: flatBars(12, 11)}))
	assert.False(t, ev.Evaluate(down, EvalContext{History: flatBars(11, 11)}))

	flat := ConsecutiveCondition{Days: 3, Direction: DirectionUnchanged}
	assert.True(t, ev.Evaluate(flat, EvalContext{History: flatBars(7, 7, 7)}))
	assert.False(t, ev.Evaluate(ConsecutiveCondition{Days: 1, Direction: "sideways"}, EvalContext{History: flatBars(7)}))
}

func TestUnknownConditionsAreFalse(t *testing.T) {
	ev := NewEvaluator(nil)
	hist := flatBars(1, 2, 3, 4, 5)
	assert.False(t, ev.Evaluate(PatternCondition{Pattern: "head_and_shoulders"}, EvalContext{History: hist}))
	assert.False(t, ev.Evaluate(TechnicalCondition{Indicator: "ichimoku", Operator: OpGreaterThan}, EvalContext{History: hist}))
	assert.False(t, ev.Evaluate(nil, EvalContext{History: hist}))
	assert.False(t, ev.Evaluate(SimpleCondition{Metric: MetricPrice, Operator: OpGreaterThan}, EvalContext{Value: math.NaN()}))
}

func TestEveryIndicatorIsRegistered(t *testing.T) {
	for _, ind := range []Indicator{
		IndicatorRSI, IndicatorMACD, IndicatorMARelative, IndicatorBollinger,
		IndicatorVolumeChange, IndicatorOBV, IndicatorATR, IndicatorMFI,
		IndicatorGap, IndicatorDoubleBottom, IndicatorMeanReversion, IndicatorDayTradingSignal,
	} {
		assert.True(t, ind.Known(), ind)
		assert.Positive(t, RequiredHistory(TechnicalCondition{Indicator: ind}), ind)
	}
}

func TestRequiredHistoryDefaults(t *testing.T) {
	assert.Equal(t, 28, RequiredHistory(TechnicalCondition{Indicator: IndicatorRSI}))
	assert.Equal(t, 20, RequiredHistory(TechnicalCondition{Indicator: IndicatorRSI, Params: Params{"period": 10}}))
	assert.Equal(t, 36, RequiredHistory(TechnicalCondition{Indicator: IndicatorMACD}))
	assert.Equal(t, 21, RequiredHistory(TechnicalCondition{Indicator: IndicatorMARelative}))
	assert.Equal(t, 0, RequiredHistory(TechnicalCondition{Indicator: "nope"}))
}

func TestPatternResolution(t *testing.T) {
	c, ok := ResolvePattern(PatternCondition{Pattern: "day_trade_gap_down", Params: Params{"minGapPercent": 4}})
	require.True(t, ok)
	tc := c.(TechnicalCondition)
	assert.Equal(t, IndicatorDayTradingSignal, tc.Indicator)
	assert.Equal(t, "down", tc.Params.String("gapDirection", ""))
	assert.Equal(t, 4.0, tc.Params.Float("minGapPercent", 0))
	assert.Equal(t, OpEqual, tc.Operator)
	assert.Equal(t, 1.0, tc.Value)

	// table entries are not mutated by overrides
	base, _ := ResolvePattern(PatternCondition{Pattern: "day_trade_gap_down"})
	assert.False(t, base.(TechnicalCondition).Params.Has("minGapPercent"))

	c, ok = ResolvePattern(PatternCondition{Pattern: "three_up_days", Params: Params{"days": 5}})
	require.True(t, ok)
	assert.Equal(t, ConsecutiveCondition{Days: 5, Direction: DirectionUp}, c)

	_, ok = ResolvePattern(PatternCondition{Pattern: "cup_and_handle"})
	assert.False(t, ok)
}

func TestIsDayTrade(t *testing.T) {
	assert.True(t, IsDayTrade(PatternCondition{Pattern: "day_trade_gap_up"}))
	assert.True(t, IsDayTrade(TechnicalCondition{Indicator: IndicatorDayTradingSignal}))
	assert.False(t, IsDayTrade(PatternCondition{Pattern: "gap_up"}))
	assert.False(t, IsDayTrade(SimpleCondition{}))
	assert.False(t, IsDayTrade(nil))
}

func TestGapEvents(t *testing.T) {
	ev := NewEvaluator(nil)
	hist := flatBars(100, 100)
	hist[1].Open = 96.5

	assert.True(t, ev.Evaluate(PatternCondition{Pattern: "gap_down"}, EvalContext{History: hist}))
	assert.False(t, ev.Evaluate(PatternCondition{Pattern: "gap_up"}, EvalContext{History: hist}))
	assert.True(t, ev.Evaluate(PatternCondition{Pattern: "day_trade_gap_down"}, EvalContext{History: hist}))
	assert.False(t, ev.Evaluate(PatternCondition{Pattern: "day_trade_gap_down", Params: Params{"minGapPercent": 4}}, EvalContext{History: hist}))

	// scalar form compares the gap percent
	gap := TechnicalCondition{Indicator: IndicatorGap, Operator: OpLessThan, Value: -3}
	assert.True(t, ev.Evaluate(gap, EvalContext{History: hist}))
}

func TestRSIThresholds(t *testing.T) {
	ev := NewEvaluator(nil)
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	hist := flatBars(closes...)
	assert.True(t, ev.Evaluate(PatternCondition{Pattern: "rsi_oversold"}, EvalContext{History: hist}))
	assert.False(t, ev.Evaluate(PatternCondition{Pattern: "rsi_overbought"}, EvalContext{History: hist}))
}

func TestBollingerPosition(t *testing.T) {
	ev := NewEvaluator(nil)
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i%2)
	}
	closes[19] = 80
	hist := flatBars(closes...)
	assert.True(t, ev.Evaluate(PatternCondition{Pattern: "bollinger_oversold"}, EvalContext{History: hist}))
	assert.False(t, ev.Evaluate(PatternCondition{Pattern: "bollinger_breakout"}, EvalContext{History: hist}))
}

func TestDescribeRendersParams(t *testing.T) {
	assert.Equal(t, "pattern day_trade_gap_down minGapPercent=3",
		PatternCondition{Pattern: "day_trade_gap_down", Params: Params{"minGapPercent": 3}}.Describe())
	assert.Equal(t, "rsi less_than 30 period=14",
		TechnicalCondition{Indicator: IndicatorRSI, Operator: OpLessThan, Value: 30, Params: Params{"period": 14.0}}.Describe())
	assert.Equal(t, "macd greater_than 0 fast=12 signal=9 slow=26 type=signal_crossover",
		TechnicalCondition{Indicator: IndicatorMACD, Operator: OpGreaterThan, Params: Params{
			"slow": 26, "fast": 12.0, "signal": "9", "type": "signal_crossover",
		}}.Describe())
	assert.Equal(t, "pattern double_bottom", PatternCondition{Pattern: "double_bottom"}.Describe())
}
