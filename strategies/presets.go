package strategies

import (
	"errors"
	"fmt"
	"sort"

	"strategy-backtester/services/engine"
)

var ErrUnknownPreset = errors.New("unknown preset")

// Preset is a named strategy template without universe or time range.
type Preset struct {
	Name        string
	Description string
	Actions     func() []engine.StrategyAction
}

var presets = map[string]Preset{
	"dip_buyer": {
		Name:        "dip_buyer",
		Description: "Buy $1,000 after a daily drop of more than 2%, sell $1,000 after a 3% rise",
		Actions: func() []engine.StrategyAction {
			return []engine.StrategyAction{
				{
					Type:      engine.ActionBuy,
					Condition: engine.SimpleCondition{Metric: engine.MetricPercentChange, Operator: engine.OpLessThan, Value: -2},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.FixedAmount(1000),
				},
				{
					Type:      engine.ActionSell,
					Condition: engine.SimpleCondition{Metric: engine.MetricPercentChange, Operator: engine.OpGreaterThan, Value: 3},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.FixedAmount(1000),
				},
			}
		},
	},
	"momentum_fade": {
		Name:        "momentum_fade",
		Description: "Short 10 shares after three up days, cover after three down days",
		Actions: func() []engine.StrategyAction {
			return []engine.StrategyAction{
				{
					Type:      engine.ActionShort,
					Condition: engine.ConsecutiveCondition{Days: 3, Direction: engine.DirectionUp},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.Shares(10),
				},
				{
					Type:      engine.ActionBuy,
					Condition: engine.ConsecutiveCondition{Days: 3, Direction: engine.DirectionDown},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.Shares(10),
				},
			}
		},
	},
	"gap_down_day_trader": {
		Name:        "gap_down_day_trader",
		Description: "Buy 10% of the portfolio at the open after a gap down of 2% or more, flat by the close",
		Actions: func() []engine.StrategyAction {
			return []engine.StrategyAction{
				{
					Type:      engine.ActionBuy,
					Condition: engine.PatternCondition{Pattern: "day_trade_gap_down", Params: engine.Params{"minGapPercent": 2}},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.Percentage(10),
				},
			}
		},
	},
	"rsi_reversal": {
		Name:        "rsi_reversal",
		Description: "Buy 5% when RSI(14) is below 30, sell 5% when above 70",
		Actions: func() []engine.StrategyAction {
			return []engine.StrategyAction{
				{
					Type:      engine.ActionBuy,
					Condition: engine.TechnicalCondition{Indicator: engine.IndicatorRSI, Operator: engine.OpLessThan, Value: 30, Params: engine.Params{"period": 14}},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.Percentage(5),
				},
				{
					Type:      engine.ActionSell,
					Condition: engine.TechnicalCondition{Indicator: engine.IndicatorRSI, Operator: engine.OpGreaterThan, Value: 70, Params: engine.Params{"period": 14}},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.Percentage(5),
				},
			}
		},
	},
	"macd_crossover": {
		Name:        "macd_crossover",
		Description: "Buy 20 shares on a bullish MACD crossover, sell 20 on a bearish one",
		Actions: func() []engine.StrategyAction {
			return []engine.StrategyAction{
				{
					Type:      engine.ActionBuy,
					Condition: engine.PatternCondition{Pattern: "macd_bullish_crossover"},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.Shares(20),
				},
				{
					Type:      engine.ActionSell,
					Condition: engine.PatternCondition{Pattern: "macd_bearish_crossover"},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.Shares(20),
				},
			}
		},
	},
	"bollinger_bounce": {
		Name:        "bollinger_bounce",
		Description: "Buy $500 below the lower band, sell $500 above the upper band",
		Actions: func() []engine.StrategyAction {
			return []engine.StrategyAction{
				{
					Type:      engine.ActionBuy,
					Condition: engine.PatternCondition{Pattern: "bollinger_oversold"},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.FixedAmount(500),
				},
				{
					Type:      engine.ActionSell,
					Condition: engine.PatternCondition{Pattern: "bollinger_breakout"},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.FixedAmount(500),
				},
			}
		},
	},
	"double_bottom_breakout": {
		Name:        "double_bottom_breakout",
		Description: "Buy 15% on a confirmed double bottom",
		Actions: func() []engine.StrategyAction {
			return []engine.StrategyAction{
				{
					Type:      engine.ActionBuy,
					Condition: engine.PatternCondition{Pattern: "double_bottom"},
					Timeframe: engine.TimeframeDaily,
					Amount:    engine.Percentage(15),
				},
			}
		},
	},
	"weekly_rebalance": {
		Name:        "weekly_rebalance",
		Description: "On the first trading day of each week, buy 2% if the week fell more than 3%",
		Actions: func() []engine.StrategyAction {
			return []engine.StrategyAction{
				{
					Type:      engine.ActionBuy,
					Condition: engine.SimpleCondition{Metric: engine.MetricPercentChange, Operator: engine.OpLessThan, Value: -3},
					Timeframe: engine.TimeframeWeekly,
					Amount:    engine.Percentage(2),
				},
			}
		},
	},
}

// PresetNames returns the registered names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Presets returns every preset sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, n := range PresetNames() {
		out = append(out, presets[n])
	}
	return out
}

// FromPreset builds a strategy from a preset. Each call returns fresh
// action slices.
func FromPreset(name string, symbols []string, tr engine.TimeRange) (engine.Strategy, error) {
	p, ok := presets[name]
	if !ok {
		return engine.Strategy{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return engine.Strategy{
		Name:      p.Name,
		Actions:   p.Actions(),
		Universe:  engine.Universe{Symbols: NormalizeSymbols(symbols)},
		TimeRange: tr,
	}, nil
}
