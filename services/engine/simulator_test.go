package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunDipBuy(t *testing.T) {
	strategy := single("AAA", StrategyAction{
		Type:      ActionBuy,
		Condition: SimpleCondition{Metric: MetricPercentChange, Operator: OpLessThan, Value: -5},
		Timeframe: TimeframeDaily,
		Amount:    FixedAmount(100),
	})
	res := New(WithLogger(zaptest.NewLogger(t))).Run(strategy, map[string][]PriceBar{"AAA": flatBars(100, 94, 94)})

	require.Empty(t, res.Error)
	require.Len(t, res.Transactions, 1)
	tx := res.Transactions[0]
	assert.Equal(t, TxBuy, tx.Type)
	assert.Equal(t, 94.0, tx.Price)
	assert.InDelta(t, 1.0638, tx.Quantity, 1e-4)
	assert.Equal(t, flatBars(100, 94)[1].Date, tx.Date)
	assert.InDelta(t, 9900, res.Cash, 1e-9)
	assert.InDelta(t, 94.0, res.PositionAvgCost["AAA"], 1e-9)

	require.Len(t, res.ValueHistory, 3)
	assert.True(t, res.Metrics.ValuesConsistent)
	assert.InDelta(t, 0, res.Metrics.TotalReturn, 1e-9)
}

func TestRunConsecutiveUpOpensShort(t *testing.T) {
	strategy := single("AAA", StrategyAction{
		Type:      ActionSell,
		Condition: ConsecutiveCondition{Days: 3, Direction: DirectionUp},
		Amount:    FixedAmount(100),
	})
	bars := flatBars(10, 11, 12, 13)
	res := Run(strategy, map[string][]PriceBar{"AAA": bars})

	require.Len(t, res.Transactions, 1)
	tx := res.Transactions[0]
	assert.Equal(t, bars[3].Date, tx.Date)
	assert.Equal(t, TxShort, tx.Type)
	assert.InDelta(t, -100.0/13, res.Positions["AAA"], 1e-9)
	assert.InDelta(t, -100, res.PositionCost["AAA"], 1e-9)
	assert.InDelta(t, 10100, res.Cash, 1e-9)
}

func TestRunDayTradeGapDown(t *testing.T) {
	strategy := single("AAA", StrategyAction{
		Type:      ActionBuy,
		Condition: PatternCondition{Pattern: "day_trade_gap_down", Params: Params{"minGapPercent": 3}},
		Amount:    FixedAmount(200),
	})
	bars := flatBars(100, 100, 99)
	bars[2].Open = 96.5
	res := Run(strategy, map[string][]PriceBar{"AAA": bars})

	require.Len(t, res.Transactions, 2)
	entry, exit := res.Transactions[0], res.Transactions[1]

	assert.Equal(t, TxBuy, entry.Type)
	assert.Equal(t, 96.5, entry.Price)
	require.NotNil(t, entry.DayTrading)
	assert.True(t, entry.DayTrading.Entry)
	assert.Equal(t, "pattern day_trade_gap_down minGapPercent=3", entry.ConditionDetails)

	assert.Equal(t, TxSell, exit.Type)
	assert.Equal(t, 99.0, exit.Price)
	assert.Equal(t, entry.Date, exit.Date)
	require.NotNil(t, exit.DayTrading)
	assert.True(t, exit.DayTrading.EODExit)
	assert.Equal(t, 96.5, exit.DayTrading.EntryPrice)
	assert.InDelta(t, (99-96.5)*200/96.5, exit.DayTrading.RealizedPnL, 1e-9)

	assert.Equal(t, 0.0, res.Positions["AAA"])
	assert.Equal(t, 0.0, res.PositionCost["AAA"])
	assert.Equal(t, 0.0, res.PositionAvgCost["AAA"])
	assert.InDelta(t, 9800+200/96.5*99, res.Cash, 1e-9)
	assert.Equal(t, 1, res.Metrics.DayTrades)
	assert.Equal(t, 1, res.Metrics.DayTradeWins)
}

func TestRunShortDayTradeCoveredAtClose(t *testing.T) {
	strategy := single("AAA", StrategyAction{
		Type:      ActionShort,
		Condition: PatternCondition{Pattern: "day_trade_gap_up"},
		Amount:    FixedAmount(100),
	})
	bars := flatBars(100, 100, 102)
	bars[2].Open = 105
	res := Run(strategy, map[string][]PriceBar{"AAA": bars})

	require.Len(t, res.Transactions, 2)
	assert.Equal(t, TxShort, res.Transactions[0].Type)
	assert.Equal(t, TxCoverShort, res.Transactions[1].Type)
	assert.Equal(t, 0.0, res.Positions["AAA"])
	assert.InDelta(t, (105-102)*100/105.0, res.Transactions[1].DayTrading.RealizedPnL, 1e-9)
}

func TestRunShortDayTradeAddedToStillCovered(t *testing.T) {
	strategy := single("AAA",
		StrategyAction{
			Type:      ActionSell,
			Condition: PatternCondition{Pattern: "day_trade_gap_up"},
			Amount:    FixedAmount(100),
		},
		StrategyAction{
			Type:      ActionSell,
			Condition: SimpleCondition{Metric: MetricPercentChange, Operator: OpGreaterThan, Value: 1},
			Amount:    FixedAmount(50),
		},
	)
	bars := flatBars(100, 100, 102, 102)
	bars[2].Open = 105
	res := Run(strategy, map[string][]PriceBar{"AAA": bars})

	require.Len(t, res.Transactions, 3)
	assert.Equal(t, TxShort, res.Transactions[0].Type)
	assert.Equal(t, TxShort, res.Transactions[1].Type)
	cover := res.Transactions[2]
	assert.Equal(t, TxCoverShort, cover.Type)
	assert.Equal(t, bars[2].Date, cover.Date)
	require.NotNil(t, cover.DayTrading)
	assert.True(t, cover.DayTrading.EODExit)
	assert.Equal(t, 0.0, res.Positions["AAA"])
}

func TestRunRegularSellClosesLongDayTrade(t *testing.T) {
	strategy := single("AAA",
		StrategyAction{
			Type:      ActionBuy,
			Condition: PatternCondition{Pattern: "day_trade_gap_down", Params: Params{"minGapPercent": 3}},
			Amount:    FixedAmount(100),
		},
		StrategyAction{
			Type:      ActionSell,
			Condition: SimpleCondition{Metric: MetricPercentChange, Operator: OpLessThan, Value: -0.5},
			Timeframe: TimeframeDaily,
			Amount:    Shares(1000),
		},
	)
	bars := flatBars(100, 100, 99)
	bars[2].Open = 96
	res := Run(strategy, map[string][]PriceBar{"AAA": bars})

	// the entry is sold at the close, so no forced exit follows
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, TxBuy, res.Transactions[0].Type)
	assert.Equal(t, TxSell, res.Transactions[1].Type)
	assert.Nil(t, res.Transactions[1].DayTrading)
	assert.Equal(t, 0.0, res.Positions["AAA"])
}

func TestRunUnknownActionIsRecorded(t *testing.T) {
	log := &EventLog{}
	strategy := single("AAA", StrategyAction{
		Type:      ActionType("hold"),
		Condition: SimpleCondition{Metric: MetricPrice, Operator: OpGreaterThan, Value: 0},
		Amount:    FixedAmount(100),
	})
	res := New(WithEventSink(log)).Run(strategy, map[string][]PriceBar{"AAA": flatBars(10, 11, 12)})

	assert.Empty(t, res.Transactions)
	assert.Equal(t, 2, log.Count(EventUnknownAction))
	assert.Zero(t, log.Count(EventInvalidPrice))
	assert.Equal(t, "unknown_action", EventUnknownAction.String())
}

func TestRunAverageCostOverSeveralBuys(t *testing.T) {
	strategy := single("AAA",
		StrategyAction{
			Type:      ActionBuy,
			Condition: SimpleCondition{Metric: MetricPercentChange, Operator: OpLessThan, Value: 0},
			Amount:    FixedAmount(100),
		},
		StrategyAction{
			Type:      ActionBuy,
			Condition: SimpleCondition{Metric: MetricPrice, Operator: OpLessThan, Value: 75},
			Amount:    Shares(2),
		},
	)
	res := Run(strategy, map[string][]PriceBar{"AAA": flatBars(100, 90, 80, 85, 70)})

	require.Len(t, res.Transactions, 4)
	var dollars, shares float64
	for _, tx := range res.Transactions {
		require.Equal(t, TxBuy, tx.Type)
		dollars += tx.Amount
		shares += tx.Quantity
	}
	assert.InDelta(t, 440, dollars, 1e-9)
	assert.InDelta(t, 100.0/90+100.0/80+100.0/70+2, shares, 1e-9)
	assert.InDelta(t, dollars, res.PositionCost["AAA"], 1e-9)
	assert.InDelta(t, shares, res.Positions["AAA"], 1e-9)
	assert.InDelta(t, dollars/shares, res.PositionAvgCost["AAA"], 1e-9)
	assert.InDelta(t, 10000-440, res.Cash, 1e-9)
	assert.True(t, res.Metrics.ValuesConsistent)
}

func TestRunEmptyInput(t *testing.T) {
	strategy := single("AAA", StrategyAction{Type: ActionBuy, Condition: SimpleCondition{}})
	assert.Equal(t, NoTradingData, Run(strategy, nil).Error)
	assert.Equal(t, NoTradingData, Run(strategy, map[string][]PriceBar{"AAA": {}}).Error)
}

func TestRunOneValuePointPerDate(t *testing.T) {
	a := flatBars(10, 11, 12, 13, 14)
	b := flatBars(20, 21, 22)
	strategy := Strategy{Actions: []StrategyAction{{
		Type:      ActionBuy,
		Condition: SimpleCondition{Metric: MetricPrice, Operator: OpGreaterThan, Value: 0},
		Amount:    FixedAmount(10),
	}}}
	res := Run(strategy, map[string][]PriceBar{"A": a, "B": b})

	require.Len(t, res.ValueHistory, 5)
	for i := 1; i < len(res.ValueHistory); i++ {
		assert.True(t, res.ValueHistory[i].Date.After(res.ValueHistory[i-1].Date))
	}
	for _, p := range res.ValueHistory {
		assert.InDelta(t, p.Cash+p.Positions, p.Value, 1e-9)
	}
	// symbols trade in sorted order within a date
	assert.Equal(t, "A", res.Transactions[0].Symbol)
	assert.Equal(t, "B", res.Transactions[1].Symbol)
}

func TestRunIsDeterministic(t *testing.T) {
	closes := []float64{50, 48, 51, 47, 52, 49, 53, 46, 54, 45, 55, 44}
	strategy := Strategy{Actions: []StrategyAction{
		{Type: ActionBuy, Condition: SimpleCondition{Metric: MetricPercentChange, Operator: OpLessThan, Value: -3}, Amount: Percentage(10)},
		{Type: ActionSell, Condition: SimpleCondition{Metric: MetricPercentChange, Operator: OpGreaterThan, Value: 3}, Amount: Shares(5)},
	}}
	bars := map[string][]PriceBar{"X": flatBars(closes...), "Y": flatBars(closes[2:]...)}

	first, err := json.Marshal(Run(strategy, bars))
	require.NoError(t, err)
	second, err := json.Marshal(Run(strategy, bars))
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestRunSkipsBuyWithoutCash(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := DefaultConfig()
	cfg.InitialCash = 150

	strategy := single("AAA", StrategyAction{
		Type:      ActionBuy,
		Condition: SimpleCondition{Metric: MetricPrice, Operator: OpGreaterThan, Value: 0},
		Amount:    FixedAmount(100),
	})
	log := &EventLog{}
	res := New(WithConfig(cfg), WithLogger(zap.New(core)), WithEventSink(log)).
		Run(strategy, map[string][]PriceBar{"AAA": flatBars(10, 10, 10, 10)})

	assert.Len(t, res.Transactions, 1)
	assert.InDelta(t, 50, res.Cash, 1e-9)
	assert.GreaterOrEqual(t, res.Cash, 0.0)
	assert.Equal(t, 2, logs.FilterMessage("buy skipped, insufficient cash").Len())
	assert.Equal(t, 2, log.Count(EventInsufficientCash))
	assert.Len(t, res.Events, len(log.Events))
}

func TestRunGatesIndicatorsOnHistory(t *testing.T) {
	closes := make([]float64, 12)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	strategy := single("AAA", StrategyAction{
		Type:      ActionBuy,
		Condition: TechnicalCondition{Indicator: IndicatorRSI, Operator: OpLessThan, Value: 30},
		Amount:    FixedAmount(100),
	})
	res := Run(strategy, map[string][]PriceBar{"AAA": flatBars(closes...)})

	assert.Empty(t, res.Transactions)
	count := 0
	for _, e := range res.Events {
		if e.Type == EventInsufficientHistory {
			count++
			assert.Equal(t, "28", e.Details["need"])
		}
	}
	assert.Equal(t, 11, count)
}

func TestRunRSIFiresOnceHistoryIsFull(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 200 - 2*float64(i)
	}
	strategy := single("AAA", StrategyAction{
		Type:      ActionBuy,
		Condition: PatternCondition{Pattern: "rsi_oversold"},
		Amount:    FixedAmount(100),
	})
	bars := flatBars(closes...)
	res := Run(strategy, map[string][]PriceBar{"AAA": bars})

	require.NotEmpty(t, res.Transactions)
	// 28 buffered bars are needed and the buffer starts at the second bar
	assert.Equal(t, bars[28].Date, res.Transactions[0].Date)
}

func TestHistoryCapFitsLongestLookback(t *testing.T) {
	assert.Equal(t, 30, historyCap(30, nil))
	assert.Equal(t, 36, historyCap(30, []StrategyAction{{Condition: PatternCondition{Pattern: "macd_bullish_crossover"}}}))
	assert.Equal(t, 201, historyCap(30, []StrategyAction{{Condition: PatternCondition{Pattern: "golden_cross"}}}))
	assert.Equal(t, 30, historyCap(30, []StrategyAction{{Condition: PatternCondition{Pattern: "nope"}}}))
}

func TestRunWeeklyTimeframe(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bars := flatBars(closes...)
	strategy := single("AAA", StrategyAction{
		Type:      ActionBuy,
		Condition: SimpleCondition{Metric: MetricPercentChange, Operator: OpGreaterThan, Value: 0},
		Timeframe: TimeframeWeekly,
		Amount:    FixedAmount(100),
	})
	res := Run(strategy, map[string][]PriceBar{"AAA": bars})

	require.Len(t, res.Transactions, 2)
	assert.Equal(t, bars[5].Date, res.Transactions[0].Date)
	assert.Equal(t, bars[10].Date, res.Transactions[1].Date)
}

func TestRunWeeklyTimeframeAcrossHolidayWeek(t *testing.T) {
	// Jan 1..Jan 22 2024 with Wednesday Jan 10 missing
	bars := flatBars(make([]float64, 16)...)
	bars = append(bars[:7], bars[8:]...)
	closes := []float64{
		100, 100, 100, 100, 100, // Jan 1-5
		110, 110, 110, 110, // Jan 8, 9, 11, 12
		105, 105, 105, 105, 105, // Jan 15-19
		104, // Jan 22
	}
	require.Len(t, bars, len(closes))
	for i, c := range closes {
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = c, c, c, c
	}
	strategy := single("AAA", StrategyAction{
		Type:      ActionBuy,
		Condition: SimpleCondition{Metric: MetricPercentChange, Operator: OpGreaterThan, Value: 0},
		Timeframe: TimeframeWeekly,
		Amount:    FixedAmount(100),
	})
	res := Run(strategy, map[string][]PriceBar{"AAA": bars})

	// On Jan 15 five trading dates back is Jan 5 (+5%), not the previous
	// week's first date Jan 8 (-4.5%).
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, bars[5].Date, res.Transactions[0].Date)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), res.Transactions[1].Date)
	assert.Equal(t, 11, bars[7].Date.Day())
}

func TestRunMonthlyTimeframeWaitsForLookback(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bars := flatBars(closes...)
	strategy := single("AAA", StrategyAction{
		Type:      ActionBuy,
		Condition: SimpleCondition{Metric: MetricPercentChange, Operator: OpGreaterThan, Value: 0},
		Timeframe: TimeframeMonthly,
		Amount:    FixedAmount(100),
	})
	res := Run(strategy, map[string][]PriceBar{"AAA": bars})

	// Feb 1 is the first month boundary at least 20 dates in
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, 2, int(res.Transactions[0].Date.Month()))
	assert.Equal(t, 1, res.Transactions[0].Date.Day())
}

func TestRunMarksMissingBarsAtLastClose(t *testing.T) {
	a := flatBars(10, 10, 10, 10)
	b := []PriceBar{
		{Date: a[0].Date, Open: 50, High: 50, Low: 50, Close: 50},
		{Date: a[1].Date, Open: 50, High: 50, Low: 50, Close: 50},
		{Date: a[3].Date, Open: 40, High: 40, Low: 40, Close: 40},
	}
	strategy := single("B", StrategyAction{
		Type:      ActionBuy,
		Condition: SimpleCondition{Metric: MetricPrice, Operator: OpGreaterThan, Value: 45},
		Amount:    Shares(3),
	})
	res := Run(strategy, map[string][]PriceBar{"A": a, "B": b})

	require.Len(t, res.Transactions, 1)
	require.Len(t, res.ValueHistory, 4)
	assert.InDelta(t, 10000, res.ValueHistory[2].Value, 1e-9, "B has no bar on the third date")
	assert.InDelta(t, 150, res.ValueHistory[2].Positions, 1e-9)
	assert.InDelta(t, 9970, res.ValueHistory[3].Value, 1e-9)
}

func TestStrategyJSONRoundTrip(t *testing.T) {
	doc := `{
		"name": "mixed",
		"actions": [
			{"type": "BUY", "condition": {"type": "simple", "metric": "percent_change", "operator": "less_than", "value": -5}, "timeframe": "daily", "amount": {"type": "fixed_amount", "value": 100}},
			{"type": "sell", "condition": {"type": "consecutive", "days": 3, "direction": "up"}, "amount": {"type": "shares", "value": "10"}},
			{"type": "buy", "condition": {"type": "pattern", "pattern": "day_trade_gap_down", "params": {"minGapPercent": 3}}, "amount": {"type": "percentage", "value": "5%"}},
			{"type": "short", "condition": {"type": "technical", "indicator": "rsi", "operator": "greater_than", "value": 70, "params": {"period": 10}}, "timeframe": "weekly", "amount": {"type": "fixed_amount", "value": 250}}
		],
		"universe": {"symbols": ["AAA"]},
		"timeRange": {"start": "2024-01-01T00:00:00Z", "end": "2024-06-30T00:00:00Z"}
	}`
	var s Strategy
	require.NoError(t, json.Unmarshal([]byte(doc), &s))
	require.Len(t, s.Actions, 4)

	assert.Equal(t, ActionBuy, s.Actions[0].Type)
	assert.Equal(t, SimpleCondition{Metric: MetricPercentChange, Operator: OpLessThan, Value: -5}, s.Actions[0].Condition)
	assert.Equal(t, TimeframeDaily, s.Actions[1].Timeframe)
	assert.Equal(t, ConsecutiveCondition{Days: 3, Direction: DirectionUp}, s.Actions[1].Condition)
	assert.True(t, IsDayTrade(s.Actions[2].Condition))
	tc := s.Actions[3].Condition.(TechnicalCondition)
	assert.Equal(t, 10, tc.Params.Int("period", 14))
	assert.Equal(t, TimeframeWeekly, s.Actions[3].Timeframe)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	var again Strategy
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, s.Actions[0].Condition, again.Actions[0].Condition)
	assert.Equal(t, s.Actions[1].Condition, again.Actions[1].Condition)
}

func TestDecodeConditionRejectsUnknownType(t *testing.T) {
	_, err := DecodeCondition([]byte(`{"type":"astrology"}`))
	assert.Error(t, err)
}
