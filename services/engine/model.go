package engine

import (
	"sort"
	"time"
)

// PriceBar is one day's OHLCV record for a symbol.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// ActionType is the order side a strategy action emits.
type ActionType string

const (
	ActionBuy   ActionType = "buy"
	ActionSell  ActionType = "sell"
	ActionShort ActionType = "short"
)

// Timeframe gates how often an action may fire.
type Timeframe string

const (
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
)

// StrategyAction is one rule of a strategy. Actions are evaluated in
// declaration order for every symbol on every trading date.
type StrategyAction struct {
	Type      ActionType `json:"type"`
	Condition Condition  `json:"condition"`
	Timeframe Timeframe  `json:"timeframe"`
	Amount    AmountRule `json:"amount"`
}

// Universe lists the symbols a strategy trades. Only upstream data
// acquisition reads it.
type Universe struct {
	Symbols []string `json:"symbols"`
}

// TimeRange bounds upstream data acquisition.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Strategy is the normalized strategy object. The simulation consumes only
// Actions.
type Strategy struct {
	Name      string           `json:"name,omitempty"`
	Actions   []StrategyAction `json:"actions"`
	Universe  Universe         `json:"universe"`
	TimeRange TimeRange        `json:"timeRange"`
}

// TransactionType is the ledger classification of an executed order.
type TransactionType string

const (
	TxBuy        TransactionType = "buy"
	TxSell       TransactionType = "sell"
	TxShort      TransactionType = "short"
	TxCoverShort TransactionType = "cover_short"
)

// DayTradingFlags annotate same-session entries and their forced exits.
type DayTradingFlags struct {
	Entry       bool    `json:"entry,omitempty"`
	EODExit     bool    `json:"eodExit,omitempty"`
	EntryPrice  float64 `json:"entryPrice"`
	ExitPrice   float64 `json:"exitPrice,omitempty"`
	RealizedPnL float64 `json:"realizedPnl,omitempty"`
}

// Transaction is an immutable ledger record.
type Transaction struct {
	Date             time.Time        `json:"date"`
	Symbol           string           `json:"symbol"`
	Type             TransactionType  `json:"type"`
	Price            float64          `json:"price"`
	Quantity         float64          `json:"quantity"`
	Amount           float64          `json:"amount"`
	AmountType       AmountType       `json:"amountType"`
	AmountValue      float64          `json:"amountValue"`
	PositionAfter    float64          `json:"positionAfter"`
	CostBasisAfter   float64          `json:"costBasisAfter"`
	ConditionDetails string           `json:"conditionDetails"`
	DayTrading       *DayTradingFlags `json:"dayTradingFlags,omitempty"`
}

// ValuePoint is the mark-to-market snapshot for one trading date.
type ValuePoint struct {
	Date      time.Time `json:"date"`
	Value     float64   `json:"value"`
	Cash      float64   `json:"cash"`
	Positions float64   `json:"positions"`
}

// Metrics summarises a completed run.
type Metrics struct {
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	TotalReturn      float64   `json:"totalReturn"`
	MaxDrawdown      float64   `json:"maxDrawdown"`
	SharpeRatio      float64   `json:"sharpeRatio"`
	ValuesConsistent bool      `json:"valuesConsistent"`
	FinalValue       float64   `json:"finalValue"`
	ReconciledValue  float64   `json:"reconciledValue"`
	TradeCount       int       `json:"tradeCount"`
	DayTrades        int       `json:"dayTrades"`
	DayTradeWins     int       `json:"dayTradeWins"`
}

// Result is returned by Run. When Error is set no other field is meaningful.
type Result struct {
	Cash            float64            `json:"cash"`
	Positions       map[string]float64 `json:"positions"`
	PositionCost    map[string]float64 `json:"positionCost"`
	PositionAvgCost map[string]float64 `json:"positionAvgCost"`
	Transactions    []Transaction      `json:"transactions"`
	ValueHistory    []ValuePoint       `json:"valueHistory"`
	Metrics         Metrics            `json:"metrics"`
	Error           string             `json:"error,omitempty"`
	Events          []Event            `json:"-"`
}

// tradingDates returns the sorted union of bar dates across symbols.
func tradingDates(bars map[string][]PriceBar) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, series := range bars {
		for _, b := range series {
			seen[dayKey(b.Date)] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// dayKey truncates to the calendar date in UTC so bars from different
// sources line up on the same trading date.
func dayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sortedSymbols(bars map[string][]PriceBar) []string {
	symbols := make([]string, 0, len(bars))
	for s := range bars {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
