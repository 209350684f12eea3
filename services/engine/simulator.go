package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"strategy-backtester/services/indicators"
)

// NoTradingData is the Result error when no bar dates exist.
const NoTradingData = "No trading data available"

const driftTolerance = 1e-9

// Engine runs strategies over in-memory daily bars. An Engine holds no
// per-run state and may run several simulations concurrently.
type Engine struct {
	cfg       Config
	logger    *zap.Logger
	sink      EventSink
	evaluator *Evaluator
	amounts   AmountCalculator
}

type Option func(*Engine)

func WithConfig(cfg Config) Option { return func(e *Engine) { e.cfg = cfg.withDefaults() } }

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEventSink forwards every run event to s in addition to Result.Events.
func WithEventSink(s EventSink) Option { return func(e *Engine) { e.sink = s } }

func New(opts ...Option) *Engine {
	e := &Engine{cfg: DefaultConfig(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	e.evaluator = NewEvaluator(e.logger)
	e.amounts = AmountCalculator{DefaultDollars: e.cfg.DefaultOrderDollars, DefaultPercentage: e.cfg.DefaultPercentage}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Run simulates strategy over bars with the default configuration.
func Run(strategy Strategy, bars map[string][]PriceBar) *Result {
	return New().Run(strategy, bars)
}

type dayTradeEntry struct {
	price float64
}

type changes struct {
	daily, weekly, monthly float64
}

type run struct {
	e        *Engine
	strategy Strategy
	book     *Portfolio
	log      EventLog

	dates   []time.Time
	symbols []string
	series  map[string][]PriceBar
	index   map[string]map[time.Time]int

	histCap   int
	history   map[string][]PriceBar
	prev      map[string]PriceBar
	lastClose map[string]float64
	dayTrades map[string]dayTradeEntry

	value float64
}

// Run simulates strategy over bars. It never panics on malformed input;
// a run with no dates returns a Result carrying only Error.
func (e *Engine) Run(strategy Strategy, bars map[string][]PriceBar) *Result {
	dates := tradingDates(bars)
	if len(dates) == 0 {
		e.logger.Warn("backtest has no trading dates", zap.String("strategy", strategy.Name))
		return &Result{Error: NoTradingData}
	}

	r := &run{
		e:         e,
		strategy:  strategy,
		book:      NewPortfolio(e.cfg.InitialCash),
		dates:     dates,
		symbols:   sortedSymbols(bars),
		series:    make(map[string][]PriceBar, len(bars)),
		index:     make(map[string]map[time.Time]int, len(bars)),
		histCap:   historyCap(e.cfg.HistoryCap, strategy.Actions),
		history:   make(map[string][]PriceBar, len(bars)),
		prev:      make(map[string]PriceBar, len(bars)),
		lastClose: make(map[string]float64, len(bars)),
		dayTrades: make(map[string]dayTradeEntry),
	}
	for sym, raw := range bars {
		r.series[sym], r.index[sym] = indexSeries(raw)
	}

	start := time.Now()
	for i, date := range dates {
		r.step(i, date)
	}
	res := r.result()
	e.logger.Info("backtest complete",
		zap.String("strategy", strategy.Name),
		zap.Int("symbols", len(r.symbols)),
		zap.Int("dates", len(dates)),
		zap.Int("transactions", len(res.Transactions)),
		zap.Float64("final_value", res.Metrics.FinalValue),
		zap.Bool("values_consistent", res.Metrics.ValuesConsistent),
		zap.Duration("elapsed", time.Since(start)))
	return res
}

// historyCap grows the configured cap to fit the longest indicator lookback
// the strategy uses, so gated indicators can eventually evaluate.
func historyCap(base int, actions []StrategyAction) int {
	limit := base
	for _, a := range actions {
		c, ok := resolve(a.Condition)
		if !ok {
			continue
		}
		switch c := c.(type) {
		case TechnicalCondition:
			limit = max(limit, RequiredHistory(c))
		case ConsecutiveCondition:
			limit = max(limit, c.Days)
		}
	}
	return limit
}

// indexSeries sorts a copy of raw and keys it by trading date. A later
// bar on the same date replaces an earlier one.
func indexSeries(raw []PriceBar) ([]PriceBar, map[time.Time]int) {
	sorted := append([]PriceBar(nil), raw...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := sorted[:0]
	idx := make(map[time.Time]int, len(sorted))
	for _, b := range sorted {
		key := dayKey(b.Date)
		if i, ok := idx[key]; ok {
			out[i] = b
			continue
		}
		idx[key] = len(out)
		out = append(out, b)
	}
	return out, idx
}

func (r *run) bar(symbol string, date time.Time) (PriceBar, bool) {
	i, ok := r.index[symbol][date]
	if !ok {
		return PriceBar{}, false
	}
	return r.series[symbol][i], true
}

func (r *run) step(i int, date time.Time) {
	r.markToMarket(date)

	weekBoundary, monthBoundary := r.boundaries(i)
	for _, sym := range r.symbols {
		bar, ok := r.bar(sym, date)
		if !ok {
			continue
		}
		if prev, ok := r.prev[sym]; ok {
			r.pushHistory(sym, bar)
			ch := r.changes(sym, i, bar, prev)
			for _, action := range r.strategy.Actions {
				r.process(action, sym, date, bar, ch, weekBoundary, monthBoundary)
			}
		}
		r.prev[sym] = bar
		r.lastClose[sym] = bar.Close
	}

	r.closeDayTrades(date)
}

func (r *run) markToMarket(date time.Time) {
	total, positions := r.book.MarkToMarket(func(sym string) (float64, bool) {
		if b, ok := r.bar(sym, date); ok {
			return b.Close, true
		}
		c, ok := r.lastClose[sym]
		return c, ok
	})
	if expected := r.book.Cash + positions; math.Abs(total-expected) > driftTolerance {
		r.e.logger.Warn("portfolio value drift corrected",
			zap.Time("date", date), zap.Float64("tracked", total), zap.Float64("expected", expected))
		r.emit(Event{Date: date, Type: EventDriftCorrected, Details: map[string]string{
			"tracked": ff(total), "expected": ff(expected),
		}})
		total = expected
	}
	r.value = total
	r.book.ValueHistory = append(r.book.ValueHistory, ValuePoint{
		Date: date, Value: total, Cash: r.book.Cash, Positions: positions,
	})
}

func (r *run) boundaries(i int) (week, month bool) {
	if i == 0 {
		return true, true
	}
	cur, prev := r.dates[i], r.dates[i-1]
	cy, cw := cur.ISOWeek()
	py, pw := prev.ISOWeek()
	return cy != py || cw != pw, cur.Year() != prev.Year() || cur.Month() != prev.Month()
}

func (r *run) pushHistory(sym string, bar PriceBar) {
	h := append(r.history[sym], bar)
	if len(h) > r.histCap {
		h = append(h[:0:0], h[len(h)-r.histCap:]...)
	}
	r.history[sym] = h
}

// changes computes close-to-close moves. Weekly and monthly use the bar a
// fixed number of trading dates back and are NaN until that far in.
func (r *run) changes(sym string, i int, bar, prev PriceBar) changes {
	ch := changes{
		daily:   indicators.PercentChange(prev.Close, bar.Close),
		weekly:  math.NaN(),
		monthly: math.NaN(),
	}
	if back := i - r.e.cfg.WeekLookback; back >= 0 {
		if b, ok := r.bar(sym, r.dates[back]); ok {
			ch.weekly = indicators.PercentChange(b.Close, bar.Close)
		}
	}
	if back := i - r.e.cfg.MonthLookback; back >= 0 {
		if b, ok := r.bar(sym, r.dates[back]); ok {
			ch.monthly = indicators.PercentChange(b.Close, bar.Close)
		}
	}
	return ch
}

func (r *run) process(a StrategyAction, sym string, date time.Time, bar PriceBar, ch changes, weekBoundary, monthBoundary bool) {
	switch a.Timeframe {
	case TimeframeWeekly:
		if !weekBoundary || math.IsNaN(ch.weekly) {
			return
		}
	case TimeframeMonthly:
		if !monthBoundary || math.IsNaN(ch.monthly) {
			return
		}
	}
	if !r.triggered(a, sym, date, bar, ch) {
		return
	}

	dayTrade := IsDayTrade(a.Condition)
	price := bar.Close
	if dayTrade {
		price = bar.Open
	}
	size := r.e.amounts.Resolve(a.Amount, r.value, price)
	order := Order{
		Date:    date,
		Symbol:  sym,
		Action:  a.Type,
		Price:   price,
		Size:    size,
		Details: a.Condition.Describe(),
	}
	r.execute(order, dayTrade)
}

func (r *run) triggered(a StrategyAction, sym string, date time.Time, bar PriceBar, ch changes) bool {
	if c, ok := a.Condition.(SimpleCondition); ok {
		return r.e.evaluator.Evaluate(c, EvalContext{Value: metricValue(c.Metric, a.Timeframe, bar, ch)})
	}

	resolved, ok := resolve(a.Condition)
	if !ok {
		if p, isPattern := a.Condition.(PatternCondition); isPattern {
			r.emit(Event{Date: date, Type: EventUnknownPattern, Symbol: sym, Details: map[string]string{"pattern": p.Pattern}})
		}
		return false
	}
	history := r.history[sym]
	if tc, ok := resolved.(TechnicalCondition); ok {
		if !tc.Indicator.Known() {
			r.emit(Event{Date: date, Type: EventUnknownIndicator, Symbol: sym, Details: map[string]string{"indicator": string(tc.Indicator)}})
			return false
		}
		if need := RequiredHistory(tc); len(history) < need {
			r.emit(Event{Date: date, Type: EventInsufficientHistory, Symbol: sym, Details: map[string]string{
				"indicator": string(tc.Indicator), "have": strconv.Itoa(len(history)), "need": strconv.Itoa(need),
			}})
			return false
		}
	}
	return r.e.evaluator.Evaluate(resolved, EvalContext{History: history})
}

func metricValue(m Metric, tf Timeframe, bar PriceBar, ch changes) float64 {
	switch m {
	case MetricPercentChange:
		switch tf {
		case TimeframeWeekly:
			return ch.weekly
		case TimeframeMonthly:
			return ch.monthly
		}
		return ch.daily
	case MetricPrice:
		return bar.Close
	case MetricVolume:
		return bar.Volume
	}
	return math.NaN()
}

func (r *run) execute(o Order, dayTrade bool) {
	before := r.book.Positions[o.Symbol]
	tx, err := r.book.Execute(o)
	switch err {
	case nil:
	case ErrInsufficientCash:
		r.e.logger.Debug("buy skipped, insufficient cash",
			zap.String("symbol", o.Symbol), zap.Time("date", o.Date),
			zap.Float64("cash", r.book.Cash), zap.Float64("required", o.Size.Dollars))
		r.emit(Event{Date: o.Date, Type: EventInsufficientCash, Symbol: o.Symbol, Details: map[string]string{
			"cash": ff(r.book.Cash), "required": ff(o.Size.Dollars),
		}})
		return
	case ErrUnknownAction:
		r.e.logger.Debug("order skipped, unknown action", zap.String("symbol", o.Symbol), zap.Time("date", o.Date),
			zap.String("action", string(o.Action)))
		r.emit(Event{Date: o.Date, Type: EventUnknownAction, Symbol: o.Symbol, Details: map[string]string{
			"action": string(o.Action),
		}})
		return
	default:
		r.e.logger.Debug("order skipped", zap.String("symbol", o.Symbol), zap.Time("date", o.Date), zap.Error(err))
		r.emit(Event{Date: o.Date, Type: EventInvalidPrice, Symbol: o.Symbol, Details: map[string]string{
			"price": ff(o.Price), "reason": err.Error(),
		}})
		return
	}

	if dayTrade {
		if _, tracked := r.dayTrades[o.Symbol]; !tracked {
			r.dayTrades[o.Symbol] = dayTradeEntry{price: o.Price}
		}
		last := &r.book.Transactions[len(r.book.Transactions)-1]
		last.DayTrading = &DayTradingFlags{Entry: true, EntryPrice: r.dayTrades[o.Symbol].price}
	} else if after := r.book.Positions[o.Symbol]; (before > 0 && after <= 0) || (before < 0 && after >= 0) {
		// A regular order closed or flipped the tracked entry.
		delete(r.dayTrades, o.Symbol)
	}

	r.emit(Event{Date: o.Date, Type: EventOrderFilled, Symbol: o.Symbol, Details: map[string]string{
		"type": string(tx.Type), "price": ff(tx.Price), "quantity": ff(tx.Quantity),
	}})
}

// closeDayTrades flattens every position opened by a day-trading action
// today at today's close.
func (r *run) closeDayTrades(date time.Time) {
	if len(r.dayTrades) == 0 {
		return
	}
	symbols := make([]string, 0, len(r.dayTrades))
	for sym := range r.dayTrades {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		entry := r.dayTrades[sym]
		delete(r.dayTrades, sym)
		bar, ok := r.bar(sym, date)
		if !ok {
			continue
		}
		tx, ok := r.book.flatten(date, sym, bar.Close, entry.price)
		if !ok {
			continue
		}
		r.emit(Event{Date: date, Type: EventDayTradeExit, Symbol: sym, Details: map[string]string{
			"entry": ff(entry.price), "exit": ff(bar.Close), "pnl": ff(tx.DayTrading.RealizedPnL),
		}})
	}
}

func (r *run) emit(e Event) {
	r.log.Append(e)
	if r.e.sink != nil {
		r.e.sink.Append(e)
	}
}

func (r *run) result() *Result {
	positions, cost := r.book.snapshot()
	res := &Result{
		Cash:            r.book.Cash,
		Positions:       positions,
		PositionCost:    cost,
		PositionAvgCost: r.book.AvgCosts(),
		Transactions:    r.book.Transactions,
		ValueHistory:    r.book.ValueHistory,
	}
	res.Metrics = computeMetrics(r.book, r.e.cfg)
	if !res.Metrics.ValuesConsistent {
		r.e.logger.Warn("value reconciliation mismatch",
			zap.Float64("tracked", res.Metrics.FinalValue),
			zap.Float64("reconciled", res.Metrics.ReconciledValue))
		r.emit(Event{Date: res.Metrics.EndDate, Type: EventValueMismatch, Details: map[string]string{
			"tracked": ff(res.Metrics.FinalValue), "reconciled": ff(res.Metrics.ReconciledValue),
		}})
	}
	res.Events = r.log.Events
	return res
}

func ff(v float64) string { return fmt.Sprintf("%.6f", v) }
