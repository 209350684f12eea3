package engine

import (
	"math"

	"go.uber.org/zap"

	"strategy-backtester/services/indicators"
)

// EvalContext is what a condition sees for one symbol on one date.
// Value feeds simple conditions; History feeds every other kind and ends
// at the current bar.
type EvalContext struct {
	Value   float64
	History []PriceBar
}

// Evaluator decides whether conditions hold. It is stateless and safe for
// concurrent use.
type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{logger: logger}
}

// Evaluate returns false for unknown kinds, indicators and patterns, and
// whenever the computed value is NaN.
func (e *Evaluator) Evaluate(c Condition, ctx EvalContext) bool {
	switch c := c.(type) {
	case SimpleCondition:
		return Compare(ctx.Value, c.Operator, c.Value)
	case ConsecutiveCondition:
		return consecutive(ctx.History, c.Days, c.Direction)
	case PatternCondition:
		resolved, ok := ResolvePattern(c)
		if !ok {
			e.logger.Debug("unknown pattern", zap.String("pattern", c.Pattern))
			return false
		}
		return e.Evaluate(resolved, ctx)
	case TechnicalCondition:
		def, ok := technicalRegistry[c.Indicator]
		if !ok {
			e.logger.Debug("unknown indicator", zap.String("indicator", string(c.Indicator)))
			return false
		}
		out := def.eval(seriesOf(ctx.History), c.Params)
		if out.decided {
			return out.hit
		}
		return Compare(out.value, c.Operator, c.Value)
	}
	return false
}

const equalTolerance = 1e-9

// Compare applies op to value and threshold. NaN and unknown operators
// yield false.
func Compare(value float64, op Operator, threshold float64) bool {
	if !indicators.Valid(value) {
		return false
	}
	switch op {
	case OpGreaterThan:
		return value > threshold
	case OpGreaterThanEqual:
		return value >= threshold
	case OpLessThan:
		return value < threshold
	case OpLessThanEqual:
		return value <= threshold
	case OpEqual:
		return math.Abs(value-threshold) <= equalTolerance
	}
	return false
}

// consecutive checks every adjacent pair of closes in the trailing days bars.
func consecutive(history []PriceBar, days int, dir Direction) bool {
	if days <= 0 || len(history) < days {
		return false
	}
	if dir != DirectionUp && dir != DirectionDown && dir != DirectionUnchanged {
		return false
	}
	tail := history[len(history)-days:]
	for i := 1; i < len(tail); i++ {
		prev, cur := tail[i-1].Close, tail[i].Close
		switch dir {
		case DirectionUp:
			if !(cur > prev) {
				return false
			}
		case DirectionDown:
			if !(cur < prev) {
				return false
			}
		case DirectionUnchanged:
			if cur != prev {
				return false
			}
		}
	}
	return true
}
