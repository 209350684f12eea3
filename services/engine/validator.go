package engine

import (
	"fmt"
	"strings"
)

// ValidationError lists the problems that make a strategy unrunnable.
type ValidationError struct{ Problems []string }

func (e ValidationError) Error() string {
	return "invalid strategy: " + strings.Join(e.Problems, "; ")
}

// Validate checks a strategy before it is submitted. The engine itself
// tolerates everything reported here, so callers that want lenient
// behaviour can skip it. Warnings cover conditions that will simply never
// fire, such as unknown patterns.
func Validate(s Strategy) (warnings []string, err error) {
	var problems []string
	if len(s.Actions) == 0 {
		problems = append(problems, "strategy has no actions")
	}
	if len(s.Universe.Symbols) == 0 {
		problems = append(problems, "universe has no symbols")
	}
	if !s.TimeRange.Start.IsZero() && !s.TimeRange.End.IsZero() && s.TimeRange.End.Before(s.TimeRange.Start) {
		problems = append(problems, "time range ends before it starts")
	}

	for i, a := range s.Actions {
		switch a.Type {
		case ActionBuy, ActionSell, ActionShort:
		default:
			problems = append(problems, fmt.Sprintf("action %d: unknown type %q", i, a.Type))
		}
		switch a.Timeframe {
		case TimeframeDaily, TimeframeWeekly, TimeframeMonthly, "":
		default:
			warnings = append(warnings, fmt.Sprintf("action %d: unknown timeframe %q treated as daily", i, a.Timeframe))
		}
		if a.Condition == nil {
			problems = append(problems, fmt.Sprintf("action %d: missing condition", i))
			continue
		}
		warnings = append(warnings, conditionWarnings(i, a.Condition)...)
	}

	if len(problems) > 0 {
		return warnings, ValidationError{Problems: problems}
	}
	return warnings, nil
}

func conditionWarnings(i int, c Condition) []string {
	switch c := c.(type) {
	case PatternCondition:
		resolved, ok := ResolvePattern(c)
		if !ok {
			return []string{fmt.Sprintf("action %d: unknown pattern %q never triggers", i, c.Pattern)}
		}
		return conditionWarnings(i, resolved)
	case TechnicalCondition:
		if !c.Indicator.Known() {
			return []string{fmt.Sprintf("action %d: unknown indicator %q never triggers", i, c.Indicator)}
		}
	case ConsecutiveCondition:
		if c.Days < 1 {
			return []string{fmt.Sprintf("action %d: consecutive days must be at least 1", i)}
		}
	case SimpleCondition:
		var out []string
		switch c.Metric {
		case MetricPercentChange, MetricPrice, MetricVolume:
		default:
			out = append(out, fmt.Sprintf("action %d: unknown metric %q never triggers", i, c.Metric))
		}
		if !knownOperator(c.Operator) {
			out = append(out, fmt.Sprintf("action %d: unknown operator %q never triggers", i, c.Operator))
		}
		return out
	}
	return nil
}

func knownOperator(op Operator) bool {
	switch op {
	case OpGreaterThan, OpGreaterThanEqual, OpLessThan, OpLessThanEqual, OpEqual:
		return true
	}
	return false
}
