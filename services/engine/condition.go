package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ConditionKind discriminates the condition variants.
type ConditionKind string

const (
	KindSimple      ConditionKind = "simple"
	KindConsecutive ConditionKind = "consecutive"
	KindPattern     ConditionKind = "pattern"
	KindTechnical   ConditionKind = "technical"
)

// Condition is a trade trigger. The variants are SimpleCondition,
// ConsecutiveCondition, PatternCondition and TechnicalCondition.
type Condition interface {
	Kind() ConditionKind
	Describe() string
}

// Operator compares a computed value with a threshold.
type Operator string

const (
	OpGreaterThan      Operator = "greater_than"
	OpGreaterThanEqual Operator = "greater_than_equal"
	OpLessThan         Operator = "less_than"
	OpLessThanEqual    Operator = "less_than_equal"
	OpEqual            Operator = "equal"
)

// Metric is the value a simple condition reads.
type Metric string

const (
	MetricPercentChange Metric = "percent_change"
	MetricPrice         Metric = "price"
	MetricVolume        Metric = "volume"
)

// Direction is the close-to-close move a consecutive condition requires.
type Direction string

const (
	DirectionUp        Direction = "up"
	DirectionDown      Direction = "down"
	DirectionUnchanged Direction = "unchanged"
)

// SimpleCondition compares a metric with a threshold.
type SimpleCondition struct {
	Metric   Metric   `json:"metric"`
	Operator Operator `json:"operator"`
	Value    float64  `json:"value"`
}

// ConsecutiveCondition requires Days strictly monotonic (or equal) closes.
type ConsecutiveCondition struct {
	Days      int       `json:"days"`
	Direction Direction `json:"direction"`
}

// PatternCondition names a pattern that resolves through the pattern table.
type PatternCondition struct {
	Pattern string `json:"pattern"`
	Params  Params `json:"params,omitempty"`
}

// TechnicalCondition evaluates an indicator over the price history window.
type TechnicalCondition struct {
	Indicator Indicator `json:"indicator"`
	Operator  Operator  `json:"operator"`
	Value     float64   `json:"value"`
	Params    Params    `json:"params,omitempty"`
}

func (SimpleCondition) Kind() ConditionKind      { return KindSimple }
func (ConsecutiveCondition) Kind() ConditionKind { return KindConsecutive }
func (PatternCondition) Kind() ConditionKind     { return KindPattern }
func (TechnicalCondition) Kind() ConditionKind   { return KindTechnical }

func (c SimpleCondition) Describe() string {
	return fmt.Sprintf("%s %s %g", c.Metric, c.Operator, c.Value)
}

func (c ConsecutiveCondition) Describe() string {
	return fmt.Sprintf("%d consecutive %s days", c.Days, c.Direction)
}

func (c PatternCondition) Describe() string {
	if len(c.Params) == 0 {
		return "pattern " + c.Pattern
	}
	return fmt.Sprintf("pattern %s %s", c.Pattern, c.Params.describe())
}

func (c TechnicalCondition) Describe() string {
	if len(c.Params) == 0 {
		return fmt.Sprintf("%s %s %g", c.Indicator, c.Operator, c.Value)
	}
	return fmt.Sprintf("%s %s %g %s", c.Indicator, c.Operator, c.Value, c.Params.describe())
}

func (c SimpleCondition) MarshalJSON() ([]byte, error) {
	type alias SimpleCondition
	return json.Marshal(struct {
		Type ConditionKind `json:"type"`
		alias
	}{KindSimple, alias(c)})
}

func (c ConsecutiveCondition) MarshalJSON() ([]byte, error) {
	type alias ConsecutiveCondition
	return json.Marshal(struct {
		Type ConditionKind `json:"type"`
		alias
	}{KindConsecutive, alias(c)})
}

func (c PatternCondition) MarshalJSON() ([]byte, error) {
	type alias PatternCondition
	return json.Marshal(struct {
		Type ConditionKind `json:"type"`
		alias
	}{KindPattern, alias(c)})
}

func (c TechnicalCondition) MarshalJSON() ([]byte, error) {
	type alias TechnicalCondition
	return json.Marshal(struct {
		Type ConditionKind `json:"type"`
		alias
	}{KindTechnical, alias(c)})
}

type conditionEnvelope struct {
	Type      ConditionKind `json:"type"`
	Metric    Metric        `json:"metric"`
	Operator  Operator      `json:"operator"`
	Value     float64       `json:"value"`
	Days      int           `json:"days"`
	Direction Direction     `json:"direction"`
	Pattern   string        `json:"pattern"`
	Indicator Indicator     `json:"indicator"`
	Params    Params        `json:"params"`
}

// DecodeCondition decodes a type-discriminated condition document.
func DecodeCondition(data []byte) (Condition, error) {
	var env conditionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}
	op := Operator(strings.ToLower(string(env.Operator)))
	switch ConditionKind(strings.ToLower(string(env.Type))) {
	case KindSimple:
		return SimpleCondition{Metric: Metric(strings.ToLower(string(env.Metric))), Operator: op, Value: env.Value}, nil
	case KindConsecutive:
		return ConsecutiveCondition{Days: env.Days, Direction: Direction(strings.ToLower(string(env.Direction)))}, nil
	case KindPattern:
		return PatternCondition{Pattern: strings.ToLower(env.Pattern), Params: env.Params}, nil
	case KindTechnical:
		return TechnicalCondition{Indicator: Indicator(strings.ToLower(string(env.Indicator))), Operator: op, Value: env.Value, Params: env.Params}, nil
	default:
		return nil, fmt.Errorf("unknown condition type %q", env.Type)
	}
}

// UnmarshalJSON decodes the condition envelope and normalizes type and timeframe.
func (a *StrategyAction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      ActionType      `json:"type"`
		Condition json.RawMessage `json:"condition"`
		Timeframe Timeframe       `json:"timeframe"`
		Amount    AmountRule      `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Type = ActionType(strings.ToLower(string(raw.Type)))
	a.Timeframe = Timeframe(strings.ToLower(string(raw.Timeframe)))
	if a.Timeframe == "" {
		a.Timeframe = TimeframeDaily
	}
	a.Amount = raw.Amount
	a.Condition = nil
	if len(raw.Condition) > 0 && string(raw.Condition) != "null" {
		cond, err := DecodeCondition(raw.Condition)
		if err != nil {
			return err
		}
		a.Condition = cond
	}
	return nil
}

// Params carries indicator-specific settings. Numbers may arrive as JSON
// numbers or numeric strings.
type Params map[string]any

// Float returns the numeric parameter or def.
func (p Params) Float(key string, def float64) float64 {
	if v, ok := p.number(key); ok {
		return v
	}
	return def
}

// Int returns the integer parameter or def. Non-positive values fall back
// to def since every integer parameter is a period or count.
func (p Params) Int(key string, def int) int {
	if v, ok := p.number(key); ok && int(v) > 0 {
		return int(v)
	}
	return def
}

// String returns the lower-cased string parameter or def.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return strings.ToLower(v)
	}
	return def
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p Params) number(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(v, "%")), 64)
		return f, err == nil
	}
	return 0, false
}

// describe renders p as "k=v" pairs in key order, e.g. "fast=12 slow=26".
func (p Params) describe() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		if v, ok := p.number(k); ok {
			if _, isString := p[k].(string); !isString {
				parts[i] = k + "=" + strconv.FormatFloat(v, 'g', -1, 64)
				continue
			}
		}
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, " ")
}

// merge returns a copy of p overlaid with over.
func (p Params) merge(over Params) Params {
	out := make(Params, len(p)+len(over))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
