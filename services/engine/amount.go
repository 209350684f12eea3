package engine

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AmountType selects how an order is sized.
type AmountType string

const (
	AmountFixed      AmountType = "fixed_amount"
	AmountPercentage AmountType = "percentage"
	AmountShares     AmountType = "shares"
)

// AmountRule is the abstract order sizing rule. A nil Value means the
// rule carried no usable number.
type AmountRule struct {
	Type  AmountType `json:"type"`
	Value *float64   `json:"value,omitempty"`
}

// FixedAmount sizes orders in currency units.
func FixedAmount(v float64) AmountRule { return AmountRule{Type: AmountFixed, Value: &v} }

// Percentage sizes orders as a percent of portfolio value.
func Percentage(v float64) AmountRule { return AmountRule{Type: AmountPercentage, Value: &v} }

// Shares sizes orders by quantity.
func Shares(v float64) AmountRule { return AmountRule{Type: AmountShares, Value: &v} }

func (r AmountRule) value() (float64, bool) {
	if r.Value == nil || math.IsNaN(*r.Value) || math.IsInf(*r.Value, 0) {
		return 0, false
	}
	return *r.Value, true
}

// UnmarshalJSON accepts numeric values or numeric strings such as "5%" or
// "$250". Anything else leaves Value nil.
func (r *AmountRule) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Type = normalizeAmountType(raw.Type)
	r.Value = nil

	if len(raw.Value) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw.Value, &f); err == nil {
		r.Value = &f
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Value, &s); err == nil {
		s = strings.TrimSpace(strings.NewReplacer("$", "", "%", "", ",", "").Replace(s))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			r.Value = &f
		}
	}
	return nil
}

func normalizeAmountType(s string) AmountType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed_amount", "fixed", "dollars", "amount":
		return AmountFixed
	case "percentage", "percent", "pct":
		return AmountPercentage
	case "shares", "quantity":
		return AmountShares
	}
	return AmountType(strings.ToLower(s))
}

// OrderSize is a resolved order in currency units and shares.
type OrderSize struct {
	Dollars   float64
	Shares    float64
	Type      AmountType // rule type actually applied
	Value     float64    // rule value actually applied
	Defaulted bool       // the safety floor replaced the computed size
}

// AmountCalculator resolves AmountRules into concrete orders.
type AmountCalculator struct {
	DefaultDollars    float64
	DefaultPercentage float64
}

// Resolve converts rule into dollars and shares. Missing values take
// type defaults; a non-positive result is replaced by a DefaultDollars
// order at price, so no order ever resolves to zero size in both terms.
func (c AmountCalculator) Resolve(rule AmountRule, portfolioValue, price float64) OrderSize {
	value, ok := rule.value()
	size := OrderSize{Type: rule.Type, Value: value}

	switch rule.Type {
	case AmountFixed:
		if !ok {
			size.Value = c.DefaultDollars
		}
		size.Dollars = size.Value
		size.Shares = sharesAt(size.Dollars, price)
	case AmountPercentage:
		if !ok {
			size.Value = c.DefaultPercentage
		}
		size.Dollars = portfolioValue * size.Value / 100
		size.Shares = sharesAt(size.Dollars, price)
	case AmountShares:
		if !ok {
			return c.floor(price)
		}
		size.Shares = value
		size.Dollars = value * price
	default:
		return c.floor(price)
	}

	if !(size.Dollars > 0) || !(size.Shares > 0) {
		return c.floor(price)
	}
	return size
}

func (c AmountCalculator) floor(price float64) OrderSize {
	return OrderSize{
		Dollars:   c.DefaultDollars,
		Shares:    sharesAt(c.DefaultDollars, price),
		Type:      AmountFixed,
		Value:     c.DefaultDollars,
		Defaulted: true,
	}
}

func sharesAt(dollars, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return dollars / price
}
