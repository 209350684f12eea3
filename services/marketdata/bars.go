// Package marketdata acquires daily bars ahead of a simulation run.
package marketdata

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"strategy-backtester/services/engine"
)

// RawBar is a bar as a provider returned it. Any field may be missing
// except that rows without a usable close are dropped.
type RawBar struct {
	Date   time.Time
	Open   decimal.NullDecimal
	High   decimal.NullDecimal
	Low    decimal.NullDecimal
	Close  decimal.NullDecimal
	Volume decimal.NullDecimal
}

// Normalize converts raw rows to engine bars: missing open, high and low
// take the close, missing volume is zero, rows are sorted and a later row
// for the same date replaces an earlier one.
func Normalize(raw []RawBar) []engine.PriceBar {
	byDay := make(map[time.Time]engine.PriceBar, len(raw))
	for _, r := range raw {
		if !r.Close.Valid || !r.Close.Decimal.IsPositive() || r.Date.IsZero() {
			continue
		}
		c := r.Close.Decimal.InexactFloat64()
		day := truncateDay(r.Date)
		byDay[day] = engine.PriceBar{
			Date:   day,
			Open:   orClose(r.Open, c),
			High:   orClose(r.High, c),
			Low:    orClose(r.Low, c),
			Close:  c,
			Volume: orZero(r.Volume),
		}
	}

	out := make([]engine.PriceBar, 0, len(byDay))
	for _, b := range byDay {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func orClose(d decimal.NullDecimal, c float64) float64 {
	if !d.Valid || !d.Decimal.IsPositive() {
		return c
	}
	return d.Decimal.InexactFloat64()
}

func orZero(d decimal.NullDecimal) float64 {
	if !d.Valid || d.Decimal.IsNegative() {
		return 0
	}
	return d.Decimal.InexactFloat64()
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DetectGaps returns the dates after which more than maxBusinessDays
// business days are missing.
func DetectGaps(bars []engine.PriceBar, maxBusinessDays int) []time.Time {
	var gaps []time.Time
	for i := 1; i < len(bars); i++ {
		if missing := len(BusinessDays(bars[i-1].Date.AddDate(0, 0, 1), bars[i].Date.AddDate(0, 0, -1))); missing > maxBusinessDays {
			gaps = append(gaps, bars[i-1].Date)
		}
	}
	return gaps
}
