package marketdata

import (
	"time"

	"strategy-backtester/services/engine"
)

// IsTradingDay treats every weekday as a session.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDays lists the weekdays in [from, to].
func BusinessDays(from, to time.Time) []time.Time {
	from, to = truncateDay(from), truncateDay(to)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// PlaceholderPrice is the constant close of a placeholder series.
const PlaceholderPrice = 100.0

// Placeholder is a flat series used when a symbol cannot be fetched. It
// never moves, so percent-change conditions never fire on it.
func Placeholder(from, to time.Time) []engine.PriceBar {
	days := BusinessDays(from, to)
	out := make([]engine.PriceBar, len(days))
	for i, d := range days {
		out[i] = engine.PriceBar{Date: d, Open: PlaceholderPrice, High: PlaceholderPrice, Low: PlaceholderPrice, Close: PlaceholderPrice}
	}
	return out
}

// IsPlaceholder reports whether bars look like a Placeholder series.
func IsPlaceholder(bars []engine.PriceBar) bool {
	if len(bars) == 0 {
		return false
	}
	for _, b := range bars {
		if b.Volume != 0 || b.Close != PlaceholderPrice || b.Open != b.Close {
			return false
		}
	}
	return true
}
