package engine

import "time"

// monday is the first bar date used throughout the tests.
var monday = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func nextBusinessDay(d time.Time) time.Time {
	d = d.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// flatBars builds business-day bars whose open, high, low and close all
// equal the given closes.
func flatBars(closes ...float64) []PriceBar {
	out := make([]PriceBar, len(closes))
	d := monday
	for i, c := range closes {
		out[i] = PriceBar{Date: d, Open: c, High: c, Low: c, Close: c, Volume: 1000}
		d = nextBusinessDay(d)
	}
	return out
}

func single(symbol string, actions ...StrategyAction) Strategy {
	return Strategy{Name: "test", Actions: actions, Universe: Universe{Symbols: []string{symbol}}}
}
