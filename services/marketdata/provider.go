package marketdata

import (
	"context"
	"errors"
	"time"
)

// ErrSymbolNotFound is returned by providers with no data for a symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// Provider returns raw daily bars for one symbol over [from, to].
type Provider interface {
	Name() string
	FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]RawBar, error)
}

// StaticProvider serves bars held in memory. It backs tests and the
// in-process demo data.
type StaticProvider struct {
	Bars map[string][]RawBar
}

func (StaticProvider) Name() string { return "static" }

func (p StaticProvider) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]RawBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, ok := p.Bars[symbol]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	return filterRange(raw, from, to), nil
}

func filterRange(raw []RawBar, from, to time.Time) []RawBar {
	from, to = truncateDay(from), truncateDay(to)
	out := make([]RawBar, 0, len(raw))
	for _, r := range raw {
		d := truncateDay(r.Date)
		if (!from.IsZero() && d.Before(from)) || (!to.IsZero() && d.After(to)) {
			continue
		}
		out = append(out, r)
	}
	return out
}
