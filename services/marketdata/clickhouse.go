package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"strategy-backtester/services/clickhouse"
)

// BarStore is the ClickHouse query the provider needs.
type BarStore interface {
	QueryDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]clickhouse.DailyBar, error)
}

// ClickHouseProvider serves bars ingested into ClickHouse.
type ClickHouseProvider struct {
	Store BarStore
}

func (ClickHouseProvider) Name() string { return "clickhouse" }

func (p ClickHouseProvider) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]RawBar, error) {
	rows, err := p.Store.QueryDailyBars(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	out := make([]RawBar, len(rows))
	for i, r := range rows {
		out[i] = RawBar{
			Date:   r.Date,
			Open:   nullable(r.Open),
			High:   nullable(r.High),
			Low:    nullable(r.Low),
			Close:  decimal.NewNullDecimal(r.Close),
			Volume: nullable(r.Volume),
		}
	}
	return out, nil
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
