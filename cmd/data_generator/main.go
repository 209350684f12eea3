// Data generator: writes deterministic synthetic daily bars, one CSV per
// symbol or a single Arrow IPC file, for exercising strategies offline.
package main

import (
	"context"
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"strategy-backtester/services/arrowpipeline"
	"strategy-backtester/services/engine"
	"strategy-backtester/services/marketdata"
)

type genConfig struct {
	Start      time.Time
	Days       int
	StartPrice float64
	Volatility float64
	GapChance  float64
	Seed       uint64
}

// regime drifts cycle every 60 trading days: up, down, flat, gentle up.
var regimes = []float64{0.002, -0.002, 0, 0.001}

// generate returns business-day bars for symbol. The same seed and symbol
// always produce the same series.
func generate(symbol string, cfg genConfig) []marketdata.RawBar {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewPCG(cfg.Seed, h.Sum64()))

	days := marketdata.BusinessDays(cfg.Start, cfg.Start.AddDate(0, 0, cfg.Days*2))
	if len(days) > cfg.Days {
		days = days[:cfg.Days]
	}

	price := cfg.StartPrice
	out := make([]marketdata.RawBar, 0, len(days))
	for i, d := range days {
		drift := regimes[(i/60)%len(regimes)]
		open := price
		if rng.Float64() < cfg.GapChance {
			open = price * (1 + (rng.Float64()*0.06 - 0.03))
		}
		change := drift + rng.NormFloat64()*cfg.Volatility
		last := math.Max(open*(1+change), 1)
		high := math.Max(open, last) * (1 + rng.Float64()*cfg.Volatility/2)
		low := math.Min(open, last) * (1 - rng.Float64()*cfg.Volatility/2)
		volume := math.Round(1e6 * (0.5 + rng.Float64()) * (1 + 10*math.Abs(change)))

		out = append(out, marketdata.RawBar{
			Date:   d,
			Open:   dec(open),
			High:   dec(high),
			Low:    dec(low),
			Close:  dec(last),
			Volume: dec(volume),
		})
		price = last
	}
	return out
}

func dec(v float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v).Round(4))
}

func main() {
	var (
		symbols    = flag.String("symbols", "AAPL,MSFT,SPY", "comma separated symbols")
		start      = flag.String("start", "2023-01-02", "first date YYYY-MM-DD")
		days       = flag.Int("days", 252, "trading days per symbol")
		price      = flag.Float64("price", 100, "starting price")
		volatility = flag.Float64("volatility", 0.015, "daily volatility")
		gaps       = flag.Float64("gap-chance", 0.05, "probability of an opening gap")
		seed       = flag.Uint64("seed", 42, "random seed")
		out        = flag.String("out", "./data", "output directory, or .arrow file path")
	)
	flag.Parse()

	startDate, err := time.Parse("2006-01-02", *start)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}
	cfg := genConfig{Start: startDate, Days: *days, StartPrice: *price, Volatility: *volatility, GapChance: *gaps, Seed: *seed}

	series := make(map[string][]marketdata.RawBar)
	for _, sym := range strings.Split(*symbols, ",") {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			series[sym] = generate(sym, cfg)
		}
	}

	if strings.HasSuffix(*out, ".arrow") {
		if err := writeArrow(*out, series); err != nil {
			log.Fatalf("write arrow: %v", err)
		}
		fmt.Printf("Wrote %d symbols to %s\n", len(series), *out)
		return
	}
	if err := writeCSVs(*out, series); err != nil {
		log.Fatalf("write csv: %v", err)
	}
	fmt.Printf("Wrote %d symbols x %d bars to %s\n", len(series), *days, *out)
}

func writeCSVs(dir string, series map[string][]marketdata.RawBar) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for sym, raw := range series {
		f, err := os.Create(filepath.Join(dir, sym+".csv"))
		if err != nil {
			return err
		}
		if err := marketdata.WriteCSV(f, raw); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

func writeArrow(path string, series map[string][]marketdata.RawBar) error {
	bars := make(map[string][]engine.PriceBar, len(series))
	for sym, raw := range series {
		bars[sym] = marketdata.Normalize(raw)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	pipeline := arrowpipeline.NewPipeline(arrowpipeline.Config{}, nil, zap.NewNop())
	if err := pipeline.WriteBars(context.Background(), f, bars); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
