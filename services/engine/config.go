package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// Version is stamped into run manifests.
const Version = "1.4.0"

// Config holds the simulation constants.
type Config struct {
	InitialCash         float64 `json:"initial_cash" yaml:"initial_cash"`
	HistoryCap          int     `json:"history_cap" yaml:"history_cap"`
	WeekLookback        int     `json:"week_lookback" yaml:"week_lookback"`
	MonthLookback       int     `json:"month_lookback" yaml:"month_lookback"`
	ReconcileEpsilon    float64 `json:"reconcile_epsilon" yaml:"reconcile_epsilon"`
	TradingDaysPerYear  float64 `json:"trading_days_per_year" yaml:"trading_days_per_year"`
	DefaultOrderDollars float64 `json:"default_order_dollars" yaml:"default_order_dollars"`
	DefaultPercentage   float64 `json:"default_percentage" yaml:"default_percentage"`
}

func DefaultConfig() Config {
	return Config{
		InitialCash:         10000,
		HistoryCap:          30,
		WeekLookback:        5,
		MonthLookback:       20,
		ReconcileEpsilon:    0.01,
		TradingDaysPerYear:  252,
		DefaultOrderDollars: 100,
		DefaultPercentage:   5,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialCash <= 0 {
		c.InitialCash = d.InitialCash
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = d.HistoryCap
	}
	if c.WeekLookback <= 0 {
		c.WeekLookback = d.WeekLookback
	}
	if c.MonthLookback <= 0 {
		c.MonthLookback = d.MonthLookback
	}
	if c.ReconcileEpsilon <= 0 {
		c.ReconcileEpsilon = d.ReconcileEpsilon
	}
	if c.TradingDaysPerYear <= 0 {
		c.TradingDaysPerYear = d.TradingDaysPerYear
	}
	if c.DefaultOrderDollars <= 0 {
		c.DefaultOrderDollars = d.DefaultOrderDollars
	}
	if c.DefaultPercentage <= 0 {
		c.DefaultPercentage = d.DefaultPercentage
	}
	return c
}

// Manifest identifies a run's inputs. Equal manifests produce identical
// results.
type Manifest struct {
	EngineVersion string `json:"engine_version"`
	ConfigHash    string `json:"config_hash"`
	StrategyHash  string `json:"strategy_hash"`
	DataChecksum  string `json:"data_checksum"`
	Symbols       int    `json:"symbols"`
	Bars          int    `json:"bars"`
}

// BuildManifest hashes the run inputs. Bars are hashed in symbol order.
func BuildManifest(cfg Config, strategy Strategy, bars map[string][]PriceBar) (Manifest, error) {
	cfgHash, err := hashJSON(cfg.withDefaults())
	if err != nil {
		return Manifest{}, fmt.Errorf("hash config: %w", err)
	}
	stratHash, err := hashJSON(strategy)
	if err != nil {
		return Manifest{}, fmt.Errorf("hash strategy: %w", err)
	}

	h := sha256.New()
	m := Manifest{EngineVersion: Version, ConfigHash: cfgHash, StrategyHash: stratHash}
	symbols := sortedSymbols(bars)
	for _, sym := range symbols {
		series := append([]PriceBar(nil), bars[sym]...)
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		fmt.Fprintf(h, "%s\n", sym)
		for _, b := range series {
			fmt.Fprintf(h, "%d|%g|%g|%g|%g|%g\n", dayKey(b.Date).Unix(), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		m.Bars += len(series)
	}
	m.Symbols = len(symbols)
	m.DataChecksum = fmt.Sprintf("%x", h.Sum(nil))
	return m, nil
}

func hashJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sha256.Sum256(b)), nil
}
