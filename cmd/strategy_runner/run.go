package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/message"

	"strategy-backtester/services/arrowpipeline"
	"strategy-backtester/services/clickhouse"
	"strategy-backtester/services/config"
	"strategy-backtester/services/engine"
	"strategy-backtester/services/marketdata"
	"strategy-backtester/strategies"
)

const (
	sourceCSV        = "csv"
	sourceClickHouse = "clickhouse"
	sourceArrow      = "arrow"
)

type runOptions struct {
	strategyFile string
	preset       string
	symbols      []string
	start        string
	end          string
	source       string
	dataPath     string
	outDir       string
	jsonOut      bool
	cash         float64
}

func runCmd(g *globalFlags) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a strategy file or preset",
		Example: `  strategy_runner run --preset dip_buyer --symbols AAPL,MSFT --start 2023-01-01 --end 2023-12-31 --data ./data
  strategy_runner run --strategy rsi.json --source arrow --data bars.arrow --out ./out`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(g.verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runBacktest(cmd.Context(), cmd.OutOrStdout(), cfg, o, logger, printer(g.lang))
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.strategyFile, "strategy", "", "strategy document (.json, .yaml)")
	f.StringVar(&o.preset, "preset", "", "preset strategy name")
	f.StringSliceVar(&o.symbols, "symbols", nil, "symbols, overriding the strategy universe")
	f.StringVar(&o.start, "start", "", "first date YYYY-MM-DD")
	f.StringVar(&o.end, "end", "", "last date YYYY-MM-DD")
	f.StringVar(&o.source, "source", sourceCSV, "bar source: csv, clickhouse or arrow")
	f.StringVar(&o.dataPath, "data", "", "CSV directory or Arrow file (defaults to data.csv_dir)")
	f.StringVar(&o.outDir, "out", "", "directory for equity and ledger exports")
	f.BoolVar(&o.jsonOut, "json", false, "print the full result as JSON")
	f.Float64Var(&o.cash, "cash", 0, "initial cash (defaults to engine.initial_cash)")
	cmd.MarkFlagsMutuallyExclusive("strategy", "preset")
	cmd.MarkFlagsOneRequired("strategy", "preset")
	return cmd
}

func (o *runOptions) strategy() (engine.Strategy, error) {
	var (
		s   engine.Strategy
		err error
	)
	if o.strategyFile != "" {
		s, err = strategies.Load(o.strategyFile)
	} else {
		s, err = strategies.FromPreset(strings.ToLower(o.preset), nil, engine.TimeRange{})
	}
	if err != nil {
		return s, err
	}
	if len(o.symbols) > 0 {
		s.Universe.Symbols = strategies.NormalizeSymbols(o.symbols)
	}
	for _, d := range []struct {
		raw string
		dst *time.Time
	}{{o.start, &s.TimeRange.Start}, {o.end, &s.TimeRange.End}} {
		if d.raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", d.raw)
		if err != nil {
			return s, fmt.Errorf("invalid date %q: %w", d.raw, err)
		}
		*d.dst = t
	}
	if s.TimeRange.End.IsZero() {
		s.TimeRange.End = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if s.TimeRange.Start.IsZero() {
		s.TimeRange.Start = s.TimeRange.End.AddDate(-1, 0, 0)
	}
	return s, nil
}

func runBacktest(ctx context.Context, out io.Writer, cfg *config.Config, o *runOptions, logger *zap.Logger, p *message.Printer) error {
	s, err := o.strategy()
	if err != nil {
		return err
	}
	if o.cash > 0 {
		cfg.Engine.InitialCash = o.cash
	}

	bars, placeholders, err := loadBars(ctx, cfg, o, &s, logger)
	if err != nil {
		return err
	}
	warnings, err := engine.Validate(s)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn("strategy warning", zap.String("detail", w))
	}

	manifest, err := engine.BuildManifest(cfg.Engine, s, bars)
	if err != nil {
		return err
	}
	log := &engine.EventLog{}
	started := time.Now()
	res := engine.New(engine.WithConfig(cfg.Engine), engine.WithLogger(logger), engine.WithEventSink(log)).Run(s, bars)
	elapsed := time.Since(started)

	if o.outDir != "" && res.Error == "" {
		if err := export(o.outDir, res, cfg.Arrow, logger); err != nil {
			return err
		}
	}
	if o.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Manifest engine.Manifest `json:"manifest"`
			Result   *engine.Result  `json:"result"`
		}{manifest, res})
	}
	if res.Error != "" {
		return errors.New(res.Error)
	}
	printSummary(out, p, s, res, log, placeholders, elapsed)
	return nil
}

// loadBars reads the configured source. For Arrow files the strategy's
// universe becomes the symbols present in the file when none were given.
func loadBars(ctx context.Context, cfg *config.Config, o *runOptions, s *engine.Strategy, logger *zap.Logger) (map[string][]engine.PriceBar, []string, error) {
	switch o.source {
	case sourceArrow:
		if o.dataPath == "" {
			return nil, nil, errors.New("--data is required for the arrow source")
		}
		f, err := os.Open(o.dataPath)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		bars, err := arrowpipeline.NewPipeline(cfg.Arrow, nil, logger).ReadBars(f)
		if err != nil {
			return nil, nil, err
		}
		if len(s.Universe.Symbols) == 0 {
			for sym := range bars {
				s.Universe.Symbols = append(s.Universe.Symbols, sym)
			}
			s.Universe.Symbols = strategies.NormalizeSymbols(s.Universe.Symbols)
		}
		return bars, nil, nil

	case sourceCSV, sourceClickHouse:
		var provider marketdata.Provider
		if o.source == sourceCSV {
			dir := o.dataPath
			if dir == "" {
				dir = cfg.Data.CSVDir
			}
			provider = marketdata.CSVProvider{Dir: dir}
		} else {
			client, err := clickhouse.Open(ctx, cfg.ClickHouse, logger)
			if err != nil {
				return nil, nil, err
			}
			defer client.Close()
			provider = marketdata.ClickHouseProvider{Store: client}
		}
		bars, report, err := marketdata.NewFetcher(provider, cfg.Data.Fetcher, logger, nil).
			Fetch(ctx, s.Universe.Symbols, s.TimeRange.Start, s.TimeRange.End)
		if err != nil {
			return nil, nil, err
		}
		return bars, report.Placeholders, nil

	default:
		return nil, nil, fmt.Errorf("unknown source %q", o.source)
	}
}

func export(dir string, res *engine.Result, arrowCfg arrowpipeline.Config, logger *zap.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	pipeline := arrowpipeline.NewPipeline(arrowCfg, nil, logger)
	equity, err := pipeline.EncodeEquity(res.ValueHistory)
	if err != nil {
		return err
	}
	ledger, err := pipeline.EncodeLedger(res.Transactions)
	if err != nil {
		return err
	}
	files := map[string]func(io.Writer) error{
		"equity.arrow": func(w io.Writer) error { _, err := w.Write(equity); return err },
		"ledger.arrow": func(w io.Writer) error { _, err := w.Write(ledger); return err },
		"equity.csv":   func(w io.Writer) error { return writeEquityCSV(w, res.ValueHistory) },
		"ledger.csv":   func(w io.Writer) error { return writeLedgerCSV(w, res.Transactions) },
	}
	for name, write := range files {
		if err := writeFile(filepath.Join(dir, name), write); err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
	}
	logger.Info("exports written", zap.String("dir", dir))
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
