// Ingest loads <SYMBOL>.csv daily bar files into ClickHouse. Files already
// recorded in the ingest ledger are skipped.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"strategy-backtester/services/clickhouse"
	"strategy-backtester/services/config"
	"strategy-backtester/services/marketdata"
)

// Ingester is the part of the ClickHouse client the command drives.
type Ingester interface {
	EnsureSchema(ctx context.Context) error
	IngestFile(ctx context.Context, name, source string, content []byte, bars []clickhouse.DailyBar, batchSize int) (clickhouse.IngestResult, error)
}

type options struct {
	dir       string
	source    string
	batchSize int
	validate  bool
	strict    bool
}

func main() {
	var (
		configPath = flag.String("config", os.Getenv("BACKTEST_CONFIG"), "path to YAML config")
		o          options
	)
	flag.StringVar(&o.dir, "dir", "./data", "directory of <SYMBOL>.csv files")
	flag.StringVar(&o.source, "source", "csv", "source label stored with each row")
	flag.IntVar(&o.batchSize, "batch", 10000, "rows per insert batch")
	flag.BoolVar(&o.validate, "validate", false, "validate files without writing")
	flag.BoolVar(&o.strict, "strict", false, "skip files that fail validation")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	suite := NewValidationSuite(cfg.Data.Fetcher.MaxGapDays)
	if o.validate {
		if failed := validateDir(o.dir, suite, logger); failed > 0 {
			logger.Fatal("validation failed", zap.Int("files", failed))
		}
		return
	}

	client, err := clickhouse.Open(ctx, cfg.ClickHouse, logger.Named("clickhouse"))
	if err != nil {
		logger.Fatal("connect clickhouse", zap.Error(err))
	}
	defer client.Close()

	total, err := ingestDir(ctx, client, o, suite, logger)
	if err != nil {
		logger.Fatal("ingest failed", zap.Error(err))
	}
	logger.Info("ingest complete", zap.Int("rows", total))
}

func csvFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no csv files in %s", dir)
	}
	return files, nil
}

func symbolOf(path string) string {
	return strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

func validateDir(dir string, suite *ValidationSuite, logger *zap.Logger) int {
	files, err := csvFiles(dir)
	if err != nil {
		logger.Error("list files", zap.Error(err))
		return 1
	}
	failed := 0
	for _, path := range files {
		raw, err := readFile(path)
		if err != nil {
			logger.Error("parse", zap.String("file", path), zap.Error(err))
			failed++
			continue
		}
		rep := suite.Run(raw)
		logger.Info("validated", zap.String("file", path), zap.Int("rows", rep.Rows),
			zap.Int("violations", len(rep.Violations)), zap.Int("gaps", len(rep.Gaps)))
		for _, v := range rep.Violations {
			logger.Warn("violation", zap.String("file", path), zap.String("detail", v))
		}
		if !rep.OK() {
			failed++
		}
	}
	return failed
}

func readFile(path string) ([]marketdata.RawBar, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return marketdata.ParseCSV(bytes.NewReader(content))
}

// ingestDir writes every file in o.dir and returns the number of rows
// written.
func ingestDir(ctx context.Context, ing Ingester, o options, suite *ValidationSuite, logger *zap.Logger) (int, error) {
	files, err := csvFiles(o.dir)
	if err != nil {
		return 0, err
	}
	if err := ing.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	total := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return total, err
		}
		raw, err := marketdata.ParseCSV(bytes.NewReader(content))
		if err != nil {
			return total, fmt.Errorf("%s: %w", path, err)
		}
		if rep := suite.Run(raw); !rep.OK() {
			logger.Warn("validation problems", zap.String("file", path), zap.Strings("violations", rep.Violations))
			if o.strict {
				continue
			}
		}

		res, err := ing.IngestFile(ctx, filepath.Base(path), o.source, content, toDailyBars(symbolOf(path), raw), o.batchSize)
		if err != nil {
			return total, fmt.Errorf("%s: %w", path, err)
		}
		if !res.Skipped {
			total += res.Rows
		}
	}
	return total, nil
}

// toDailyBars keeps rows with a close and carries missing fields as nil.
func toDailyBars(symbol string, raw []marketdata.RawBar) []clickhouse.DailyBar {
	out := make([]clickhouse.DailyBar, 0, len(raw))
	for _, r := range raw {
		if !r.Close.Valid {
			continue
		}
		b := clickhouse.DailyBar{Symbol: symbol, Date: r.Date, Close: r.Close.Decimal}
		if r.Open.Valid {
			b.Open = &r.Open.Decimal
		}
		if r.High.Valid {
			b.High = &r.High.Decimal
		}
		if r.Low.Valid {
			b.Low = &r.Low.Decimal
		}
		if r.Volume.Valid {
			b.Volume = &r.Volume.Decimal
		}
		out = append(out, b)
	}
	return out
}
