package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"strategy-backtester/proto"
	"strategy-backtester/services/arrowpipeline"
	"strategy-backtester/services/config"
	"strategy-backtester/services/engine"
	"strategy-backtester/services/jobs"
	"strategy-backtester/services/marketdata"
	"strategy-backtester/services/monitoring"
	"strategy-backtester/strategies"
)

const defaultLookback = 365 * 24 * time.Hour

// BacktestService serves backtests over gRPC and REST.
type BacktestService struct {
	proto.UnimplementedBacktestServiceServer
	fetcher       *marketdata.Fetcher
	arrowPipeline *arrowpipeline.Pipeline
	jobs          *jobs.Registry
	monitoring    *monitoring.Metrics
	logger        *zap.Logger
	config        *config.Config
	started       time.Time
	now           func() time.Time
}

func NewBacktestService(cfg *config.Config, provider marketdata.Provider, metrics *monitoring.Metrics, logger *zap.Logger) *BacktestService {
	return &BacktestService{
		fetcher:       marketdata.NewFetcher(provider, cfg.Data.Fetcher, logger.Named("fetcher"), metrics),
		arrowPipeline: arrowpipeline.NewPipeline(cfg.Arrow, nil, logger.Named("arrow")),
		jobs:          jobs.NewRegistry(1000),
		monitoring:    metrics,
		logger:        logger,
		config:        cfg,
		started:       time.Now(),
		now:           time.Now,
	}
}

// ExecuteBacktest fetches bars for the request's universe and runs it.
func (s *BacktestService) ExecuteBacktest(ctx context.Context, req *proto.BacktestRequest) (*proto.BacktestResponse, error) {
	strategy, warnings, apiErr := s.buildStrategy(req)
	if apiErr != nil {
		return nil, apiErr
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Server.RequestTimeout)
	defer cancel()

	s.logger.Info("starting backtest",
		zap.String("strategy", strategy.Name),
		zap.Strings("symbols", strategy.Universe.Symbols),
		zap.Time("start", strategy.TimeRange.Start),
		zap.Time("end", strategy.TimeRange.End),
	)

	bars, report, err := s.fetcher.Fetch(ctx, strategy.Universe.Symbols, strategy.TimeRange.Start, strategy.TimeRange.End)
	if err != nil {
		return nil, contextError(err)
	}
	for sym, gaps := range report.Gaps {
		warnings = append(warnings, fmt.Sprintf("%s: %d data gaps", sym, len(gaps)))
	}
	sort.Strings(warnings)

	resp, err := s.run(ctx, strategy, bars)
	if err != nil {
		return nil, err
	}
	resp.Warnings = warnings
	resp.Placeholders = report.Placeholders
	return resp, nil
}

// ExecuteBars runs a preset over a caller-supplied bar set. An empty set
// reaches the engine and comes back as DATA_NOT_FOUND.
func (s *BacktestService) ExecuteBars(ctx context.Context, preset string, bars map[string][]engine.PriceBar) (*proto.BacktestResponse, error) {
	symbols := make([]string, 0, len(bars))
	for sym := range bars {
		symbols = append(symbols, sym)
	}
	strategy, err := strategies.FromPreset(preset, symbols, engine.TimeRange{})
	if err != nil {
		return nil, proto.ErrInvalidStrategy.WithDetails(err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Server.RequestTimeout)
	defer cancel()
	return s.run(ctx, strategy, bars)
}

func (s *BacktestService) GetBacktest(_ context.Context, req *proto.GetBacktestRequest) (*proto.BacktestResponse, error) {
	job, err := s.jobs.Get(req.JobID)
	if err != nil {
		return nil, proto.ErrNotFound.WithDetails(req.JobID)
	}
	return proto.FromResult(job.ID, string(job.Status), job.Result, job.Manifest, job.CreatedAt, job.Elapsed), nil
}

func (s *BacktestService) ListPresets(context.Context, *proto.ListPresetsRequest) (*proto.ListPresetsResponse, error) {
	resp := &proto.ListPresetsResponse{}
	for _, p := range strategies.Presets() {
		resp.Presets = append(resp.Presets, &proto.Preset{Name: p.Name, Description: p.Description})
	}
	return resp, nil
}

// run executes the engine off the request goroutine so the request
// timeout can cut the wait short. The run itself is not interrupted.
func (s *BacktestService) run(ctx context.Context, strategy engine.Strategy, bars map[string][]engine.PriceBar) (*proto.BacktestResponse, error) {
	manifest, err := engine.BuildManifest(s.config.Engine, strategy, bars)
	if err != nil {
		return nil, proto.ErrExecutionFailed.WithDetails(err.Error())
	}

	eng := engine.New(
		engine.WithConfig(s.config.Engine),
		engine.WithLogger(s.logger.Named("engine").With(zap.String("strategy_hash", manifest.StrategyHash))),
		engine.WithEventSink(s.monitoring),
	)

	type outcome struct {
		res     *engine.Result
		elapsed time.Duration
	}
	done := make(chan outcome, 1)
	go func() {
		start := time.Now()
		finish := s.monitoring.StartRun()
		res := eng.Run(strategy, bars)
		finish(res)
		done <- outcome{res: res, elapsed: time.Since(start)}
	}()

	select {
	case <-ctx.Done():
		s.logger.Warn("backtest abandoned", zap.Error(ctx.Err()))
		return nil, contextError(ctx.Err())
	case out := <-done:
		job := s.jobs.Put(strategy, manifest, out.res, out.elapsed)
		s.logger.Info("backtest completed",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Duration("execution_time", out.elapsed),
			zap.Int("transactions", len(out.res.Transactions)),
		)
		return proto.FromResult(job.ID, string(job.Status), out.res, manifest, job.CreatedAt, out.elapsed), nil
	}
}

// buildStrategy resolves the request into a validated strategy.
func (s *BacktestService) buildStrategy(req *proto.BacktestRequest) (engine.Strategy, []string, *proto.APIError) {
	var (
		strategy engine.Strategy
		err      error
	)
	switch {
	case len(req.Strategy) > 0 && req.Preset != "":
		return strategy, nil, proto.ErrInvalidParams.WithDetails("strategy and preset are mutually exclusive")
	case len(req.Strategy) > 0:
		strategy, err = strategies.Decode(req.Strategy)
	case req.Preset != "":
		strategy, err = strategies.FromPreset(strings.ToLower(req.Preset), nil, engine.TimeRange{})
	default:
		return strategy, nil, proto.ErrInvalidParams.WithDetails("one of strategy or preset is required")
	}
	if err != nil {
		return strategy, nil, proto.ErrInvalidStrategy.WithDetails(err.Error())
	}

	if len(req.Symbols) > 0 {
		strategy.Universe.Symbols = strategies.NormalizeSymbols(req.Symbols)
	}
	if req.Start != "" {
		t, err := time.Parse("2006-01-02", req.Start)
		if err != nil {
			return strategy, nil, proto.ErrInvalidParams.WithDetails("start: " + err.Error())
		}
		strategy.TimeRange.Start = t
	}
	if req.End != "" {
		t, err := time.Parse("2006-01-02", req.End)
		if err != nil {
			return strategy, nil, proto.ErrInvalidParams.WithDetails("end: " + err.Error())
		}
		strategy.TimeRange.End = t
	}
	if strategy.TimeRange.End.IsZero() {
		strategy.TimeRange.End = s.now().UTC().Truncate(24 * time.Hour)
	}
	if strategy.TimeRange.Start.IsZero() {
		strategy.TimeRange.Start = strategy.TimeRange.End.Add(-defaultLookback)
	}

	warnings, err := engine.Validate(strategy)
	if err != nil {
		return strategy, warnings, proto.ErrInvalidStrategy.WithDetails(err.Error())
	}
	return strategy, warnings, nil
}

func contextError(err error) *proto.APIError {
	if errors.Is(err, context.DeadlineExceeded) {
		return proto.ErrTimeout.WithDetails(err.Error())
	}
	return proto.ErrExecutionFailed.WithDetails(err.Error())
}
