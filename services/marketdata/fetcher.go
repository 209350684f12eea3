package marketdata

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"strategy-backtester/services/engine"
)

type FetcherConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	Burst           int           `yaml:"burst"`
	BatchDelay      time.Duration `yaml:"batch_delay"`
	Jitter          time.Duration `yaml:"jitter"`
	MaxGapDays      int           `yaml:"max_gap_days"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		BatchSize:       3,
		RatePerSecond:   5,
		Burst:           3,
		BatchDelay:      200 * time.Millisecond,
		Jitter:          100 * time.Millisecond,
		MaxGapDays:      5,
		BreakerFailures: 3,
		BreakerTimeout:  30 * time.Second,
	}
}

// Outcome labels how a symbol's series was obtained.
type Outcome string

const (
	OutcomeFetched     Outcome = "fetched"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeFailed      Outcome = "failed"
	OutcomeBreakerOpen Outcome = "breaker_open"
)

// Observer is notified once per symbol fetch.
type Observer interface {
	ObserveFetch(provider, symbol string, outcome Outcome, elapsed time.Duration)
}

// FetchReport summarises a Fetch call.
type FetchReport struct {
	Fetched      []string
	Placeholders []string
	Gaps         map[string][]time.Time
}

// Fetcher pulls every symbol before a run, a small batch at a time. A
// symbol that cannot be fetched gets a Placeholder series instead of
// failing the run.
type Fetcher struct {
	provider Provider
	cfg      FetcherConfig
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	observer Observer
}

func NewFetcher(provider Provider, cfg FetcherConfig, logger *zap.Logger, observer Observer) *Fetcher {
	def := DefaultFetcherConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxGapDays <= 0 {
		cfg.MaxGapDays = def.MaxGapDays
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	failures := cfg.BreakerFailures
	st := gobreaker.Settings{Name: provider.Name(), Timeout: cfg.BreakerTimeout}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= failures
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("provider breaker state change",
			zap.String("provider", name), zap.String("from", from.String()), zap.String("to", to.String()))
	}

	return &Fetcher{
		provider: provider,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker:  gobreaker.NewCircuitBreaker(st),
		logger:   logger,
		observer: observer,
	}
}

// PlanBatches upper-cases and de-duplicates symbols, then splits them into
// batches of at most size.
func PlanBatches(symbols []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	seen := make(map[string]struct{}, len(symbols))
	uniq := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		uniq = append(uniq, s)
	}

	var batches [][]string
	for i := 0; i < len(uniq); i += size {
		end := min(i+size, len(uniq))
		batches = append(batches, uniq[i:end])
	}
	return batches
}

// Fetch returns normalized bars for every symbol. It fails only when ctx
// ends.
func (f *Fetcher) Fetch(ctx context.Context, symbols []string, from, to time.Time) (map[string][]engine.PriceBar, FetchReport, error) {
	out := make(map[string][]engine.PriceBar, len(symbols))
	report := FetchReport{Gaps: make(map[string][]time.Time)}
	var mu sync.Mutex

	batches := PlanBatches(symbols, f.cfg.BatchSize)
	for i, batch := range batches {
		if i > 0 {
			if err := f.pause(ctx); err != nil {
				return nil, report, err
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.cfg.BatchSize)
		for _, sym := range batch {
			g.Go(func() error {
				bars, ok := f.fetchOne(gctx, sym, from, to)
				mu.Lock()
				defer mu.Unlock()
				out[sym] = bars
				if ok {
					report.Fetched = append(report.Fetched, sym)
					if gaps := DetectGaps(bars, f.cfg.MaxGapDays); len(gaps) > 0 {
						report.Gaps[sym] = gaps
					}
				} else {
					report.Placeholders = append(report.Placeholders, sym)
				}
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
	}

	sort.Strings(report.Fetched)
	sort.Strings(report.Placeholders)
	f.logger.Info("market data fetched",
		zap.String("provider", f.provider.Name()),
		zap.Int("symbols", len(out)),
		zap.Strings("placeholders", report.Placeholders))
	return out, report, nil
}

func (f *Fetcher) pause(ctx context.Context) error {
	d := f.cfg.BatchDelay
	if f.cfg.Jitter > 0 {
		d += rand.N(f.cfg.Jitter)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fetchOne returns the symbol's bars, or a placeholder and false.
func (f *Fetcher) fetchOne(ctx context.Context, symbol string, from, to time.Time) ([]engine.PriceBar, bool) {
	start := time.Now()
	outcome := OutcomeFetched
	defer func() {
		if f.observer != nil {
			f.observer.ObserveFetch(f.provider.Name(), symbol, outcome, time.Since(start))
		}
	}()

	if err := f.limiter.Wait(ctx); err != nil {
		outcome = OutcomeFailed
		return Placeholder(from, to), false
	}

	notFound := false
	res, err := f.breaker.Execute(func() (interface{}, error) {
		raw, err := f.provider.FetchDaily(ctx, symbol, from, to)
		if errors.Is(err, ErrSymbolNotFound) {
			// an unknown symbol is not a provider fault
			notFound = true
			return []RawBar(nil), nil
		}
		return raw, err
	})

	var bars []engine.PriceBar
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = OutcomeBreakerOpen
	case err != nil:
		outcome = OutcomeFailed
	case notFound:
		outcome = OutcomeNotFound
	default:
		bars = Normalize(res.([]RawBar))
		if len(bars) == 0 {
			outcome = OutcomeNotFound
		}
	}
	if outcome != OutcomeFetched {
		f.logger.Warn("substituting placeholder series",
			zap.String("provider", f.provider.Name()),
			zap.String("symbol", symbol),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
		return Placeholder(from, to), false
	}
	return bars, true
}
