// Package monitoring exposes Prometheus metrics for backtest runs, data
// fetches and the HTTP surface.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"strategy-backtester/services/engine"
	"strategy-backtester/services/marketdata"
)

// Metrics owns its registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	Transactions  *prometheus.CounterVec
	EngineEvents  *prometheus.CounterVec
	ActiveRuns    prometheus.Gauge
	Fetches       *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_runs_total",
				Help: "Completed backtest runs by status",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_run_duration_seconds",
				Help:    "Wall time of a simulation run",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"status"},
		),
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_transactions_total",
				Help: "Ledger transactions by type",
			},
			[]string{"type"},
		),
		EngineEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_engine_events_total",
				Help: "Engine decision events by type",
			},
			[]string{"event"},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtest_active_runs",
				Help: "Runs currently executing",
			},
		),
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_fetches_total",
				Help: "Per-symbol data fetches by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_fetch_duration_seconds",
				Help:    "Per-symbol fetch latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"method", "route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.Runs, m.RunDuration, m.Transactions, m.EngineEvents, m.ActiveRuns,
		m.Fetches, m.FetchDuration, m.HTTPRequests, m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry is exposed for tests and for embedding additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Append implements engine.EventSink.
func (m *Metrics) Append(e engine.Event) {
	m.EngineEvents.WithLabelValues(e.Type.String()).Inc()
}

// ObserveFetch implements marketdata.Observer.
func (m *Metrics) ObserveFetch(provider, _ string, outcome marketdata.Outcome, elapsed time.Duration) {
	m.Fetches.WithLabelValues(provider, string(outcome)).Inc()
	m.FetchDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// StartRun marks a run as active and returns the function that records
// its outcome.
func (m *Metrics) StartRun() func(res *engine.Result) {
	start := time.Now()
	m.ActiveRuns.Inc()
	return func(res *engine.Result) {
		m.ActiveRuns.Dec()
		m.ObserveRun(res, time.Since(start))
	}
}

// ObserveRun records a finished run and its ledger.
func (m *Metrics) ObserveRun(res *engine.Result, elapsed time.Duration) {
	status := "ok"
	switch {
	case res == nil:
		status = "failed"
	case res.Error != "":
		status = "no_data"
	case !res.Metrics.ValuesConsistent:
		status = "inconsistent"
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if res == nil {
		return
	}
	for _, tx := range res.Transactions {
		m.Transactions.WithLabelValues(string(tx.Type)).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GinMiddleware records request count and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
