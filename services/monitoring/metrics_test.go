package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-backtester/services/engine"
	"strategy-backtester/services/marketdata"
)

func TestEventSinkCountsByType(t *testing.T) {
	m := NewMetrics()
	m.Append(engine.Event{Type: engine.EventInsufficientCash})
	m.Append(engine.Event{Type: engine.EventInsufficientCash})
	m.Append(engine.Event{Type: engine.EventOrderFilled})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EngineEvents.WithLabelValues("insufficient_cash")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineEvents.WithLabelValues("order_filled")))
}

func TestObserveFetch(t *testing.T) {
	m := NewMetrics()
	m.ObserveFetch("csv", "AAPL", marketdata.OutcomeFetched, 20*time.Millisecond)
	m.ObserveFetch("csv", "ZZZZ", marketdata.OutcomeNotFound, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("csv", "fetched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("csv", "not_found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FetchDuration))
}

func TestObserveRunStatuses(t *testing.T) {
	m := NewMetrics()

	done := m.StartRun()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveRuns))
	done(&engine.Result{
		Metrics: engine.Metrics{ValuesConsistent: true},
		Transactions: []engine.Transaction{
			{Type: engine.TxBuy}, {Type: engine.TxBuy}, {Type: engine.TxSell},
		},
	})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))

	m.ObserveRun(&engine.Result{Error: engine.NoTradingData}, time.Millisecond)
	m.ObserveRun(nil, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("no_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transactions.WithLabelValues("buy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("sell")))
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/v1/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/v1/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "backtest_http_requests_total"))
}
