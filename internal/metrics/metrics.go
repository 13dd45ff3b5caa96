// Package metrics provides Prometheus instrumentation for the backtest
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BacktestsTotal counts simulation runs, partitioned by strategy and
	// outcome.
	BacktestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sbe_backtests_total",
		Help: "Total number of backtest runs",
	}, []string{"strategy", "outcome"})

	// BacktestDuration tracks wall-clock simulation time per strategy.
	BacktestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sbe_backtest_duration_seconds",
		Help:    "Backtest run duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	// BarsProcessed counts bars stepped through by the simulation loop.
	BarsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sbe_bars_processed_total",
		Help: "Total historical bars processed",
	})

	// SimulatedFills counts fills produced by the matching engine,
	// partitioned by side.
	SimulatedFills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sbe_simulated_fills_total",
		Help: "Total simulated order fills",
	}, []string{"side"})

	// StrategyFaults counts per-bar strategy evaluation failures.
	StrategyFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sbe_strategy_faults_total",
		Help: "Per-bar strategy evaluation faults (run continues)",
	}, []string{"strategy"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sbe_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sbe_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sbe_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is low.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
