// Package metrics provides Prometheus instrumentation for the options engine.
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
	// OptionsCreated counts options written, partitioned by type.
	OptionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedgex_options_created_total",
		Help: "Total number of options created",
	}, []string{"type"})

	// OptionsExercised counts settled options, partitioned by type.
	OptionsExercised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedgex_options_exercised_total",
		Help: "Total number of options exercised",
	}, []string{"type"})

	// OptionsExpired counts options released unexercised.
	OptionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hedgex_options_expired_total",
		Help: "Total number of options expired without exercise",
	})

	// ActiveOptions tracks the number of live positions.
	ActiveOptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hedgex_active_options",
		Help: "Number of currently active options",
	})

	// PoolUtilization tracks locked/total pool value as a percentage.
	// Approximate display value; exact accounting lives in the ledger.
	PoolUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hedgex_pool_utilization_percent",
		Help: "Locked share of pool value, percent",
	})

	// StakingProfitEvents counts profit distributions per staking pool.
	StakingProfitEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedgex_staking_profit_events_total",
		Help: "Profit distributions routed to staking pools",
	}, []string{"pool"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hedgex_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedgex_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hedgex_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// ExposureRejections counts creates rejected by the exposure limiter.
	ExposureRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hedgex_exposure_rejections_total",
		Help: "Option creates rejected by the exposure limiter",
	})
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

		// Use the route pattern for path label to avoid high cardinality.
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
