// Package metrics provides Prometheus instrumentation for the tracker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LedgerEventsTotal counts recorded ledger events, partitioned by kind
	// ("purchase", "sale") and action ("create", "delete").
	LedgerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skintrack_ledger_events_total",
		Help: "Total ledger events recorded",
	}, []string{"kind", "action"})

	// GuardRejections counts purchases and sales rejected by the position guard.
	GuardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skintrack_guard_rejections_total",
		Help: "Ledger writes rejected by the position guard",
	}, []string{"reason"})

	// PortfolioLatency tracks how long portfolio computations take.
	PortfolioLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skintrack_portfolio_compute_seconds",
		Help:    "Portfolio computation latency in seconds, including store reads",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// PriceFetches counts market price lookups by result ("ok", "no_price", "error").
	PriceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skintrack_price_fetches_total",
		Help: "Market price lookups against the external marketplace",
	}, []string{"result"})

	// SnapshotsWritten counts market snapshots appended by the refresher.
	SnapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skintrack_snapshots_written_total",
		Help: "Market snapshots appended",
	})

	// RefreshDuration tracks full price refresh cycle duration.
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skintrack_refresh_duration_seconds",
		Help:    "Duration of a full price refresh cycle",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// FXLookups counts currency rate lookups by result ("cache", "fetch", "error").
	FXLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skintrack_fx_lookups_total",
		Help: "Currency rate lookups",
	}, []string{"result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skintrack_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skintrack_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skintrack_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
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

		// Route pattern keeps user and item IDs out of the label set.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Since observes the elapsed time since start on a histogram vec.
func Since(h *prometheus.HistogramVec, label string, start time.Time) {
	h.WithLabelValues(label).Observe(time.Since(start).Seconds())
}
