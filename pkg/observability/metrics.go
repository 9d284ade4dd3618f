package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Database connection pool gauges, sampled by the pool monitor
	dbPoolAcquiredConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_acquired_connections",
			Help: "Connections currently checked out of the pool",
		},
	)

	dbPoolIdleConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_idle_connections",
			Help: "Idle connections sitting in the pool",
		},
	)

	dbPoolMaxConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_max_connections",
			Help: "Configured maximum pool size",
		},
	)

	dbPoolEmptyAcquires = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_pool_empty_acquires_total",
			Help: "Acquires that had to wait for a connection",
		},
	)
)

// lastEmptyAcquires holds the cumulative pgxpool counter from the previous
// sample. Only the pool monitor goroutine records stats, so no locking.
var lastEmptyAcquires int64

// RecordDBPoolStats publishes a connection pool snapshot
func RecordDBPoolStats(stat *pgxpool.Stat) {
	dbPoolAcquiredConns.Set(float64(stat.AcquiredConns()))
	dbPoolIdleConns.Set(float64(stat.IdleConns()))
	dbPoolMaxConns.Set(float64(stat.MaxConns()))

	if delta := stat.EmptyAcquireCount() - lastEmptyAcquires; delta > 0 {
		dbPoolEmptyAcquires.Add(float64(delta))
	}
	lastEmptyAcquires = stat.EmptyAcquireCount()
}

// RequestMetrics is chi middleware that records Prometheus metrics per request.
// Routes are labelled with the chi route pattern, not the raw path, to keep
// label cardinality bounded.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		// Call the handler
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		// Record metrics
		duration := time.Since(start).Seconds()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
