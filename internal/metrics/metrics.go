package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: results served straight from the cache store.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calculator_cache_hits_total",
			Help: "Total number of resolves served from the cache store.",
		},
	)

	// Counter: fingerprints that required an evaluation.
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calculator_cache_misses_total",
			Help: "Total number of resolves that missed the cache store.",
		},
	)

	// Counter: entries dropped by TTL expiry or capacity trim.
	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calculator_cache_evictions_total",
			Help: "Total number of cache entries evicted.",
		},
	)

	// Counter: cache store operations that failed with a storage error.
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calculator_cache_errors_total",
			Help: "Total number of failed cache store operations.",
		},
		[]string{"op"},
	)

	// Counter: evaluator invocations by outcome (ok or the error kind).
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calculator_evaluations_total",
			Help: "Total number of evaluator invocations.",
		},
		[]string{"outcome"},
	)

	// Counter: resolves that joined an in-flight evaluation instead of
	// starting their own.
	SharedResolvesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calculator_shared_resolves_total",
			Help: "Total number of resolves deduplicated onto an in-flight evaluation.",
		},
	)

	// Counter: upstream price source fetches by outcome.
	PriceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calculator_price_fetches_total",
			Help: "Total number of upstream price source fetches.",
		},
		[]string{"source", "outcome"},
	)

	// Histogram: HTTP latency in seconds.
	RequestLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calculator_request_latency_seconds",
			Help:    "HTTP request latency for the calculator service in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEvictionsTotal,
		CacheErrorsTotal,
		EvaluationsTotal,
		SharedResolvesTotal,
		PriceFetchesTotal,
		RequestLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		RequestLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
