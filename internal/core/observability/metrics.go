// Package observability holds the Prometheus collectors used by the service.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewport_cache_results_total",
			Help: "Viewport cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	fetchResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewport_fetch_total",
			Help: "Provider fetches by result (ok, error, superseded).",
		},
		[]string{"result"},
	)

	recordsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewport_records_dropped_total",
			Help: "Provider records excluded during normalization, by reason.",
		},
		[]string{"reason"},
	)

	cacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Snapshot store operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "viewport_events_dropped_total",
			Help: "Viewport events dropped because the publish queue was full.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		cacheResults, fetchResults, recordsDropped, cacheOps,
		redisOpDuration, eventsDropped,
	}
}

// Init registers the collectors on reg. Registering twice on the same
// registry is a no-op; a nil reg or enabled=false leaves them unregistered
// (they still count, nothing exports them).
func Init(reg prometheus.Registerer, enabled bool) {
	if reg == nil || !enabled {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func IncFetch(result string) { fetchResults.WithLabelValues(result).Inc() }

func AddRecordsDropped(reason string, n int) {
	if n <= 0 {
		return
	}
	recordsDropped.WithLabelValues(reason).Add(float64(n))
}

// ObserveCacheOp records one snapshot store call
func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOps.WithLabelValues(op, result).Inc()
	redisOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func IncEventsDropped() { eventsDropped.Inc() }
