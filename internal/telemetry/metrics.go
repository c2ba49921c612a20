package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration tracks HTTP request latency across the API surface.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "vectorgate",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// PoolAcquireTotal counts connection pool acquisitions by outcome.
var PoolAcquireTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vectorgate",
		Subsystem: "pool",
		Name:      "acquire_total",
		Help:      "Total number of connection pool acquisitions by outcome.",
	},
	[]string{"outcome"}, // hit, miss, exhausted, connection_error
)

// PoolEvictedTotal counts idle pool entries closed by the sweeper or by
// Acquire to make room for a new key.
var PoolEvictedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "vectorgate",
		Subsystem: "pool",
		Name:      "evicted_total",
		Help:      "Total number of idle connection pool entries evicted.",
	},
)

// PoolActiveEntries reports the current number of pool entries.
var PoolActiveEntries = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "vectorgate",
		Subsystem: "pool",
		Name:      "active_entries",
		Help:      "Current number of entries held by the connection pool.",
	},
)

// RateLimitDeniedTotal counts requests denied by the rate limiter by scope.
var RateLimitDeniedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vectorgate",
		Subsystem: "ratelimit",
		Name:      "denied_total",
		Help:      "Total number of requests denied by the rate limiter.",
	},
	[]string{"scope"}, // ip, tenant
)

// TransactionRollbackTotal counts transactions that rolled back.
var TransactionRollbackTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "vectorgate",
		Subsystem: "txn",
		Name:      "rollback_total",
		Help:      "Total number of transactions that rolled back.",
	},
)

// SearchDuration tracks dense and hybrid search latency by kind.
var SearchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "vectorgate",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Vector search duration in seconds by search kind.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"kind"}, // dense, hybrid
)

// InsertedVectorsTotal counts vectors inserted by tenant.
var InsertedVectorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vectorgate",
		Subsystem: "insert",
		Name:      "vectors_total",
		Help:      "Total number of vectors inserted.",
	},
	[]string{"tenant"},
)

// All returns VectorGate's service-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PoolAcquireTotal,
		PoolEvictedTotal,
		PoolActiveEntries,
		RateLimitDeniedTotal,
		TransactionRollbackTotal,
		SearchDuration,
		InsertedVectorsTotal,
	}
}
