package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the response cache. Registered on the default
// registerer at package init.
var (
	// Hits counts lookups that were served from the cache, per namespace.
	Hits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrant",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of cache lookups served from the cache",
	}, []string{"namespace"})

	// Misses counts lookups that required a fresh render, per namespace.
	Misses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrant",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total number of cache lookups that missed",
	}, []string{"namespace"})

	// StoreErrors counts backend failures by operation.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrant",
		Subsystem: "cache",
		Name:      "store_errors_total",
		Help:      "Total number of cache store backend errors",
	}, []string{"op"})

	// StoredBytes observes the size of stored response bodies.
	StoredBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hydrant",
		Subsystem: "cache",
		Name:      "stored_bytes",
		Help:      "Size in bytes of response bodies written to the cache",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
	})
)
