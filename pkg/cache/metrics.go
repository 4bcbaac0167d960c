package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osf_cache_hits_total",
		Help: "Total number of OSF response cache hits",
	})

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osf_cache_misses_total",
		Help: "Total number of OSF response cache misses",
	})

	// StoredBytes tracks bytes written to the cache
	StoredBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osf_cache_stored_bytes_total",
		Help: "Total bytes written to the OSF response cache",
	})

	// ConditionalRequestsSent tracks requests sent with a validator
	ConditionalRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osf_conditional_requests_total",
		Help: "Total number of conditional requests sent with If-None-Match or If-Modified-Since",
	})

	// NotModifiedResponses tracks 304 answers served from the cache
	NotModifiedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osf_304_responses_total",
		Help: "Total number of 304 Not Modified responses",
	})

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osf_cache_errors_total",
		Help: "Total number of cache operation errors",
	}, []string{"operation"}) // "get", "set", "delete", "scan"
)
