// Package metrics exports the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "find_image_requests_total",
			Help: "Total find-image requests by outcome",
		},
		[]string{"tool_used", "status"},
	)

	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "find_image_request_duration_seconds",
			Help:    "End-to-end find-image request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "find_image_cache_hits_total",
			Help: "Requests answered from the result cache",
		},
	)

	SearchCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "find_image_search_calls_total",
			Help: "Upstream image-search calls by strategy",
		},
		[]string{"strategy"},
	)
)
