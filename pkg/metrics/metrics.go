// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/codeGROOVE-dev/codepulse/pkg/httpcache"
)

var (
	RefreshCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepulse_refresh_cycles_total",
			Help: "Refresh cycles run, by platform and trigger",
		},
		[]string{"platform", "trigger"},
	)

	RefreshItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepulse_refresh_items_total",
			Help: "Profiles processed by refresh cycles, by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codepulse_refresh_cycle_duration_seconds",
			Help:    "Wall time of refresh cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"platform"},
	)

	ScrapeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepulse_scrape_errors_total",
			Help: "Failed scrapes, by platform and error kind",
		},
		[]string{"platform", "kind"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepulse_http_requests_total",
			Help: "API requests, by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codepulse_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	_ = promauto.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "codepulse_upstream_cache_hits_total",
			Help: "Upstream responses served from the HTTP cache",
		},
		func() float64 { return float64(httpcache.CacheStats().Hits) },
	)

	_ = promauto.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "codepulse_upstream_cache_misses_total",
			Help: "Upstream responses fetched over the network",
		},
		func() float64 { return float64(httpcache.CacheStats().Misses) },
	)
)
