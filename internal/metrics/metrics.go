// Package metrics exposes Prometheus instrumentation for the tile
// download pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts tiles served from the on-disk cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slippyfetch_cache_hits_total",
		Help: "Total number of tile requests served from the cache",
	})

	// CacheMisses counts tiles that required a download.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slippyfetch_cache_misses_total",
		Help: "Total number of tile requests not found in the cache",
	})

	// DuplicatesAbsorbed counts tiles skipped because an identical
	// download was already in flight.
	DuplicatesAbsorbed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slippyfetch_duplicates_absorbed_total",
		Help: "Total number of tile requests absorbed by an in-flight download",
	})

	// UpstreamRequests counts individual HTTP attempts against the tile
	// server, including retries.
	UpstreamRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slippyfetch_upstream_requests_total",
		Help: "Total number of HTTP attempts against the tile server",
	})

	// UpstreamLatency observes the duration of individual HTTP attempts.
	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slippyfetch_upstream_latency_seconds",
		Help:    "Latency of tile server fetch attempts in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// DownloadsSucceeded counts tiles downloaded and persisted.
	DownloadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slippyfetch_downloads_succeeded_total",
		Help: "Total number of tiles downloaded and written to the cache",
	})

	// DownloadsFailed counts tiles that exhausted retries or failed
	// permanently.
	DownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slippyfetch_downloads_failed_total",
		Help: "Total number of tile downloads that reached terminal failure",
	})

	// InFlight tracks currently running tile downloads.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slippyfetch_downloads_in_flight",
		Help: "Number of tile downloads currently running",
	})
)
