package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapposter_renders_total",
			Help: "Total number of render requests, by result code",
		},
		[]string{"code"},
	)

	RenderStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapposter_render_stage_duration_seconds",
			Help:    "Duration of each render pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	RenderPoolInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mapposter_render_pool_in_use",
			Help: "Number of renders currently composing or encoding",
		},
	)

	ShortLinkResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapposter_short_link_resolutions_total",
			Help: "Total number of short link redirect resolutions, by result",
		},
		[]string{"result"}, // "resolved", "timeout"
	)

	TileFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapposter_tile_fetches_total",
			Help: "Total number of tile fetch attempts against the tile server, by result",
		},
		[]string{"result"}, // "success", "failure", "rejected"
	)

	TileCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mapposter_tile_cache_hits_total",
			Help: "Total number of tile cache hits",
		},
	)

	TileCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mapposter_tile_cache_misses_total",
			Help: "Total number of tile cache misses",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mapposter_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
