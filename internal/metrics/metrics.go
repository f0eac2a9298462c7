package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "luna_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Gateway Metrics
	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_gateway_requests_total",
			Help: "Total number of intercepted resource requests",
		},
		[]string{"kind", "status"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "luna_gateway_request_duration_seconds",
			Help:    "Intercepted request handling latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	UpstreamBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "luna_gateway_upstream_bytes_total",
			Help: "Total bytes fetched from origin servers",
		},
	)

	ManifestRewritesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "luna_gateway_manifest_rewrites_total",
			Help: "Total number of multivariant playlists rewritten with subtitle tracks",
		},
	)

	// Subtitle Metrics
	SubtitleLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_subtitle_loads_total",
			Help: "Total number of subtitle document loads",
		},
		[]string{"status"},
	)

	PlaylistsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_subtitle_playlists_generated_total",
			Help: "Total number of synthetic subtitle playlists generated",
		},
		[]string{"mode"},
	)

	// Session Metrics
	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "luna_sessions_created_total",
			Help: "Total number of playback sessions created",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "luna_sessions_active",
			Help: "Number of currently active playback sessions",
		},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"kind"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"kind"},
	)
)
