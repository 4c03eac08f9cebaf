package offlinecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	routeNavigate    = "navigate"
	routeStatic      = "static"
	routeRuntime     = "runtime"
	routePassthrough = "passthrough"

	strategyNetworkFirst = "network-first"
	strategySWR          = "stale-while-revalidate"

	fallbackCache   = "cache"
	fallbackShell   = "shell"
	fallbackOffline = "offline"
)

var (
	metricRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_requests_total",
			Help: "Intercepted requests by routing bucket",
		},
		[]string{"route"},
	)

	metricHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_hits_total",
			Help: "Responses served from cache by strategy",
		},
		[]string{"strategy"},
	)

	metricMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_misses_total",
			Help: "Responses served live from the network by strategy",
		},
		[]string{"strategy"},
	)

	metricFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_fallbacks_total",
			Help: "Offline fallbacks by kind (cache, shell, offline)",
		},
		[]string{"kind"},
	)

	metricRevalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_revalidations_total",
			Help: "Successful background cache refreshes",
		},
	)
)
