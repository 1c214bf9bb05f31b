package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(policyCacheLookups) }

var policyCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Redis cache lookups by cache and result (hit, miss, error).",
	},
	[]string{"cache", "result"},
)

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

func IncCacheRequest(cache, result string) {
	policyCacheLookups.WithLabelValues(norm(cache), norm(result)).Inc()
}
