package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plume_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// PageCacheHits counts index page cache hits.
	PageCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plume_page_cache_hits_total",
		Help: "Total number of index page cache hits",
	})

	// PageCacheMisses counts index page cache misses.
	PageCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plume_page_cache_misses_total",
		Help: "Total number of index page cache misses",
	})
)

var (
	promOnce       sync.Once
	promMiddleware *fiberprometheus.FiberPrometheus
)

// InitMetrics builds the Prometheus HTTP middleware for the given
// service name. The middleware registers collectors with the default
// registry, so it is created once and shared.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promMiddleware = fiberprometheus.New(serviceName)
	})
	return promMiddleware
}
