package proxy

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leonardcser/swcache/internal/lifecycle"
	"github.com/leonardcser/swcache/internal/strategy"
)

type metrics struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

// newMetrics registers the request metrics and the cache counters of the
// controller in control. The counters restart when a new controller takes over.
func newMetrics(reg prometheus.Registerer, host *lifecycle.Host) *metrics {
	m := &metrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swcache_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status_code"},
		),
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swcache_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
	}
	reg.MustRegister(m.duration, m.total)

	stat := func(pick func(strategy.Stats) uint64) func() float64 {
		return func() float64 {
			if c := host.Current(); c != nil {
				return float64(pick(c.Stats()))
			}
			return 0
		}
	}
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{Name: "swcache_cache_hits_total", Help: "Cache lookups that found an entry"},
			stat(func(s strategy.Stats) uint64 { return s.Hits })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{Name: "swcache_cache_misses_total", Help: "Cache lookups that found nothing"},
			stat(func(s strategy.Stats) uint64 { return s.Misses })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{Name: "swcache_network_failures_total", Help: "Network attempts that failed"},
			stat(func(s strategy.Stats) uint64 { return s.NetworkFailures })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{Name: "swcache_fallbacks_total", Help: "Cached responses served after a network failure"},
			stat(func(s strategy.Stats) uint64 { return s.Fallbacks })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{Name: "swcache_writes_total", Help: "Write-through entries stored"},
			stat(func(s strategy.Stats) uint64 { return s.Writes })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{Name: "swcache_write_errors_total", Help: "Write-through entries that failed to store"},
			stat(func(s strategy.Stats) uint64 { return s.WriteErrors })),
	)
	return m
}

func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "forward"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.duration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.total.WithLabelValues(c.Request.Method, route, status).Inc()
	}
}
