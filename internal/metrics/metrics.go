package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rdw_proxy"

// Metrics holds the proxy's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	lookupsTotal       *prometheus.CounterVec
	upstreamTotal      *prometheus.CounterVec
	upstreamDuration   *prometheus.HistogramVec
	cacheHitsTotal     prometheus.Counter
	cacheMissesTotal   prometheus.Counter
	rateLimitRejection prometheus.Counter
}

// New creates the collectors and registers them with registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookups_total",
				Help:      "Total number of vehicle lookups by outcome",
			},
			[]string{"outcome"},
		),
		upstreamTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of RDW dataset requests by resource and status class",
			},
			[]string{"resource", "status_class"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Latency of RDW dataset requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}),
		rateLimitRejection: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_rejections_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}),
	}

	registry.MustRegister(
		m.lookupsTotal,
		m.upstreamTotal,
		m.upstreamDuration,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.rateLimitRejection,
	)

	return m
}

func (m *Metrics) RecordLookup(outcome string) {
	if m == nil {
		return
	}
	m.lookupsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordUpstream(resource string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamTotal.WithLabelValues(resource, statusClass(status)).Inc()
	m.upstreamDuration.WithLabelValues(resource).Observe(d.Seconds())
}

func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHitsTotal.Inc()
		return
	}
	m.cacheMissesTotal.Inc()
}

func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitRejection.Inc()
}

func statusClass(status int) string {
	if status < 100 {
		return "transport_error"
	}
	return strconv.Itoa(status/100) + "xx"
}
