package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-wide infrastructure metrics shared by the cache
// decorators in front of the stores.
type Metrics struct {
	CacheLookups *prometheus.CounterVec
}

// New registers the metrics on reg, or on the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_cache_lookups_total",
			Help: "Cache lookups by cache name and result (hit or miss)",
		}, []string{"cache", "result"}),
	}
}

func (m *Metrics) CacheHit(cache string) {
	m.CacheLookups.WithLabelValues(cache, "hit").Inc()
}

func (m *Metrics) CacheMiss(cache string) {
	m.CacheLookups.WithLabelValues(cache, "miss").Inc()
}
