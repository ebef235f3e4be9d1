package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCacheLookups(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.CacheHit("levels")
	m.CacheHit("levels")
	m.CacheMiss("levels")
	m.CacheMiss("trust_view")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheLookups.WithLabelValues("levels", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookups.WithLabelValues("levels", "miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookups.WithLabelValues("trust_view", "miss")))
}
