package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.Fetch("comunas", OutcomeOK, 20*time.Millisecond)
	c.Fetch("barrios", OutcomeFetchFailed, 0)
	c.CacheLookup(true)
	c.CacheLookup(false)
	c.CacheLookup(false)
	c.Join()
	c.SetCacheEntries(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Fetches.WithLabelValues("comunas", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Fetches.WithLabelValues("barrios", OutcomeFetchFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Coalesced))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.CacheEntries))

	again, err := New(reg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(again.Coalesced))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "geodash_fetch_total")
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Fetch("comunas", OutcomeOK, time.Second)
		c.CacheLookup(true)
		c.Join()
		c.SetCacheEntries(1)
	})
}
