package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.DigestOutcome("sent")
	m.DigestOutcome("sent")
	m.DigestOutcome("failed")
	m.SearchFailure("code")
	m.FeedFailure()

	assert.InDelta(t, 2, testutil.ToFloat64(m.digests.WithLabelValues("sent")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.digests.WithLabelValues("failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.searchFailures.WithLabelValues("code")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.feedFailures), 0)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.DigestOutcome("sent")
	m.SearchFailure("issues")
	m.FeedFailure()
	assert.Nil(t, m.Registry())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := New()
	r := gin.New()
	r.Use(m.Middleware("test"))
	r.GET("/ping/:id", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequests.WithLabelValues("test", "/ping/:id", "200")), 0)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "dailydigest_http_requests_total"))
}
