package metrics

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dailydigest"

// Metrics owns a private registry so tests can create as many as they need.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry       *prometheus.Registry
	digests        *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	searchFailures *prometheus.CounterVec
	feedFailures   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		digests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digests_total",
			Help:      "Digest deliveries by outcome.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by app, route and status code.",
		}, []string{"app", "route", "code"}),
		searchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_search_failures_total",
			Help:      "GitHub calls that degraded to empty results.",
		}, []string{"kind"}),
		feedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetch_failures_total",
			Help:      "Feeds that could not be fetched or parsed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.digests,
		m.httpRequests,
		m.searchFailures,
		m.feedFailures,
	)

	return m
}

func (m *Metrics) DigestOutcome(status string) {
	if m == nil {
		return
	}
	m.digests.WithLabelValues(status).Inc()
}

func (m *Metrics) SearchFailure(kind string) {
	if m == nil {
		return
	}
	m.searchFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) FeedFailure() {
	if m == nil {
		return
	}
	m.feedFailures.Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests per matched route template.
func (m *Metrics) Middleware(app string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if m == nil {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		m.httpRequests.WithLabelValues(app, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
