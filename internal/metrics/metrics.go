// Package metrics provides Prometheus instrumentation for the risk service.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blockphantom"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// UpstreamRequestsTotal counts calls to external APIs by provider,
	// operation, and result ("ok", "http_error", "transport_error", "mock").
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total calls to chain explorers and the Masumi API.",
		},
		[]string{"provider", "op", "result"},
	)

	// UpstreamRequestDuration observes external API latency.
	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "External API call duration in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"provider", "op"},
	)

	// RiskAssessmentsTotal counts served assessments by chain and source
	// (forced_demo, live, fallback_demo).
	RiskAssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_assessments_total",
			Help:      "Risk assessments served by chain and data source.",
		},
		[]string{"chain", "source"},
	)

	// ReportsRenderedTotal counts PDF reports by result.
	ReportsRenderedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_rendered_total",
			Help:      "PDF reports rendered by result.",
		},
		[]string{"result"},
	)

	// ReportRenderDuration observes PDF rendering time.
	ReportRenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "report_render_duration_seconds",
		Help:      "PDF rendering duration in seconds.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
	})

	// DecisionLogFailuresTotal counts decision events Masumi rejected or never received.
	DecisionLogFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decision_log_failures_total",
		Help:      "Decision events that could not be posted to the registry.",
	})

	// MockClients reports which chains run on fixture data (1) or live APIs (0).
	MockClients = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chain_client_mock",
		Help:      "1 when the chain client serves mock data because no credential is configured.",
	}, []string{"chain"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		RiskAssessmentsTotal,
		ReportsRenderedTotal,
		ReportRenderDuration,
		DecisionLogFailuresTotal,
		MockClients,
	)
}

// ObserveUpstream records one external API call. Pass the time the call
// started and its result label.
func ObserveUpstream(provider, op, result string, started time.Time) {
	UpstreamRequestsTotal.WithLabelValues(provider, op, result).Inc()
	UpstreamRequestDuration.WithLabelValues(provider, op).Observe(time.Since(started).Seconds())
}

// SetMock flags a chain client as mock or live.
func SetMock(chain string, mock bool) {
	v := 0.0
	if mock {
		v = 1
	}
	MockClients.WithLabelValues(chain).Set(v)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
