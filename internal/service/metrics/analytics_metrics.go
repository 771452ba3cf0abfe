package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EndpointMetrics tracks latency and failures of the analytics endpoints.
// A nil *EndpointMetrics records nothing.
type EndpointMetrics struct {
	latency     *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

func NewEndpointMetrics(reg prometheus.Registerer) *EndpointMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &EndpointMetrics{
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pairpulse",
			Subsystem: "analytics",
			Name:      "endpoint_latency_seconds",
			Help:      "Latency of analytics endpoints",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairpulse",
			Subsystem: "analytics",
			Name:      "endpoint_errors_total",
			Help:      "Errors by analytics endpoint and kind",
		}, []string{"endpoint", "kind"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairpulse",
			Subsystem: "analytics",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter",
		}, []string{"endpoint"}),
	}
}

// Observe records one call; kind is empty on success.
func (m *EndpointMetrics) Observe(endpoint string, start time.Time, kind string) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if kind != "" {
		m.errors.WithLabelValues(endpoint, kind).Inc()
	}
}

func (m *EndpointMetrics) RateLimited(endpoint string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(endpoint).Inc()
}
