package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request latency per route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method, route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_in_flight",
		Help:      "Requests currently being served.",
	})
	reg.MustRegister(duration, inFlight)
	return &HTTPMetrics{duration: duration, inFlight: inFlight}
}

func (m *HTTPMetrics) Observe(method, route string, status int, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(method, normalizeLabel(route), strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Track increments the in-flight gauge and returns the matching decrement.
func (m *HTTPMetrics) Track() func() {
	if m == nil || m.inFlight == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}
