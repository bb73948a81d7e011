package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks publisher throughput.
type OutboxMetrics struct {
	published    *prometheus.CounterVec
	failed       *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	backlog      prometheus.Gauge
	oldestAge    prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_published_total",
		Help:      "Outbox events published.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_publish_failures_total",
		Help:      "Retryable outbox publish failures.",
	}, []string{"event_type"})
	deadLettered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_dead_lettered_total",
		Help:      "Outbox events moved to the DLQ.",
	}, []string{"event_type", "reason"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outbox_backlog",
		Help:      "Outbox events waiting to be published.",
	})
	oldestAge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outbox_oldest_pending_seconds",
		Help:      "Age of the oldest unpublished outbox event.",
	})
	reg.MustRegister(published, failed, deadLettered, backlog, oldestAge)
	return &OutboxMetrics{
		published:    published,
		failed:       failed,
		deadLettered: deadLettered,
		backlog:      backlog,
		oldestAge:    oldestAge,
	}
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncDeadLettered(eventType, reason string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}

// SetBacklog records the pending count and the age of the oldest pending row;
// a zero age means nothing is waiting.
func (m *OutboxMetrics) SetBacklog(pending int64, oldestAge time.Duration) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(pending))
	m.oldestAge.Set(oldestAge.Seconds())
}
