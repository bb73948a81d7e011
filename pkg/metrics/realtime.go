package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics tracks websocket clients and deliveries.
type RealtimeMetrics struct {
	clients   prometheus.Gauge
	delivered prometheus.Counter
	dropped   prometheus.Counter
}

func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	clients := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_clients",
		Help:      "Connected websocket clients.",
	})
	delivered := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_messages_delivered_total",
		Help:      "Messages queued to websocket clients.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_messages_dropped_total",
		Help:      "Messages dropped because a client buffer was full.",
	})
	reg.MustRegister(clients, delivered, dropped)
	return &RealtimeMetrics{clients: clients, delivered: delivered, dropped: dropped}
}

func (m *RealtimeMetrics) ClientConnected() {
	if m != nil && m.clients != nil {
		m.clients.Inc()
	}
}

func (m *RealtimeMetrics) ClientDisconnected() {
	if m != nil && m.clients != nil {
		m.clients.Dec()
	}
}

func (m *RealtimeMetrics) Delivered() {
	if m != nil && m.delivered != nil {
		m.delivered.Inc()
	}
}

func (m *RealtimeMetrics) Dropped() {
	if m != nil && m.dropped != nil {
		m.dropped.Inc()
	}
}
