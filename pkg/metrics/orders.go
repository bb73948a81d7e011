package metrics

import "github.com/prometheus/client_golang/prometheus"

// Transition results.
const (
	ResultOK        = "ok"
	ResultForbidden = "forbidden"
	ResultConflict  = "conflict"
	ResultError     = "error"
)

// OrderMetrics counts lifecycle transitions.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions by source, target and result.",
	}, []string{"from", "to", "result"})
	reg.MustRegister(transitions)
	return &OrderMetrics{transitions: transitions}
}

// ObserveTransition records one transition attempt.
func (m *OrderMetrics) ObserveTransition(from, to, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(result)).Inc()
}
