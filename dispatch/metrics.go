package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts dispatch outcomes. Register against the default
// registerer in production; tests pass a fresh registry.
type Metrics struct {
	sent   *prometheus.CounterVec
	failed *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsapp_messages_sent_total",
			Help: "Messages accepted by the transport, by template type.",
		}, []string{"template"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsapp_messages_failed_total",
			Help: "Messages rejected by the transport, by template type.",
		}, []string{"template"}),
	}
}

func (m *Metrics) observe(template string, ok bool) {
	if m == nil {
		return
	}
	if template == "" {
		template = "free_form"
	}
	if ok {
		m.sent.WithLabelValues(template).Inc()
	} else {
		m.failed.WithLabelValues(template).Inc()
	}
}
