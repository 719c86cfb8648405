package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts backend calls and session teardowns
type Metrics struct {
	Requests  *prometheus.CounterVec
	Teardowns prometheus.Counter
}

// NewMetrics registers the collectors on reg; a nil reg leaves them unregistered
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brokerclient",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Backend calls by method and response status",
		}, []string{"method", "status"}),
		Teardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brokerclient",
			Subsystem: "gateway",
			Name:      "session_teardowns_total",
			Help:      "Sessions cleared after an unauthorized response",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Teardowns)
	}
	return m
}

func (m *Metrics) observe(method string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.Requests.WithLabelValues(method, label).Inc()
}
