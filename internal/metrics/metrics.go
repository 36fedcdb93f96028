// Package metrics exposes Prometheus counters for events flowing through the
// bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cebridge"

// Outcome labels for emitted and received events.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
)

type Metrics struct {
	Received *prometheus.CounterVec
	Emitted  *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Events received from a source, by source and outcome.",
		}, []string{"source", "outcome"}),
		Emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Events handed to the emitter, by transport and outcome.",
		}, []string{"transport", "outcome"}),
	}
	for _, c := range []prometheus.Collector{m.Received, m.Emitted} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveReceived counts an event from source. It is safe on a nil receiver.
func (m *Metrics) ObserveReceived(source, outcome string) {
	if m == nil {
		return
	}
	m.Received.WithLabelValues(source, outcome).Inc()
}

// ObserveEmitted counts an emit attempt. It is safe on a nil receiver.
func (m *Metrics) ObserveEmitted(transport string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.Emitted.WithLabelValues(transport, outcome).Inc()
}
