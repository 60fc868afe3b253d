// Package metrics exposes the realtime layer's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by the server and dispatcher.
type Metrics struct {
	ConnectionsOpen prometheus.Gauge
	FramesTotal     *prometheus.CounterVec
	EmitsTotal      *prometheus.CounterVec
	PushesTotal     *prometheus.CounterVec
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ember_connections_open",
			Help: "Currently open realtime connections on this worker.",
		}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ember_frames_total",
			Help: "Inbound frames by outcome.",
		}, []string{"outcome"}),
		EmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ember_emits_total",
			Help: "Emit calls by local accept decision.",
		}, []string{"accepted"}),
		PushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ember_pushes_total",
			Help: "Delivery-phase pushes by outcome.",
		}, []string{"outcome"}),
	}
}

// Register adds the collectors to a registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.ConnectionsOpen, m.FramesTotal, m.EmitsTotal, m.PushesTotal,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Frame outcome and push outcome label values.
const (
	OutcomeHandled   = "handled"
	OutcomeDispatch  = "dispatch"
	OutcomeFallback  = "fallback"
	OutcomeMalformed = "malformed"
	OutcomeDelivered = "delivered"
	OutcomeSkipped   = "skipped"
)
