package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's Prometheus collectors on a private registry,
// so tests and multi-instance runs never collide on global state.
type Metrics struct {
	registry *prometheus.Registry

	Connections   prometheus.Gauge
	Identified    prometheus.Counter
	Routed        prometheus.Counter
	DeliveredLive prometheus.Counter
	Queued        prometheus.Counter
	Drained       prometheus.Counter
	RouteErrors   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "connections",
			Help:      "Live websocket connections.",
		}),
		Identified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "identified_total",
			Help:      "Connections that completed the identify handshake.",
		}),
		Routed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_routed_total",
			Help:      "Message frames accepted for fan-out.",
		}),
		DeliveredLive: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "envelopes_delivered_live_total",
			Help:      "Envelopes pushed to live device connections.",
		}),
		Queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "envelopes_queued_total",
			Help:      "Envelopes parked in offline device queues.",
		}),
		Drained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "envelopes_drained_total",
			Help:      "Queued envelopes flushed to devices on identify or wake.",
		}),
		RouteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "route_errors_total",
			Help:      "Routing failures by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.Identified,
		m.Routed,
		m.DeliveredLive,
		m.Queued,
		m.Drained,
		m.RouteErrors,
	)
	return m
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
