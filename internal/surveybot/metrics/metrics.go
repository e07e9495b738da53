// Package metrics exposes Prometheus collectors for the survey bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "surveybot"

// Metrics holds the bot's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry   *prometheus.Registry
	commands   *prometheus.CounterVec
	deliveries *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	commands := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched chat commands by command and outcome.",
		},
		[]string{"command", "outcome"},
	)
	deliveries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_deliveries_total",
			Help:      "Inbound transport deliveries by transport and status.",
		},
		[]string{"transport", "status"},
	)

	reg.MustRegister(
		commands,
		deliveries,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:   reg,
		commands:   commands,
		deliveries: deliveries,
	}
}

// ObserveCommand counts one dispatched command.
func (m *Metrics) ObserveCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

// ObserveDelivery counts one inbound webhook or sync delivery.
func (m *Metrics) ObserveDelivery(transport, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(transport, status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
