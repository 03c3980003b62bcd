// Package metrics holds the Prometheus collectors of the compliance core.
// A nil *Metrics is valid and records nothing, which keeps tests and the
// offline CLI free of registry plumbing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "compliance"

// Metrics groups every collector the service exports.
type Metrics struct {
	transitions    *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	catalogMisses  *prometheus.CounterVec
	catalogReloads *prometheus.CounterVec
	busDropped     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrective_transitions_total",
			Help:      "Corrective state machine transition attempts by event and outcome.",
		}, []string{"event", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizer_rejections_total",
			Help:      "Source records rejected as malformed, by module and field.",
		}, []string{"module", "field"}),
		catalogMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lookup_misses_total",
			Help:      "Issues whose category was not found in the defect catalog.",
		}, []string{"category"}),
		catalogReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reloads_total",
			Help:      "Defect catalog reload attempts by result.",
		}, []string{"result"}),
		busDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventbus_dropped_total",
			Help:      "Domain events dropped because the bus buffer was full or the bus was stopped.",
		}),
	}
	reg.MustRegister(m.transitions, m.rejections, m.catalogMisses, m.catalogReloads, m.busDropped)
	return m
}

// Transition counts one state machine call. outcome is "ok" or an error kind.
func (m *Metrics) Transition(event, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, outcome).Inc()
}

// Rejection counts one malformed source record.
func (m *Metrics) Rejection(module, field string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(module, field).Inc()
}

// CatalogMiss counts one issue scored against an unknown category.
func (m *Metrics) CatalogMiss(category string) {
	if m == nil {
		return
	}
	m.catalogMisses.WithLabelValues(category).Inc()
}

// CatalogReload counts one reload attempt.
func (m *Metrics) CatalogReload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.catalogReloads.WithLabelValues(result).Inc()
}

// EventDropped counts one event the bus could not buffer.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.busDropped.Inc()
}
