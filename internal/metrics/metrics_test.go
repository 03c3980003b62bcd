package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Transition("verify", "ok")
	m.Transition("verify", "gate_not_satisfied")
	m.Transition("verify", "gate_not_satisfied")
	m.CatalogReload(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("verify", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("verify", "gate_not_satisfied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.catalogReloads.WithLabelValues("error")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("close", "ok")
		m.Rejection("inspection", "area")
		m.CatalogMiss("Unknown")
		m.CatalogReload(true)
		m.EventDropped()
	})
}
