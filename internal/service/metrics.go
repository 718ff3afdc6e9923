package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/codehub/internal/models"
)

const metricsNamespace = "codehub"

type serviceMetrics struct {
	countersRepaired *prometheus.CounterVec
	numbersReserved  *prometheus.CounterVec
}

var (
	defaultServiceMetricsOnce sync.Once
	defaultServiceMetricsInst *serviceMetrics
)

func getDefaultServiceMetrics() *serviceMetrics {
	defaultServiceMetricsOnce.Do(func() {
		defaultServiceMetricsInst = newServiceMetrics(prometheus.DefaultRegisterer)
	})
	return defaultServiceMetricsInst
}

func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	m := &serviceMetrics{
		countersRepaired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "counters_repaired_total",
			Help:      "Denormalized counters rewritten by reconciliation.",
		}, []string{"entity", "counter"}),
		numbersReserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "numbers_reserved_total",
			Help:      "Issue and pull request numbers assigned.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.countersRepaired, m.numbersReserved)
	}
	return m
}

func (m *serviceMetrics) numberReserved(kind models.NumberKind) {
	if m == nil {
		return
	}
	m.numbersReserved.WithLabelValues(string(kind)).Inc()
}

func (m *serviceMetrics) repaired(repairs []models.CounterRepair) {
	if m == nil {
		return
	}
	for _, r := range repairs {
		m.countersRepaired.WithLabelValues(r.Entity, r.Counter).Inc()
	}
}
