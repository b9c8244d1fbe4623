// Package metrics exposes Prometheus counters for ledger operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Ledger groups the counters recorded by the entitlement engine. A nil
// *Ledger is valid and records nothing.
type Ledger struct {
	Activations     *prometheus.CounterVec
	Cancellations   prometheus.Counter
	QuotaDenials    *prometheus.CounterVec
	UsageRecorded   *prometheus.CounterVec
	StorageFailures *prometheus.CounterVec
}

// NewLedger creates the ledger counters and registers them with reg.
func NewLedger(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		Activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "activations_total",
			Help:      "Plan activations and renewals by plan.",
		}, []string{"plan"}),
		Cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "cancellations_total",
			Help:      "Entitlement cancellations.",
		}),
		QuotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "quota_denials_total",
			Help:      "Usage records rejected because the quota would be exceeded.",
		}, []string{"quota"}),
		UsageRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "usage_recorded_total",
			Help:      "Units of usage recorded by quota.",
		}, []string{"quota"}),
		StorageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "storage_failures_total",
			Help:      "Store or lock failures surfaced as storage unavailable.",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.Activations, m.Cancellations, m.QuotaDenials, m.UsageRecorded, m.StorageFailures)
	}
	return m
}

func (m *Ledger) ObserveActivation(plan string) {
	if m == nil {
		return
	}
	m.Activations.WithLabelValues(plan).Inc()
}

func (m *Ledger) ObserveCancellation() {
	if m == nil {
		return
	}
	m.Cancellations.Inc()
}

func (m *Ledger) ObserveQuotaDenial(quota string) {
	if m == nil {
		return
	}
	m.QuotaDenials.WithLabelValues(quota).Inc()
}

func (m *Ledger) ObserveUsage(quota string, delta int64) {
	if m == nil || delta <= 0 {
		return
	}
	m.UsageRecorded.WithLabelValues(quota).Add(float64(delta))
}

func (m *Ledger) ObserveStorageFailure(op string) {
	if m == nil {
		return
	}
	m.StorageFailures.WithLabelValues(op).Inc()
}
