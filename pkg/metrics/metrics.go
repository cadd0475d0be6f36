/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes the admission gate and token ledger as
// Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/llm-d/llm-d-batch-admission/pkg/gate"
	"github.com/llm-d/llm-d-batch-admission/pkg/ledger"
)

// GateMetrics records gate wait durations and occupancy. It implements
// gate.Observer; pass it to the gate via gate.WithWaitObserver and refresh
// the occupancy gauges with SetStatus from the orchestrator's monitoring
// loop.
type GateMetrics struct {
	waitSeconds      prometheus.Histogram
	availablePermits prometheus.Gauge
	waiting          prometheus.Gauge
}

// NewGateMetrics creates gate metrics registered with reg.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	m := &GateMetrics{
		waitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_admission_gate_wait_seconds",
			Help:    "Time spent waiting to acquire a gate permit.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		availablePermits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batch_admission_gate_available_permits",
			Help: "Gate permits currently free.",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batch_admission_gate_waiting",
			Help: "Callers currently queued for a gate permit.",
		}),
	}
	reg.MustRegister(m.waitSeconds, m.availablePermits, m.waiting)
	return m
}

// Observe records one acquire's wait duration in seconds.
func (m *GateMetrics) Observe(seconds float64) {
	m.waitSeconds.Observe(seconds)
}

// SetStatus updates the occupancy gauges from a gate snapshot.
func (m *GateMetrics) SetStatus(s gate.Status) {
	m.availablePermits.Set(float64(s.Available))
	m.waiting.Set(float64(s.Waiting))
}

// LedgerMetrics records token budget accounting. It implements
// ledger.StatusObserver; pass it to the ledger via ledger.WithObserver.
type LedgerMetrics struct {
	total              prometheus.Gauge
	used               prometheus.Gauge
	reserved           prometheus.Gauge
	activeBatches      prometheus.Gauge
	utilizationPercent prometheus.Gauge
	rejectedTotal      prometheus.Counter
}

// NewLedgerMetrics creates ledger metrics registered with reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batch_admission_tokens_total",
			Help: "Total token budget.",
		}),
		used: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batch_admission_tokens_used",
			Help: "Tokens committed by released batches.",
		}),
		reserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batch_admission_tokens_reserved",
			Help: "Tokens held by outstanding reservations.",
		}),
		activeBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batch_admission_active_batches",
			Help: "Batches currently holding a reservation.",
		}),
		utilizationPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batch_admission_budget_utilization_percent",
			Help: "Share of the token budget used or reserved, in percent.",
		}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batch_admission_reservations_rejected_total",
			Help: "Reservations rejected by the ledger.",
		}),
	}
	reg.MustRegister(m.total, m.used, m.reserved, m.activeBatches, m.utilizationPercent, m.rejectedTotal)
	return m
}

// ObserveBudget updates the budget gauges from a ledger snapshot.
func (m *LedgerMetrics) ObserveBudget(s ledger.BudgetStatus) {
	m.total.Set(float64(s.Total))
	m.used.Set(float64(s.Used))
	m.reserved.Set(float64(s.Reserved))
	m.activeBatches.Set(float64(s.ActiveBatches))
	m.utilizationPercent.Set(s.UtilizationPercent)
}

// ObserveRejectedReservation counts one rejected reservation.
func (m *LedgerMetrics) ObserveRejectedReservation() {
	m.rejectedTotal.Inc()
}
