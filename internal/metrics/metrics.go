// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

// Package metrics defines the Prometheus instrument set for the monitor.
// Everything registers on a private registry so tests can create as many
// sets as they like without global collisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles every instrument the monitor emits, backed by one registry.
type Set struct {
	registry *prometheus.Registry

	// ChecksTotal counts finished probes by provider, gateway and outcome.
	ChecksTotal *prometheus.CounterVec

	// ProbeDuration observes wall-clock probe time per provider.
	ProbeDuration *prometheus.HistogramVec

	// BreakerTransitions counts breaker state changes by destination state.
	BreakerTransitions *prometheus.CounterVec

	// TargetsDue is the size of the due batch seen at the last tick.
	TargetsDue prometheus.Gauge

	// IncidentsOpen is the current number of unresolved incidents.
	IncidentsOpen prometheus.Gauge

	// RetentionDeleted counts events removed by retention sweeps.
	RetentionDeleted prometheus.Counter

	// AggregatorRollups counts completed hourly rollup passes.
	AggregatorRollups prometheus.Counter
}

// New builds a Set on a fresh registry with process and Go runtime
// collectors attached.
func New() *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	s := &Set{
		registry: reg,
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pharos_checks_total",
			Help: "Health checks performed, by provider, gateway and outcome.",
		}, []string{"provider", "gateway", "status"}),
		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pharos_probe_duration_seconds",
			Help:    "Wall-clock duration of health probes.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pharos_breaker_transitions_total",
			Help: "Circuit breaker transitions, by destination state.",
		}, []string{"to"}),
		TargetsDue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pharos_targets_due",
			Help: "Targets due for a check at the last scheduler tick.",
		}),
		IncidentsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pharos_incidents_open",
			Help: "Unresolved per-target incidents.",
		}),
		RetentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pharos_retention_deleted_total",
			Help: "Health check events removed by retention sweeps.",
		}),
		AggregatorRollups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pharos_aggregator_rollups_total",
			Help: "Completed hourly rollup passes.",
		}),
	}

	reg.MustRegister(
		s.ChecksTotal,
		s.ProbeDuration,
		s.BreakerTransitions,
		s.TargetsDue,
		s.IncidentsOpen,
		s.RetentionDeleted,
		s.AggregatorRollups,
	)
	return s
}

// Registry exposes the underlying registry, mainly for tests.
func (s *Set) Registry() *prometheus.Registry { return s.registry }

// Handler serves the set in the Prometheus exposition format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
