/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry holds prometheus metrics and OpenTelemetry tracing for
// the process.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts batch runs by final status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "magbench_runs_total",
		Help: "Batch runs by final status.",
	}, []string{"status"})

	// ActionsTotal counts equipment actions by kind, dispatch phase, and outcome.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "magbench_actions_total",
		Help: "Equipment actions by kind, phase, and outcome.",
	}, []string{"kind", "phase", "outcome"})

	// QueueDepth tracks deferred tasks currently pending.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "magbench_deferred_queue_depth",
		Help: "Deferred tasks currently pending.",
	})

	// DeferredLatenessSeconds observes how far past due each deferred action ran.
	DeferredLatenessSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "magbench_deferred_lateness_seconds",
		Help:    "Seconds past due time at which deferred actions executed.",
		Buckets: []float64{0, 1, 5, 15, 30, 60, 120, 300, 600},
	})

	// BlockingWaitSeconds accumulates time spent blocked in the final drain.
	BlockingWaitSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "magbench_blocking_wait_seconds_total",
		Help: "Total seconds the scheduler spent blocked waiting for due times.",
	})

	// StageDurationSeconds observes wall time per downstream protocol stage.
	StageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "magbench_stage_duration_seconds",
		Help:    "Wall time per downstream protocol stage.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"stage"})
)

// Handler exposes the prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
