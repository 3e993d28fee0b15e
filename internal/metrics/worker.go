// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workerOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelvault_worker_op_duration_seconds",
		Help:    "Round-trip latency of persistence worker operations",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2.0, 15), // 0.5ms to ~8s
	}, []string{"op", "outcome"}) // outcome=ok|remote_error|timeout|crashed|canceled

	workerDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelvault_worker_degraded_reads_total",
		Help: "Read operations answered with their default value after a failure",
	}, []string{"op", "reason"})

	workerLateResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelvault_worker_late_responses_total",
		Help: "Responses dropped because no pending operation matched their id",
	})

	workerCrashes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelvault_worker_crashes_total",
		Help: "Abnormal persistence worker terminations",
	})

	workerPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelvault_worker_pending_ops",
		Help: "Operations awaiting a worker response",
	})
)

// ObserveWorkerOp records the latency and outcome of one worker round trip.
func ObserveWorkerOp(op, outcome string, d time.Duration) {
	workerOpDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// IncWorkerDegraded counts a read that fell back to its default.
func IncWorkerDegraded(op, reason string) {
	workerDegraded.WithLabelValues(op, reason).Inc()
}

func IncWorkerLateResponse() { workerLateResponses.Inc() }

func IncWorkerCrash() { workerCrashes.Inc() }

func SetWorkerPending(n int) { workerPending.Set(float64(n)) }
