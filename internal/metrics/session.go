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
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelvault_sessions_active",
		Help: "Transcode sessions currently registered",
	})

	sessionProvisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelvault_session_provision_duration_seconds",
		Help:    "Time from provisioning start until the variant playlist is ready",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
	})

	sessionProvisionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelvault_session_provision_failures_total",
		Help: "Failed session provisioning attempts",
	}, []string{"reason"}) // reason=start|ready_timeout|canceled|io

	sessionsReclaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelvault_sessions_reclaimed_total",
		Help: "Session directories removed by the sweeper",
	}, []string{"reason"}) // reason=idle|orphan|shutdown

	heatmapJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelvault_heatmap_jobs_total",
		Help: "Heatmap analysis jobs by terminal state",
	}, []string{"state"}) // state=started|deduplicated|succeeded|failed

	heatmapActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelvault_heatmap_jobs_active",
		Help: "Heatmap analysis jobs currently running",
	})
)

func SetSessionsActive(n int) { sessionsActive.Set(float64(n)) }

func ObserveSessionProvision(d time.Duration) { sessionProvisionDuration.Observe(d.Seconds()) }

func IncSessionProvisionFailure(reason string) {
	sessionProvisionFailures.WithLabelValues(reason).Inc()
}

func IncSessionReclaimed(reason string) {
	sessionsReclaimed.WithLabelValues(reason).Inc()
}

func IncHeatmapJob(state string) {
	heatmapJobs.WithLabelValues(state).Inc()
}

func AddHeatmapActive(delta int) { heatmapActive.Add(float64(delta)) }
