// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mediaRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelvault_media_requests_total",
		Help: "Media access requests by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=ok|denied|error

	usageEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelvault_usage_events_total",
		Help: "Usage events by fate",
	}, []string{"fate"}) // fate=recorded|dropped_full|dropped_rate|failed

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelvault_cache_lookups_total",
		Help: "Metadata cache lookups by backend and result",
	}, []string{"backend", "result"}) // result=hit|miss|error
)

func IncMediaRequest(kind, outcome string) {
	mediaRequests.WithLabelValues(kind, outcome).Inc()
}

func IncUsageEvent(fate string) {
	usageEvents.WithLabelValues(fate).Inc()
}

func IncCacheLookup(backend, result string) {
	cacheLookups.WithLabelValues(backend, result).Inc()
}
