// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var authzDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reelvault_authz_decisions_total",
	Help: "Path authorization decisions by outcome",
}, []string{"outcome"}) // outcome=allowed|allowed_virtual|denied_malformed_virtual|denied_unresolved|denied_outside|denied_no_roots

// IncAuthzDecision counts one authorization outcome.
func IncAuthzDecision(outcome string) {
	authzDecisions.WithLabelValues(outcome).Inc()
}
