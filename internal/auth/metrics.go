// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records auth activity. A nil *Metrics records nothing.
type Metrics struct {
	operations      *prometheus.CounterVec
	refreshReplays  prometheus.Counter
	sessionsRevoked *prometheus.CounterVec
}

// NewMetrics creates and registers auth metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelstore_auth_operations_total",
				Help: "Total number of auth operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		refreshReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modelstore_auth_refresh_replays_total",
			Help: "Total number of inactive refresh tokens presented for rotation",
		}),
		sessionsRevoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelstore_auth_sessions_revoked_total",
				Help: "Total number of sessions revoked by reason",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(m.operations)
	reg.MustRegister(m.refreshReplays)
	reg.MustRegister(m.sessionsRevoked)

	return m
}

func (m *Metrics) observe(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) replay() {
	if m == nil {
		return
	}
	m.refreshReplays.Inc()
}

func (m *Metrics) revoked(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsRevoked.WithLabelValues(reason).Add(float64(n))
}
