// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Metrics publishes engine counters and gauges. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	loginAttempts   *prometheus.CounterVec
	registrations   prometheus.Counter
	pendingSessions prometheus.Gauge
	activeSessions  prometheus.Gauge
}

// NewMetrics registers the engine's metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vouch_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vouch_registrations_total",
			Help: "Accounts created.",
		}),
		pendingSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vouch_pending_sessions",
			Help: "Connections awaiting authentication.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vouch_active_sessions",
			Help: "Authenticated connections.",
		}),
	}
	reg.MustRegister(m.loginAttempts, m.registrations, m.pendingSessions, m.activeSessions)
	return m
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registration() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingSessions.Set(float64(n))
}

func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
