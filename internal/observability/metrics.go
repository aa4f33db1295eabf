// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the auth counters. A nil *Metrics records nothing.
type Metrics struct {
	LoginAttempts *prometheus.CounterVec
	Resolutions   *prometheus.CounterVec
	Logouts       prometheus.Counter
	StoreFailures *prometheus.CounterVec
}

// NewMetrics creates the auth counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holoauth_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holoauth_resolutions_total",
				Help: "Request identity resolutions by source",
			},
			[]string{"source"},
		),
		Logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "holoauth_logouts_total",
			Help: "Completed logouts of a signed-in user",
		}),
		StoreFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holoauth_store_failures_total",
				Help: "Requests answered 503 because a store failed, by stage",
			},
			[]string{"stage"},
		),
	}

	reg.MustRegister(m.LoginAttempts, m.Resolutions, m.Logouts, m.StoreFailures)
	return m
}

// RecordLogin counts a login attempt; result is "success" or
// "invalid_credentials".
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// RecordResolution counts how a request identity was found.
func (m *Metrics) RecordResolution(source string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(source).Inc()
}

// RecordLogout counts a logout of a signed-in user.
func (m *Metrics) RecordLogout() {
	if m == nil {
		return
	}
	m.Logouts.Inc()
}

// RecordStoreFailure counts a request failed by a store error.
func (m *Metrics) RecordStoreFailure(stage string) {
	if m == nil {
		return
	}
	m.StoreFailures.WithLabelValues(stage).Inc()
}
