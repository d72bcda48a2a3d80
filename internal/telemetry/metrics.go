// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"bytes"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/jeranaias/portalctl/internal/util"
)

const namespace = "portalctl"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	authRequests       *prometheus.CounterVec
	authLatency        *prometheus.HistogramVec
	staleResponses     *prometheus.CounterVec
	sessionExpirations *prometheus.CounterVec
	activityWrites     prometheus.Counter
	storageErrors      *prometheus.CounterVec
}

// New registers the portalctl collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_requests_total",
			Help:      "Auth API requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		authLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auth_request_duration_seconds",
			Help:      "Auth API round trip latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		staleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Responses dropped because a newer request superseded them.",
		}, []string{"op"}),
		sessionExpirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_expirations_total",
			Help:      "Sessions cleared by the activity monitor, by reason.",
		}, []string{"reason"}),
		activityWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_writes_total",
			Help:      "Last-activity timestamps persisted.",
		}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Session storage failures by operation.",
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		m.authRequests,
		m.authLatency,
		m.staleResponses,
		m.sessionExpirations,
		m.activityWrites,
		m.storageErrors,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAuth records one auth API round trip.
func (m *Metrics) ObserveAuth(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.authRequests.WithLabelValues(op, outcome).Inc()
	m.authLatency.WithLabelValues(op).Observe(d.Seconds())
}

// StaleResponse records a dropped out-of-date response.
func (m *Metrics) StaleResponse(op string) {
	if m == nil {
		return
	}
	m.staleResponses.WithLabelValues(op).Inc()
}

// SessionExpired records a monitor-driven clear.
func (m *Metrics) SessionExpired(reason string) {
	if m == nil {
		return
	}
	m.sessionExpirations.WithLabelValues(reason).Inc()
}

// ActivityWritten records a persisted activity bump.
func (m *Metrics) ActivityWritten() {
	if m == nil {
		return
	}
	m.activityWrites.Inc()
}

// StorageError records a failed storage operation.
func (m *Metrics) StorageError(op string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(op).Inc()
}

// =============================================================================
// TEXTFILE EXPORT
// =============================================================================

// Render gathers the registry into Prometheus text exposition format.
func (m *Metrics) Render() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// WriteTextfile atomically writes the exposition to path. The collector
// never sees a half-written file.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	data, err := m.Render()
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, data, 0644, 0755); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
