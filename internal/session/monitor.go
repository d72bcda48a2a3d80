// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/portalctl/internal/telemetry"
)

// DefaultCheckInterval is the monitor tick cadence.
const DefaultCheckInterval = time.Minute

// MonitorState is the lifecycle state of a Monitor.
type MonitorState int

const (
	// MonitorUninitialized means Init has not run, or Destroy has.
	MonitorUninitialized MonitorState = iota
	// MonitorArmed means the monitor is ticking and the last tick found a
	// valid session or none at all.
	MonitorArmed
	// MonitorExpired means a tick cleared the session. The monitor keeps
	// ticking and re-arms when a new session appears.
	MonitorExpired
)

// String returns a string representation of the MonitorState.
func (s MonitorState) String() string {
	switch s {
	case MonitorUninitialized:
		return "UNINITIALIZED"
	case MonitorArmed:
		return "ARMED"
	case MonitorExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// =============================================================================
// MONITOR
// =============================================================================

// Monitor periodically expires an invalid session and notifies a callback.
type Monitor struct {
	store    *Store
	interval time.Duration
	logger   *zap.Logger
	metrics  *telemetry.Metrics

	mu        sync.Mutex
	state     MonitorState
	onExpired func(ExpiryReason)
	stop      chan struct{}
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the tick cadence. Zero disables the background ticker;
// the host then drives Check itself.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d >= 0 {
			m.interval = d
		}
	}
}

// WithMonitorLogger sets the monitor logger.
func WithMonitorLogger(l *zap.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMonitorMetrics attaches a metrics sink.
func WithMonitorMetrics(mt *telemetry.Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = mt }
}

// NewMonitor creates an uninitialized monitor over store.
func NewMonitor(store *Store, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:    store,
		interval: DefaultCheckInterval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init arms the monitor. onExpired runs outside the monitor lock each time a
// tick clears the session. A second Init is a no-op.
func (m *Monitor) Init(onExpired func(ExpiryReason)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != MonitorUninitialized {
		m.logger.Warn("session monitor already initialized")
		return
	}

	m.onExpired = onExpired
	m.state = MonitorArmed

	if m.interval > 0 {
		m.stop = make(chan struct{})
		go m.run(m.interval, m.stop)
	}
	m.logger.Debug("session monitor armed", zap.Duration("interval", m.interval))
}

func (m *Monitor) run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Destroy stops the ticker and returns the monitor to the uninitialized
// state. It is idempotent and safe to call from onExpired; a tick already in
// flight finishes on its own.
func (m *Monitor) Destroy() {
	m.mu.Lock()
	if m.state == MonitorUninitialized {
		m.mu.Unlock()
		return
	}
	stop := m.stop
	m.stop = nil
	m.state = MonitorUninitialized
	m.onExpired = nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	m.logger.Debug("session monitor destroyed")
}

// State returns the current lifecycle state.
func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Check runs one tick. It returns true when this tick cleared the session.
func (m *Monitor) Check() bool {
	m.mu.Lock()
	if m.state == MonitorUninitialized {
		m.mu.Unlock()
		return false
	}

	reason, cleared := m.store.ExpireIfInvalid()
	if !cleared {
		if m.state == MonitorExpired && m.store.CheckValidity() {
			m.state = MonitorArmed
			m.logger.Debug("session monitor re-armed")
		}
		m.mu.Unlock()
		return false
	}

	m.state = MonitorExpired
	cb := m.onExpired
	m.mu.Unlock()

	m.metrics.SessionExpired(string(reason))
	m.logger.Info("session ended by monitor", zap.String("reason", string(reason)))
	if cb != nil {
		cb(reason)
	}
	return true
}

// RecordActivity forwards a user interaction to the store.
func (m *Monitor) RecordActivity() {
	if err := m.store.UpdateLastActivity(); err != nil {
		m.logger.Debug("activity not recorded", zap.Error(err))
	}
}
