// Package security records security-relevant pipeline events and maintains
// durable failure counters. Recording is strictly best-effort: a failure to
// write an event is logged and swallowed so it can never mask the pipeline
// failure being reported.
package security

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/metrics"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/store"
)

// Monitor records security events for one local agent id.
type Monitor struct {
	agentID string
	store   store.Store
	logger  zerolog.Logger

	mu       sync.Mutex
	counters models.SecurityMetrics // process-local mirror, store is authoritative

	now func() time.Time
}

// NewMonitor creates a monitor for the given agent id.
func NewMonitor(agentID string, st store.Store, logger zerolog.Logger) *Monitor {
	return &Monitor{
		agentID:  agentID,
		store:    st,
		logger:   logger.With().Str("component", "security").Logger(),
		counters: models.SecurityMetrics{AgentID: agentID},
		now:      time.Now,
	}
}

// RecordEvent appends an audit event and bumps the matching durable counter.
// It never returns an error.
func (m *Monitor) RecordEvent(ctx context.Context, kind models.EventKind, severity models.Severity, message string, metadata map[string]any) {
	now := m.now().UnixMilli()
	ev := &models.SecurityEvent{
		ID:        uuid.NewString(),
		AgentID:   m.agentID,
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		Timestamp: now,
		Metadata:  metadata,
	}

	if err := m.store.InsertSecurityEvent(ctx, ev); err != nil {
		m.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to persist security event")
	}
	if err := m.store.IncrementSecurityCounter(ctx, m.agentID, kind, now); err != nil {
		m.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to bump security counter")
	}

	m.mu.Lock()
	m.counters.Bump(kind, now)
	m.mu.Unlock()

	metrics.SecurityEvents.WithLabelValues(string(kind)).Inc()

	m.logger.Warn().
		Str("type", "security").
		Str("event", string(kind)).
		Str("severity", string(severity)).
		Str("event_id", ev.ID).
		Msg(message)
}

// Metrics returns the durable counter row for the local agent id, re-read on
// every call so the numbers stay correct when multiple engine instances
// share one agent id. A missing row yields zeroed defaults.
func (m *Monitor) Metrics(ctx context.Context) (*models.SecurityMetrics, error) {
	row, err := m.store.GetSecurityMetrics(ctx, m.agentID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &models.SecurityMetrics{AgentID: m.agentID}, nil
	}
	return row, nil
}

// Events returns recorded events for the local agent id, newest first.
func (m *Monitor) Events(ctx context.Context, f models.EventFilter) ([]models.SecurityEvent, error) {
	return m.store.ListSecurityEvents(ctx, m.agentID, f)
}
