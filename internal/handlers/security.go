package handlers

import (
	"net/http"
	"strconv"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
)

// SecurityMetricsHandler handles GET /security/metrics: durable failure
// counters persisted across restarts.
func (h *Handler) SecurityMetricsHandler(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.SecurityMetrics(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read security metrics")
		h.Error(w, http.StatusServiceUnavailable, "metrics unavailable")
		return
	}
	h.JSON(w, http.StatusOK, m)
}

// SecurityEventsHandler handles GET /security/events with optional kind,
// severity, since, until, and limit query filters.
func (h *Handler) SecurityEventsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.EventFilter{
		Kind:     models.EventKind(q.Get("kind")),
		Severity: models.Severity(q.Get("severity")),
		Limit:    parseLimit(r, 100, 1000),
	}
	if raw := q.Get("since"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "since must be a Unix ms timestamp")
			return
		}
		filter.Since = ts
	}
	if raw := q.Get("until"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "until must be a Unix ms timestamp")
			return
		}
		filter.Until = ts
	}

	events, err := h.engine.SecurityEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list security events")
		h.Error(w, http.StatusServiceUnavailable, "events unavailable")
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
