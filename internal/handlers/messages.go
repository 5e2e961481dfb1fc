package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/engine"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/store"
)

// SendMessageRequest is the POST /messages body.
type SendMessageRequest struct {
	Kind      string         `json:"kind"`
	Sender    string         `json:"sender,omitempty"`
	Recipient string         `json:"recipient"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SendMessage handles POST /messages: it runs the full send pipeline and
// returns the persisted message, including the resolved recipient.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind := models.MessageKind(req.Kind)
	if !kind.Valid() {
		h.Error(w, http.StatusBadRequest, "kind must be request, response, or notification")
		return
	}
	if req.Recipient == "" {
		h.Error(w, http.StatusBadRequest, "recipient is required")
		return
	}
	if req.Payload == nil {
		h.Error(w, http.StatusBadRequest, "payload must be a JSON object")
		return
	}

	msg, err := h.engine.SendMessage(r.Context(), engine.Draft{
		Kind:      kind,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Payload:   req.Payload,
		Metadata:  req.Metadata,
	})
	switch {
	case err == nil:
		h.JSON(w, http.StatusCreated, msg)
	case errors.Is(err, engine.ErrRateLimitExceeded):
		h.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, engine.ErrInvalidMessageStructure):
		h.Error(w, http.StatusBadRequest, "invalid message structure")
	default:
		h.logger.Error().Err(err).Msg("send pipeline failed")
		h.Error(w, http.StatusServiceUnavailable, "send pipeline failed")
	}
}

// GetMessage handles GET /messages/{id}: it runs the receive pipeline.
// An unknown id is a 404, not an error.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := h.engine.ReceiveMessage(r.Context(), id)
	switch {
	case err == nil && msg == nil:
		h.Error(w, http.StatusNotFound, "message not found")
	case err == nil:
		h.JSON(w, http.StatusOK, msg)
	case errors.Is(err, engine.ErrInvalidMessageStructure):
		h.Error(w, http.StatusUnprocessableEntity, "stored message failed validation")
	case errors.Is(err, store.ErrCacheUnavailable), errors.Is(err, store.ErrStoreUnavailable):
		h.logger.Error().Err(err).Str("message_id", id).Msg("receive backend unavailable")
		h.Error(w, http.StatusServiceUnavailable, "backend unavailable")
	default:
		h.logger.Error().Err(err).Str("message_id", id).Msg("receive pipeline failed")
		h.Error(w, http.StatusInternalServerError, "receive pipeline failed")
	}
}

// parseLimit reads a ?limit query parameter with a default and a ceiling.
func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
