package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/engine"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	engine *engine.Engine
	store  store.Store
	cache  store.Cache
	logger zerolog.Logger
}

// NewHandler creates a new Handler around the engine and its backends.
func NewHandler(e *engine.Engine, st store.Store, cache store.Cache, logger zerolog.Logger) *Handler {
	return &Handler{engine: e, store: st, cache: cache, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
