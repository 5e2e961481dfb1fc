package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
)

// PeerResponse is one peer in the registry snapshot.
type PeerResponse struct {
	AgentID    string  `json:"agentId"`
	Status     string  `json:"status"`
	LastSeen   int64   `json:"lastSeen"`
	StaleSince int64   `json:"staleSince,omitempty"`
	Load       int64   `json:"load"`
	Weight     float64 `json:"weight"`
}

func (h *Handler) peerResponse(p models.Peer) PeerResponse {
	resp := PeerResponse{
		AgentID:  p.AgentID,
		Status:   string(p.Status),
		LastSeen: p.LastSeen,
		Weight:   1.0,
	}
	if p.Status == models.PeerStale {
		resp.StaleSince = p.StaleSince
	}
	if load, ok := h.engine.GetPeerLoad(p.AgentID); ok {
		resp.Load = load.MessageCount
		resp.Weight = load.Weight
	}
	return resp
}

// ListPeers handles GET /peers: the registry's current view of every known
// peer, active and stale alike.
func (h *Handler) ListPeers(w http.ResponseWriter, r *http.Request) {
	peers := h.engine.ListPeers()
	out := make([]PeerResponse, 0, len(peers))
	for _, p := range peers {
		out = append(out, h.peerResponse(p))
	}
	h.JSON(w, http.StatusOK, map[string]any{"peers": out, "count": len(out)})
}

// GetPeer handles GET /peers/{id}.
func (h *Handler) GetPeer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	peer, ok := h.engine.GetPeerStatus(id)
	if !ok {
		h.Error(w, http.StatusNotFound, "peer not found")
		return
	}
	h.JSON(w, http.StatusOK, h.peerResponse(peer))
}
