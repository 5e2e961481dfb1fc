package models

// PeerStatus tags a peer as actively heartbeating or gone stale. Peers are
// never deleted; staleness is inferred from a freshness window on each
// liveness cycle.
type PeerStatus string

const (
	PeerActive PeerStatus = "active"
	PeerStale  PeerStatus = "stale"
)

// Peer is a known agent in the mesh.
type Peer struct {
	AgentID    string     `json:"agent_id"`
	Status     PeerStatus `json:"status"`
	LastSeen   int64      `json:"last_seen"`             // Unix ms
	StaleSince int64      `json:"stale_since,omitempty"` // Unix ms, zero while active
}

// Active reports whether the peer was seen within the freshness window.
func (p Peer) Active() bool {
	return p.Status == PeerActive
}

// PeerLoad tracks how many messages have been routed to a peer, plus its
// load-balancing weight. Counts are best-effort signals, not exact accounting.
type PeerLoad struct {
	AgentID      string  `json:"agent_id"`
	MessageCount int64   `json:"message_count"`
	LastUpdate   int64   `json:"last_update"` // Unix ms
	Weight       float64 `json:"weight"`
}
