// Package registry tracks known peers, their liveness, and per-peer load
// counters. Peer and load maps are in-memory mirrors of the durable tables,
// refreshed at initialization and on every liveness cycle.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/metrics"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/store"
)

const (
	// DefaultLivenessInterval drives the refresh ticker.
	DefaultLivenessInterval = 30 * time.Second

	// freshnessWindow is how recently a peer must have heartbeated to count
	// as active. Peers outside the window go stale, never deleted.
	freshnessWindow = 5 * time.Minute

	defaultWeight = 1.0
)

// Config holds registry parameters.
type Config struct {
	AgentID          string
	LivenessInterval time.Duration
	Weights          map[string]float64 // static per-peer weights, default 1.0
}

// Registry owns the peer and load state for one engine instance.
type Registry struct {
	cfg    Config
	store  store.Store
	logger zerolog.Logger

	mu    sync.RWMutex
	peers map[string]models.Peer
	loads map[string]models.PeerLoad

	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

// New creates a registry. Initialize must be called before use.
func New(cfg Config, st store.Store, logger zerolog.Logger) *Registry {
	if cfg.LivenessInterval <= 0 {
		cfg.LivenessInterval = DefaultLivenessInterval
	}
	return &Registry{
		cfg:    cfg,
		store:  st,
		logger: logger.With().Str("component", "registry").Logger(),
		peers:  make(map[string]models.Peer),
		loads:  make(map[string]models.PeerLoad),
		now:    time.Now,
	}
}

// Initialize ensures the schema exists and loads the peer and load mirrors.
// Peers without a load row get a synthesized default.
func (r *Registry) Initialize(ctx context.Context) error {
	if err := r.store.EnsureSchema(ctx); err != nil {
		return err
	}

	rows, err := r.store.ListPeers(ctx)
	if err != nil {
		return err
	}
	loads, err := r.store.ListPeerLoads(ctx)
	if err != nil {
		return err
	}

	now := r.now().UnixMilli()
	cutoff := now - freshnessWindow.Milliseconds()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers = make(map[string]models.Peer, len(rows))
	for _, row := range rows {
		r.peers[row.AgentID] = peerFromRow(row, cutoff)
	}

	r.loads = make(map[string]models.PeerLoad, len(loads))
	for _, l := range loads {
		r.loads[l.AgentID] = l
	}
	for _, row := range rows {
		if _, ok := r.loads[row.AgentID]; !ok {
			r.loads[row.AgentID] = models.PeerLoad{
				AgentID:    row.AgentID,
				LastUpdate: now,
				Weight:     r.weightFor(row.AgentID),
			}
		}
	}
	return nil
}

// StartLiveness launches the refresh loop: one cycle immediately, then one
// per interval until StopLiveness or context cancellation. Cycle errors are
// logged and counted but never stop the loop; peer data is allowed to go
// briefly stale rather than take down the engine.
func (r *Registry) StartLiveness(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		r.runCycle(ctx)

		ticker := time.NewTicker(r.cfg.LivenessInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runCycle(ctx)
			}
		}
	}()
}

func (r *Registry) runCycle(ctx context.Context) {
	if err := r.refresh(ctx); err != nil {
		metrics.LivenessCycles.WithLabelValues("error").Inc()
		r.logger.Warn().
			Str("type", "liveness").
			Str("event", "cycle_failed").
			Err(err).
			Msg("liveness cycle failed, peer data may be stale")
		return
	}
	metrics.LivenessCycles.WithLabelValues("ok").Inc()
}

// refresh reloads peer rows, re-derives Active/Stale from the freshness
// window, then upserts self as active with a fresh timestamp.
func (r *Registry) refresh(ctx context.Context) error {
	now := r.now().UnixMilli()
	cutoff := now - freshnessWindow.Milliseconds()

	rows, err := r.store.ListPeers(ctx)
	if err != nil {
		return err
	}

	peers := make(map[string]models.Peer, len(rows)+1)
	for _, row := range rows {
		peers[row.AgentID] = peerFromRow(row, cutoff)
	}

	if err := r.store.UpsertPeer(ctx, r.cfg.AgentID, now); err != nil {
		return err
	}
	peers[r.cfg.AgentID] = models.Peer{
		AgentID:  r.cfg.AgentID,
		Status:   models.PeerActive,
		LastSeen: now,
	}

	activeCount := 0
	for _, p := range peers {
		if p.Active() {
			activeCount++
		}
	}

	r.mu.Lock()
	r.peers = peers
	r.mu.Unlock()

	metrics.ActivePeers.Set(float64(activeCount))
	return nil
}

// StopLiveness cancels the refresh loop and clears the peer map. The load
// map is retained.
func (r *Registry) StopLiveness() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel = nil
	}

	r.mu.Lock()
	r.peers = make(map[string]models.Peer)
	r.mu.Unlock()
}

// UpdateLoad records one message routed to the given agent. The peer row is
// upserted first so the load row always has a peer to refer to, then the
// count is bumped atomically in the store and mirrored back into memory.
func (r *Registry) UpdateLoad(ctx context.Context, agentID string) error {
	now := r.now().UnixMilli()

	if err := r.store.UpsertPeer(ctx, agentID, r.lastSeenOf(agentID, now)); err != nil {
		return err
	}

	load, err := r.store.IncrementPeerLoad(ctx, agentID, now, r.weightFor(agentID))
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.loads[agentID] = *load
	if _, ok := r.peers[agentID]; !ok {
		// First observation of this peer; it becomes known immediately,
		// active status settles on the next liveness cycle.
		r.peers[agentID] = models.Peer{AgentID: agentID, Status: models.PeerActive, LastSeen: now}
	}
	r.mu.Unlock()
	return nil
}

// lastSeenOf preserves an existing last-seen timestamp so routing a message
// to a peer does not masquerade as a heartbeat from it.
func (r *Registry) lastSeenOf(agentID string, fallback int64) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.peers[agentID]; ok && p.LastSeen > 0 {
		return p.LastSeen
	}
	return fallback
}

// Peers returns a snapshot of the known peers.
func (r *Registry) Peers() []models.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]models.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}

// Loads returns a snapshot of the per-peer load counters.
func (r *Registry) Loads() map[string]models.PeerLoad {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loads := make(map[string]models.PeerLoad, len(r.loads))
	for id, l := range r.loads {
		loads[id] = l
	}
	return loads
}

// PeerStatus looks up one peer.
func (r *Registry) PeerStatus(agentID string) (models.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[agentID]
	return p, ok
}

func (r *Registry) weightFor(agentID string) float64 {
	if w, ok := r.cfg.Weights[agentID]; ok && w > 0 {
		return w
	}
	return defaultWeight
}

func peerFromRow(row store.PeerRow, cutoff int64) models.Peer {
	p := models.Peer{AgentID: row.AgentID, LastSeen: row.LastSeen}
	if row.LastSeen >= cutoff {
		p.Status = models.PeerActive
	} else {
		p.Status = models.PeerStale
		p.StaleSince = row.LastSeen
	}
	return p
}
