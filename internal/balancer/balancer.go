// Package balancer selects a destination peer for an outbound message.
// Selection is pure given registry state; the engine feeds it live peers and
// loads and persists the consequence (the load increment) after selection.
package balancer

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
)

// Strategy names a peer-selection policy.
type Strategy string

const (
	StrategyRoundRobin  Strategy = "round-robin"
	StrategyLeastLoaded Strategy = "least-loaded"
	StrategyWeighted    Strategy = "weighted"
	StrategyNone        Strategy = ""
)

// RecipientAny is the sentinel recipient meaning "pick any peer for me".
const RecipientAny = "any"

// Config holds load-balancing parameters.
type Config struct {
	Strategy Strategy

	// OverrideExplicit controls whether a caller-specified concrete
	// recipient is still overridden by the strategy. When false (the
	// default) only the "any" sentinel triggers selection.
	OverrideExplicit bool
}

// Balancer picks destination peers. The round-robin cursor is kept against
// the sorted active peer set so its position does not drift when the map
// iteration order of the inputs changes between calls.
type Balancer struct {
	cfg    Config
	selfID string

	mu     sync.Mutex
	cursor int

	randFloat func() float64
}

// New creates a balancer for the given local agent id.
func New(cfg Config, selfID string) *Balancer {
	return &Balancer{
		cfg:       cfg,
		selfID:    selfID,
		randFloat: rand.Float64,
	}
}

// SelectPeer resolves the destination for a message. When no strategy is
// configured, no peer is active, or the requested recipient is explicit and
// overriding is disabled, the requested recipient is returned unchanged.
func (b *Balancer) SelectPeer(requested string, peers []models.Peer, loads map[string]models.PeerLoad) string {
	if b.cfg.Strategy == StrategyNone {
		return requested
	}
	if !b.cfg.OverrideExplicit && requested != RecipientAny && requested != "" {
		return requested
	}

	active := b.activeSet(peers)
	if len(active) == 0 {
		return requested
	}

	switch b.cfg.Strategy {
	case StrategyRoundRobin:
		return b.roundRobin(active)
	case StrategyLeastLoaded:
		return leastLoaded(active, loads)
	case StrategyWeighted:
		return b.weighted(active, loads)
	default:
		return requested
	}
}

// activeSet filters to active peers, excluding self and the sentinel name,
// sorted by agent id for a stable selection order.
func (b *Balancer) activeSet(peers []models.Peer) []string {
	var active []string
	for _, p := range peers {
		if !p.Active() || p.AgentID == b.selfID || p.AgentID == RecipientAny {
			continue
		}
		active = append(active, p.AgentID)
	}
	sort.Strings(active)
	return active
}

// roundRobin selects then advances: the peer at the cursor is returned and
// the cursor moves to the next slot.
func (b *Balancer) roundRobin(active []string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.cursor % len(active)
	b.cursor = (idx + 1) % len(active)
	return active[idx]
}

// leastLoaded picks the peer with the minimum message count; ties resolve to
// the first peer in sorted order. Peers with no load row count as zero.
func leastLoaded(active []string, loads map[string]models.PeerLoad) string {
	best := active[0]
	var bestCount int64
	if l, ok := loads[best]; ok {
		bestCount = l.MessageCount
	}
	for _, id := range active[1:] {
		var count int64
		if l, ok := loads[id]; ok {
			count = l.MessageCount
		}
		if count < bestCount {
			best, bestCount = id, count
		}
	}
	return best
}

// weighted draws a peer with probability proportional to its weight
// (defaulting to 1.0). If floating-point rounding exhausts the walk without
// triggering, the first peer wins.
func (b *Balancer) weighted(active []string, loads map[string]models.PeerLoad) string {
	weightOf := func(id string) float64 {
		if l, ok := loads[id]; ok && l.Weight > 0 {
			return l.Weight
		}
		return 1.0
	}

	var total float64
	for _, id := range active {
		total += weightOf(id)
	}

	r := b.randFloat() * total
	for _, id := range active {
		r -= weightOf(id)
		if r <= 0 {
			return id
		}
	}
	return active[0]
}
