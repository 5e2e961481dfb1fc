package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
)

// MemoryStore is an in-process Store used by tests and by the server when no
// database is configured. All operations are guarded by a single mutex, so
// counter increments are atomic.
type MemoryStore struct {
	mu       sync.Mutex
	peers    map[string]int64 // agent id -> last seen
	loads    map[string]models.PeerLoad
	messages map[string]MessageRow
	metrics  map[string]models.SecurityMetrics
	events   []models.SecurityEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		peers:    make(map[string]int64),
		loads:    make(map[string]models.PeerLoad),
		messages: make(map[string]MessageRow),
		metrics:  make(map[string]models.SecurityMetrics),
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *MemoryStore) UpsertPeer(ctx context.Context, agentID string, lastSeen int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[agentID] = lastSeen
	return nil
}

func (s *MemoryStore) ListPeers(ctx context.Context) ([]PeerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]PeerRow, 0, len(s.peers))
	for id, seen := range s.peers {
		peers = append(peers, PeerRow{AgentID: id, LastSeen: seen})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].AgentID < peers[j].AgentID })
	return peers, nil
}

func (s *MemoryStore) GetPeerLoad(ctx context.Context, agentID string) (*models.PeerLoad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	load, ok := s.loads[agentID]
	if !ok {
		return nil, nil
	}
	return &load, nil
}

func (s *MemoryStore) ListPeerLoads(ctx context.Context) ([]models.PeerLoad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loads := make([]models.PeerLoad, 0, len(s.loads))
	for _, l := range s.loads {
		loads = append(loads, l)
	}
	sort.Slice(loads, func(i, j int) bool { return loads[i].AgentID < loads[j].AgentID })
	return loads, nil
}

func (s *MemoryStore) IncrementPeerLoad(ctx context.Context, agentID string, now int64, defaultWeight float64) (*models.PeerLoad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	load, ok := s.loads[agentID]
	if !ok {
		load = models.PeerLoad{AgentID: agentID, Weight: defaultWeight}
	}
	load.MessageCount++
	load.LastUpdate = now
	s.loads[agentID] = load
	return &load, nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, row *MessageRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[row.ID]; exists {
		return fmt.Errorf("message %s already exists", row.ID)
	}
	s.messages[row.ID] = *row
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*MessageRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *MemoryStore) GetSecurityMetrics(ctx context.Context, agentID string) (*models.SecurityMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[agentID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemoryStore) IncrementSecurityCounter(ctx context.Context, agentID string, kind models.EventKind, now int64) error {
	if _, ok := counterColumn(kind); !ok {
		return fmt.Errorf("unknown security counter kind %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[agentID]
	if !ok {
		m = models.SecurityMetrics{AgentID: agentID}
	}
	m.Bump(kind, now)
	s.metrics[agentID] = m
	return nil
}

func (s *MemoryStore) InsertSecurityEvent(ctx context.Context, ev *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *MemoryStore) ListSecurityEvents(ctx context.Context, agentID string, f models.EventFilter) ([]models.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []models.SecurityEvent
	for _, ev := range s.events {
		if ev.AgentID != agentID {
			continue
		}
		if f.Kind != "" && ev.Kind != f.Kind {
			continue
		}
		if f.Severity != "" && ev.Severity != f.Severity {
			continue
		}
		if f.Since > 0 && ev.Timestamp < f.Since {
			continue
		}
		if f.Until > 0 && ev.Timestamp > f.Until {
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp > events[j].Timestamp })
	if f.Limit > 0 && len(events) > f.Limit {
		events = events[:f.Limit]
	}
	return events, nil
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache implementing Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

func (c *MemoryCache) Close() error { return nil }

func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

func (c *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return "", ErrCacheMiss
	}
	return entry.value, nil
}

func (c *MemoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

// Clear drops every entry. Tests use it to force store-path reads.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
