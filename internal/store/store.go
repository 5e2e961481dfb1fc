package store

import (
	"context"
	"errors"
	"time"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
)

var (
	// ErrCacheMiss is returned by Cache.Get when the key does not exist.
	// It is a legitimate outcome, distinct from the cache being unreachable.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrStoreUnavailable wraps failures talking to the durable store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCacheUnavailable wraps failures talking to the cache layer.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// PeerRow is a raw peer record as persisted. The stored status column only
// reflects the last heartbeat write; the registry derives current liveness
// from LastSeen against a freshness window.
type PeerRow struct {
	AgentID  string
	LastSeen int64 // Unix ms
}

// MessageRow is a persisted message: routing columns stay in clear for
// indexing and querying, the envelope carries the (possibly encrypted and
// compressed) payload.
type MessageRow struct {
	ID        string
	Kind      string
	Sender    string
	Recipient string
	CreatedAt int64  // Unix ms
	Envelope  string // envelope JSON
	Metadata  string // metadata JSON, may be empty
}

// Store is the durable half of the engine's persistence. Both PostgresStore
// and SQLiteStore implement it.
type Store interface {
	Close()
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	// Peer operations
	UpsertPeer(ctx context.Context, agentID string, lastSeen int64) error
	ListPeers(ctx context.Context) ([]PeerRow, error)

	// Peer load operations
	GetPeerLoad(ctx context.Context, agentID string) (*models.PeerLoad, error)
	ListPeerLoads(ctx context.Context) ([]models.PeerLoad, error)
	IncrementPeerLoad(ctx context.Context, agentID string, now int64, defaultWeight float64) (*models.PeerLoad, error)

	// Message operations
	InsertMessage(ctx context.Context, row *MessageRow) error
	GetMessage(ctx context.Context, id string) (*MessageRow, error)

	// Security operations
	GetSecurityMetrics(ctx context.Context, agentID string) (*models.SecurityMetrics, error)
	IncrementSecurityCounter(ctx context.Context, agentID string, kind models.EventKind, now int64) error
	InsertSecurityEvent(ctx context.Context, ev *models.SecurityEvent) error
	ListSecurityEvents(ctx context.Context, agentID string, f models.EventFilter) ([]models.SecurityEvent, error)
}

// Cache is a TTL-capable key/value cache holding string-serialized JSON.
type Cache interface {
	Close() error
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// counterColumn maps an event kind to its security_metrics column. The map
// doubles as a whitelist for the dynamic UPDATE statements.
func counterColumn(kind models.EventKind) (string, bool) {
	switch kind {
	case models.EventEncryption:
		return "encryption_failures", true
	case models.EventDecryption:
		return "decryption_failures", true
	case models.EventRateLimit:
		return "rate_limit_violations", true
	case models.EventCompression:
		return "compression_failures", true
	case models.EventValidation:
		return "invalid_messages", true
	}
	return "", false
}
