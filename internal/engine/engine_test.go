package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/balancer"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/compress"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/ratelimit"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/store"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func newTestEngine(t *testing.T, opts Options) (*Engine, *store.MemoryStore, *store.MemoryCache) {
	t.Helper()
	if opts.AgentID == "" {
		opts.AgentID = "self"
	}
	st := store.NewMemoryStore()
	cache := store.NewMemoryCache()
	e, err := New(opts, st, cache, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return e, st, cache
}

func TestSendReceiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, _, cache := newTestEngine(t, Options{})

	sent, err := e.SendMessage(ctx, Draft{
		Kind:      models.KindRequest,
		Recipient: "peer-1",
		Payload:   map[string]any{"action": "fetch", "limit": float64(10)},
		Metadata:  map[string]any{"trace": "abc"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if sent.ID == "" || sent.CreatedAt == 0 {
		t.Fatalf("engine must assign id and timestamp, got %+v", sent)
	}
	if sent.Sender != "self" {
		t.Fatalf("sender must default to the local agent id, got %q", sent.Sender)
	}

	// Served from cache first.
	got, err := e.ReceiveMessage(ctx, sent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != sent.ID || got.Payload["action"] != "fetch" {
		t.Fatalf("cache-path mismatch: %+v", got)
	}

	// And from the store after the cache entry is gone.
	cache.Clear()
	got, err = e.ReceiveMessage(ctx, sent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Kind != models.KindRequest || got.Recipient != "peer-1" {
		t.Fatalf("store-path mismatch: %+v", got)
	}
	if got.Metadata["trace"] != "abc" {
		t.Fatalf("metadata must survive the round trip, got %+v", got.Metadata)
	}

	// The store path refills the cache.
	if _, err := cache.Get(ctx, "message:"+sent.ID); err != nil {
		t.Fatalf("expected write-through cache fill, got %v", err)
	}
}

func TestUnknownIDReturnsNil(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})

	got, err := e.ReceiveMessage(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("unknown id must not be an error, got %v", err)
	}
	if got != nil {
		t.Fatalf("unknown id must resolve to nil, got %+v", got)
	}
}

func TestRateLimitAccounting(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, Options{
		RateLimit: &ratelimit.Config{TokensPerInterval: 1, Interval: time.Hour, MaxTokens: 1},
	})

	draft := Draft{Kind: models.KindNotification, Recipient: "peer-1", Payload: map[string]any{"n": float64(1)}}
	if _, err := e.SendMessage(ctx, draft); err != nil {
		t.Fatal(err)
	}

	_, err := e.SendMessage(ctx, draft)
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}

	m, err := e.SecurityMetrics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m.RateLimitViolations != 1 {
		t.Fatalf("one rejection must increment the counter by exactly 1, got %d", m.RateLimitViolations)
	}

	events, err := e.SecurityEvents(ctx, models.EventFilter{Kind: models.EventRateLimit})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one rate_limit event, got %d", len(events))
	}
	if events[0].Severity != models.SeverityMedium {
		t.Fatalf("rate_limit events carry medium severity, got %s", events[0].Severity)
	}
	if _, ok := events[0].Metadata["retry_after_ms"]; !ok {
		t.Fatal("rate_limit event must carry the backoff hint")
	}
}

func TestEncryptedEnvelopeHidesPayload(t *testing.T) {
	ctx := context.Background()
	e, st, cache := newTestEngine(t, Options{CipherKey: testKey})

	sent, err := e.SendMessage(ctx, Draft{
		Kind:      models.KindRequest,
		Recipient: "peer-1",
		Payload:   map[string]any{"secret": "hunter2"},
	})
	if err != nil {
		t.Fatal(err)
	}

	row, err := st.GetMessage(ctx, sent.ID)
	if err != nil {
		t.Fatal(err)
	}
	var blob models.CompressedBlob
	if err := json.Unmarshal([]byte(row.Envelope), &blob); err != nil {
		t.Fatalf("envelope must be a compressed blob even without a compressor: %v", err)
	}
	var inner models.EncryptedBlob
	if err := json.Unmarshal([]byte(blob.Data), &inner); err != nil {
		t.Fatalf("inner layer must be an encrypted blob: %v", err)
	}
	if inner.Algorithm == "" || inner.Ciphertext == "" || inner.IV == "" || inner.AuthTag == "" {
		t.Fatalf("encrypted blob incomplete: %+v", inner)
	}

	// Routing columns stay in clear; the payload does not.
	if row.Recipient != "peer-1" {
		t.Fatalf("routing columns must be queryable in clear, got %q", row.Recipient)
	}

	cache.Clear()
	got, err := e.ReceiveMessage(ctx, sent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload["secret"] != "hunter2" {
		t.Fatalf("decryption mismatch: %+v", got.Payload)
	}
}

func TestCompressedEnvelopeRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, st, cache := newTestEngine(t, Options{
		Compression: &compress.Config{ThresholdBytes: 32, Level: 6},
	})

	sent, err := e.SendMessage(ctx, Draft{
		Kind:      models.KindResponse,
		Recipient: "peer-1",
		Payload:   map[string]any{"body": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	})
	if err != nil {
		t.Fatal(err)
	}

	row, err := st.GetMessage(ctx, sent.ID)
	if err != nil {
		t.Fatal(err)
	}
	var blob models.CompressedBlob
	if err := json.Unmarshal([]byte(row.Envelope), &blob); err != nil {
		t.Fatal(err)
	}
	if !blob.Compressed {
		t.Fatal("payload above threshold must be stored compressed")
	}

	cache.Clear()
	got, err := e.ReceiveMessage(ctx, sent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload["body"] == "" || got.Payload["body"] != sent.Payload["body"] {
		t.Fatalf("compressed round trip mismatch: %+v", got.Payload)
	}
}

func TestEncryptThenCompressOrdering(t *testing.T) {
	ctx := context.Background()
	e, st, cache := newTestEngine(t, Options{
		CipherKey:   testKey,
		Compression: &compress.Config{ThresholdBytes: 1, Level: 9},
	})

	sent, err := e.SendMessage(ctx, Draft{
		Kind:      models.KindRequest,
		Recipient: "peer-1",
		Payload:   map[string]any{"k": "v"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Outer layer is compression, inner layer is encryption.
	row, _ := st.GetMessage(ctx, sent.ID)
	var outer models.CompressedBlob
	if err := json.Unmarshal([]byte(row.Envelope), &outer); err != nil {
		t.Fatalf("outer layer must be the compressed blob: %v", err)
	}
	inner, err := compress.Decompress(&outer)
	if err != nil {
		t.Fatal(err)
	}
	var enc models.EncryptedBlob
	if err := json.Unmarshal(inner, &enc); err != nil {
		t.Fatalf("inner layer must be the encrypted blob: %v", err)
	}

	cache.Clear()
	got, err := e.ReceiveMessage(ctx, sent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload["k"] != "v" {
		t.Fatalf("layered round trip mismatch: %+v", got.Payload)
	}
}

func TestValidationRejectsCorruptKind(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newTestEngine(t, Options{})

	// Inject a stored envelope whose decoded kind is not a protocol kind.
	bad := models.Message{
		ID:        "bad-1",
		Kind:      "gossip",
		Sender:    "a",
		Recipient: "b",
		CreatedAt: time.Now().UnixMilli(),
		Payload:   map[string]any{"x": float64(1)},
	}
	raw, _ := json.Marshal(bad)
	envelope, _ := json.Marshal(compress.PassThrough(raw))
	if err := st.InsertMessage(ctx, &store.MessageRow{
		ID:        bad.ID,
		Kind:      string(bad.Kind),
		Sender:    bad.Sender,
		Recipient: bad.Recipient,
		CreatedAt: bad.CreatedAt,
		Envelope:  string(envelope),
	}); err != nil {
		t.Fatal(err)
	}

	_, err := e.ReceiveMessage(ctx, "bad-1")
	if !errors.Is(err, ErrInvalidMessageStructure) {
		t.Fatalf("expected ErrInvalidMessageStructure, got %v", err)
	}

	events, err := e.SecurityEvents(ctx, models.EventFilter{Kind: models.EventValidation})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Severity != models.SeverityHigh {
		t.Fatalf("expected one validation/high event, got %+v", events)
	}
}

func TestCacheFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e, err := New(Options{AgentID: "self"}, st, &brokenCache{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	// Message exists in the store, but the cache layer is down: no fallback.
	raw, _ := json.Marshal(models.Message{
		ID: "m1", Kind: models.KindRequest, Sender: "a", Recipient: "b",
		CreatedAt: 1, Payload: map[string]any{},
	})
	envelope, _ := json.Marshal(compress.PassThrough(raw))
	if err := st.InsertMessage(ctx, &store.MessageRow{
		ID: "m1", Kind: "request", Sender: "a", Recipient: "b", CreatedAt: 1,
		Envelope: string(envelope),
	}); err != nil {
		t.Fatal(err)
	}

	_, err = e.ReceiveMessage(ctx, "m1")
	if !errors.Is(err, store.ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestLoadBalancerResolvesSentinel(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Now().UnixMilli()
	if err := st.UpsertPeer(ctx, "p1", now); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertPeer(ctx, "p2", now); err != nil {
		t.Fatal(err)
	}

	e, err := New(Options{
		AgentID:       "self",
		LoadBalancing: balancer.Config{Strategy: balancer.StrategyRoundRobin},
	}, st, store.NewMemoryCache(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	sent, err := e.SendMessage(ctx, Draft{
		Kind:      models.KindRequest,
		Recipient: balancer.RecipientAny,
		Payload:   map[string]any{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if sent.Recipient != "p1" && sent.Recipient != "p2" {
		t.Fatalf("sentinel must resolve to an active peer, got %q", sent.Recipient)
	}

	load, err := st.GetPeerLoad(ctx, sent.Recipient)
	if err != nil {
		t.Fatal(err)
	}
	if load == nil || load.MessageCount != 1 {
		t.Fatalf("selection must persist a load increment, got %+v", load)
	}
}

func TestConstructionRejectsBadKey(t *testing.T) {
	_, err := New(Options{AgentID: "self", CipherKey: "tooshort"},
		store.NewMemoryStore(), store.NewMemoryCache(), zerolog.Nop())
	if err == nil {
		t.Fatal("expected construction to fail on a malformed key")
	}
}

// brokenCache fails every operation with a transport-style error.
type brokenCache struct{}

func (c *brokenCache) Close() error                         { return nil }
func (c *brokenCache) Ping(ctx context.Context) error       { return errors.New("cache down") }
func (c *brokenCache) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("cache down")
}
func (c *brokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("cache down")
}
