// Package engine composes the A2A message pipeline: rate limiting, peer
// selection, encryption, compression, persistence, and caching on the send
// side; cache/store lookup, decompression, decryption, reconstruction, and
// validation on the receive side.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/balancer"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/compress"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/crypto"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/metrics"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/ratelimit"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/registry"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/security"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/store"
)

var (
	// ErrRateLimitExceeded is returned when the token bucket rejects a send.
	ErrRateLimitExceeded = errors.New("engine: rate limit exceeded")

	// ErrInvalidMessageStructure is returned when a reconstructed message
	// fails shape validation.
	ErrInvalidMessageStructure = errors.New("engine: invalid message structure")
)

// DefaultCacheTTL is how long envelopes live in the cache.
const DefaultCacheTTL = time.Hour

// Options configures an engine instance. Zero-value optional sections
// (CipherKey, RateLimit, Compression, LoadBalancing) disable the matching
// pipeline stage.
type Options struct {
	AgentID          string
	LivenessInterval time.Duration
	CipherKey        string // 64 hex chars; empty disables encryption
	CipherAlgorithm  string // defaults to aes-256-gcm
	RateLimit        *ratelimit.Config
	Compression      *compress.Config
	LoadBalancing    balancer.Config
	Weights          map[string]float64
	CacheTTL         time.Duration
}

// Draft is a caller-supplied message before the engine assigns identity.
type Draft struct {
	Kind      models.MessageKind `json:"kind"`
	Sender    string             `json:"sender,omitempty"`
	Recipient string             `json:"recipient"`
	Payload   map[string]any     `json:"payload"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
}

// Engine is the A2A protocol engine. It is safe for concurrent use.
type Engine struct {
	opts       Options
	store      store.Store
	cache      store.Cache
	logger     zerolog.Logger
	limiter    *ratelimit.Bucket
	cipher     *crypto.Cipher
	compressor *compress.Compressor
	registry   *registry.Registry
	balancer   *balancer.Balancer
	monitor    *security.Monitor
	cacheTTL   time.Duration
	now        func() time.Time
}

// New wires an engine from its collaborators. A malformed cipher key fails
// construction; nothing else touches the store until Initialize.
func New(opts Options, st store.Store, cache store.Cache, logger zerolog.Logger) (*Engine, error) {
	if opts.AgentID == "" {
		return nil, errors.New("engine: agent id is required")
	}

	e := &Engine{
		opts:     opts,
		store:    st,
		cache:    cache,
		logger:   logger.With().Str("component", "engine").Str("agent_id", opts.AgentID).Logger(),
		cacheTTL: opts.CacheTTL,
		now:      time.Now,
	}
	if e.cacheTTL <= 0 {
		e.cacheTTL = DefaultCacheTTL
	}

	if opts.CipherKey != "" {
		cipher, err := crypto.NewCipher(opts.CipherKey, opts.CipherAlgorithm)
		if err != nil {
			return nil, err
		}
		e.cipher = cipher
	}
	if opts.RateLimit != nil {
		e.limiter = ratelimit.New(*opts.RateLimit)
	}
	if opts.Compression != nil {
		compressor, err := compress.New(*opts.Compression)
		if err != nil {
			return nil, err
		}
		e.compressor = compressor
	}

	e.registry = registry.New(registry.Config{
		AgentID:          opts.AgentID,
		LivenessInterval: opts.LivenessInterval,
		Weights:          opts.Weights,
	}, st, logger)
	e.balancer = balancer.New(opts.LoadBalancing, opts.AgentID)
	e.monitor = security.NewMonitor(opts.AgentID, st, logger)

	return e, nil
}

// Initialize ensures the schema and loads registry state.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.registry.Initialize(ctx)
}

// Start launches the liveness loop.
func (e *Engine) Start(ctx context.Context) {
	e.registry.StartLiveness(ctx)
	e.logger.Info().Msg("engine started")
}

// Stop halts the liveness loop and clears transient peer state. In-flight
// sends and receives are not interrupted.
func (e *Engine) Stop() {
	e.registry.StopLiveness()
	e.logger.Info().Msg("engine stopped")
}

func cacheKey(id string) string {
	return "message:" + id
}

// SendMessage runs the send pipeline and returns the persisted message with
// its engine-assigned id, timestamp, and resolved recipient.
func (e *Engine) SendMessage(ctx context.Context, draft Draft) (*models.Message, error) {
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.WithLabelValues("send").Observe(time.Since(start).Seconds())
	}()

	if e.limiter != nil && !e.limiter.Acquire() {
		wait := e.limiter.TimeUntilNextToken()
		metrics.RateLimitRejections.Inc()
		e.monitor.RecordEvent(ctx, models.EventRateLimit, models.SeverityMedium,
			"send rejected by rate limiter",
			map[string]any{"retry_after_ms": wait.Milliseconds(), "recipient": draft.Recipient})
		return nil, fmt.Errorf("%w: retry after %s", ErrRateLimitExceeded, wait)
	}

	sender := draft.Sender
	if sender == "" {
		sender = e.opts.AgentID
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		Kind:      draft.Kind,
		Sender:    sender,
		Recipient: draft.Recipient,
		CreatedAt: e.now().UnixMilli(),
		Payload:   draft.Payload,
		Metadata:  draft.Metadata,
	}

	// The resolved recipient replaces the caller-supplied one everywhere:
	// in the persisted row, the envelope, and the returned message.
	msg.Recipient = e.balancer.SelectPeer(draft.Recipient, e.registry.Peers(), e.registry.Loads())

	if err := e.registry.UpdateLoad(ctx, msg.Recipient); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}

	envelope, err := e.encodeEnvelope(ctx, msg)
	if err != nil {
		return nil, err
	}

	row := &store.MessageRow{
		ID:        msg.ID,
		Kind:      string(msg.Kind),
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		CreatedAt: msg.CreatedAt,
		Envelope:  envelope,
	}
	if len(msg.Metadata) > 0 {
		metadata, err := json.Marshal(msg.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata not serializable", ErrInvalidMessageStructure)
		}
		row.Metadata = string(metadata)
	}

	if err := e.store.InsertMessage(ctx, row); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if err := e.cache.Set(ctx, cacheKey(msg.ID), envelope, e.cacheTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCacheUnavailable, err)
	}

	metrics.MessagesSent.Inc()
	e.logger.Debug().
		Str("message_id", msg.ID).
		Str("kind", string(msg.Kind)).
		Str("recipient", msg.Recipient).
		Msg("message sent")
	return msg, nil
}

// encodeEnvelope serializes the full message, encrypts if configured, then
// compresses (or wraps pass-through) so the stored shape is uniform.
// Encryption always runs before compression.
func (e *Engine) encodeEnvelope(ctx context.Context, msg *models.Message) (string, error) {
	layer, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("%w: message not serializable", ErrInvalidMessageStructure)
	}

	if e.cipher != nil {
		encrypted, err := e.cipher.Encrypt(layer)
		if err != nil {
			e.monitor.RecordEvent(ctx, models.EventEncryption, models.SeverityHigh,
				"message encryption failed", map[string]any{"message_id": msg.ID})
			return "", err
		}
		if layer, err = json.Marshal(encrypted); err != nil {
			return "", fmt.Errorf("%w: %v", crypto.ErrEncryption, err)
		}
	}

	var blob *models.CompressedBlob
	if e.compressor != nil {
		blob, err = e.compressor.Compress(layer)
		if err != nil {
			e.monitor.RecordEvent(ctx, models.EventCompression, models.SeverityMedium,
				"message compression failed", map[string]any{"message_id": msg.ID})
			return "", err
		}
	} else {
		blob = compress.PassThrough(layer)
	}

	envelope, err := json.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", compress.ErrCompression, err)
	}
	return string(envelope), nil
}

// ReceiveMessage resolves a message by id. An unknown id returns (nil, nil);
// a cache-layer failure is fatal with no fallback to the store, so callers
// can distinguish "cache unavailable" from "not found".
func (e *Engine) ReceiveMessage(ctx context.Context, id string) (*models.Message, error) {
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.WithLabelValues("receive").Observe(time.Since(start).Seconds())
	}()

	cached, err := e.cache.Get(ctx, cacheKey(id))
	switch {
	case err == nil:
		msg, derr := e.decodeEnvelope(ctx, id, []byte(cached))
		if derr != nil {
			e.logger.Error().Err(derr).Str("message_id", id).Msg("failed to decode cached envelope")
			return nil, derr
		}
		metrics.MessagesReceived.WithLabelValues("cache").Inc()
		return msg, nil
	case errors.Is(err, store.ErrCacheMiss):
		// fall through to the durable store
	default:
		return nil, fmt.Errorf("%w: %v", store.ErrCacheUnavailable, err)
	}

	row, err := e.store.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if row == nil {
		return nil, nil
	}

	decoded, err := e.decodeEnvelope(ctx, id, []byte(row.Envelope))
	if err != nil {
		e.logger.Error().Err(err).Str("message_id", id).Msg("failed to decode stored envelope")
		return nil, err
	}

	// Routing columns come from the row itself: they are stored in clear for
	// indexing, while encryption protects only payload and metadata.
	msg := &models.Message{
		ID:        row.ID,
		Kind:      models.MessageKind(row.Kind),
		Sender:    row.Sender,
		Recipient: row.Recipient,
		CreatedAt: row.CreatedAt,
		Payload:   decoded.Payload,
		Metadata:  decoded.Metadata,
	}

	if err := validateMessage(msg); err != nil {
		e.monitor.RecordEvent(ctx, models.EventValidation, models.SeverityHigh,
			"reconstructed message failed validation",
			map[string]any{"message_id": id, "reason": err.Error()})
		e.logger.Error().Err(err).Str("message_id", id).Msg("invalid message structure")
		return nil, err
	}

	// Write-through fill with the original, still-encoded envelope.
	if err := e.cache.Set(ctx, cacheKey(id), row.Envelope, e.cacheTTL); err != nil {
		e.logger.Warn().Err(err).Str("message_id", id).Msg("cache fill failed")
	}

	metrics.MessagesReceived.WithLabelValues("store").Inc()
	return msg, nil
}

// envelopeProbe detects which layer a JSON document represents without
// committing to a full decode.
type envelopeProbe struct {
	Compressed *bool   `json:"compressed"`
	Data       *string `json:"data"`
	Ciphertext *string `json:"ciphertext"`
	AuthTag    *string `json:"auth_tag"`
}

// decodeEnvelope peels the envelope layers in decompress-then-decrypt order
// and parses the inner message. Each layer failure is recorded against the
// matching security counter before being returned.
func (e *Engine) decodeEnvelope(ctx context.Context, id string, raw []byte) (*models.Message, error) {
	payload := raw

	var probe envelopeProbe
	if err := json.Unmarshal(payload, &probe); err == nil && probe.Compressed != nil && probe.Data != nil {
		var blob models.CompressedBlob
		if err := json.Unmarshal(payload, &blob); err != nil {
			return nil, fmt.Errorf("%w: %v", compress.ErrCompression, err)
		}
		out, err := compress.Decompress(&blob)
		if err != nil {
			e.monitor.RecordEvent(ctx, models.EventCompression, models.SeverityMedium,
				"envelope decompression failed", map[string]any{"message_id": id})
			return nil, err
		}
		payload = out
	}

	probe = envelopeProbe{}
	if err := json.Unmarshal(payload, &probe); err == nil && probe.Ciphertext != nil && probe.AuthTag != nil {
		var blob models.EncryptedBlob
		if err := json.Unmarshal(payload, &blob); err != nil {
			return nil, fmt.Errorf("%w: %v", crypto.ErrDecryption, err)
		}
		if e.cipher == nil {
			err := fmt.Errorf("%w: no cipher configured for encrypted envelope", crypto.ErrDecryption)
			e.monitor.RecordEvent(ctx, models.EventDecryption, models.SeverityHigh,
				"encrypted envelope received without a configured cipher", map[string]any{"message_id": id})
			return nil, err
		}
		out, err := e.cipher.Decrypt(&blob)
		if err != nil {
			e.monitor.RecordEvent(ctx, models.EventDecryption, models.SeverityHigh,
				"envelope decryption failed", map[string]any{"message_id": id})
			return nil, err
		}
		payload = out
	}

	var msg models.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		e.monitor.RecordEvent(ctx, models.EventValidation, models.SeverityHigh,
			"envelope contents are not a message", map[string]any{"message_id": id})
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessageStructure, err)
	}
	return &msg, nil
}

// validateMessage checks the reconstructed message shape.
func validateMessage(msg *models.Message) error {
	switch {
	case msg.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidMessageStructure)
	case !msg.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessageStructure, msg.Kind)
	case msg.Sender == "":
		return fmt.Errorf("%w: missing sender", ErrInvalidMessageStructure)
	case msg.Recipient == "":
		return fmt.Errorf("%w: missing recipient", ErrInvalidMessageStructure)
	case msg.CreatedAt <= 0:
		return fmt.Errorf("%w: missing created_at", ErrInvalidMessageStructure)
	case msg.Payload == nil:
		return fmt.Errorf("%w: payload must be a non-null object", ErrInvalidMessageStructure)
	}
	return nil
}

// ListPeers returns the registry's current peer snapshot.
func (e *Engine) ListPeers() []models.Peer {
	return e.registry.Peers()
}

// GetPeerStatus looks up one peer.
func (e *Engine) GetPeerStatus(agentID string) (models.Peer, bool) {
	return e.registry.PeerStatus(agentID)
}

// GetPeerLoad looks up one peer's load counter.
func (e *Engine) GetPeerLoad(agentID string) (models.PeerLoad, bool) {
	load, ok := e.registry.Loads()[agentID]
	return load, ok
}

// SecurityMetrics returns the durable failure counters for this agent id.
func (e *Engine) SecurityMetrics(ctx context.Context) (*models.SecurityMetrics, error) {
	return e.monitor.Metrics(ctx)
}

// SecurityEvents returns recorded security events, newest first.
func (e *Engine) SecurityEvents(ctx context.Context, f models.EventFilter) ([]models.SecurityEvent, error) {
	return e.monitor.Events(ctx, f)
}
