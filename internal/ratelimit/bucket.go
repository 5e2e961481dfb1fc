// Package ratelimit implements token-bucket admission control for outbound
// messages. One bucket serves one agent identity within one process; there
// is no persistence and no blocking — callers decide their own retry policy.
package ratelimit

import (
	"sync"
	"time"
)

// Config holds token bucket parameters.
type Config struct {
	TokensPerInterval int
	Interval          time.Duration
	MaxTokens         int
}

// Bucket is a token bucket. It starts full.
type Bucket struct {
	mu         sync.Mutex
	cfg        Config
	tokens     int
	lastRefill time.Time
	now        func() time.Time
}

// New creates a bucket with MaxTokens available immediately.
func New(cfg Config) *Bucket {
	b := &Bucket{
		cfg:    cfg,
		tokens: cfg.MaxTokens,
		now:    time.Now,
	}
	b.lastRefill = b.now()
	return b
}

// refill mints floor(elapsed/interval * tokensPerInterval) tokens. The refill
// clock only advances when at least one whole token is minted, so
// sub-interval elapsed time is never lost between calls.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	toAdd := int(elapsed.Nanoseconds() * int64(b.cfg.TokensPerInterval) / b.cfg.Interval.Nanoseconds())
	if toAdd <= 0 {
		return
	}
	b.tokens += toAdd
	if b.tokens > b.cfg.MaxTokens {
		b.tokens = b.cfg.MaxTokens
	}
	b.lastRefill = now
}

// Acquire takes one token if available. It never blocks.
func (b *Bucket) Acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.now())
	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// TimeUntilNextToken reports how long a caller should wait before a token
// could be available. Zero when tokens are already available.
func (b *Bucket) TimeUntilNextToken() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refill(now)
	if b.tokens > 0 {
		return 0
	}
	elapsed := now.Sub(b.lastRefill)
	return b.cfg.Interval - elapsed%b.cfg.Interval
}
