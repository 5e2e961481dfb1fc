package ratelimit

import (
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestBucket(cfg Config) (*Bucket, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := New(cfg)
	b.now = clock.now
	b.lastRefill = clock.t
	return b, clock
}

func TestExhaustionAndRefill(t *testing.T) {
	b, clock := newTestBucket(Config{TokensPerInterval: 2, Interval: time.Second, MaxTokens: 2})

	if !b.Acquire() {
		t.Fatal("first acquire should succeed")
	}
	if !b.Acquire() {
		t.Fatal("second acquire should succeed")
	}
	if b.Acquire() {
		t.Fatal("third acquire should fail, bucket exhausted")
	}

	clock.advance(time.Second)
	if !b.Acquire() {
		t.Fatal("acquire after a full interval should succeed")
	}
}

func TestSubIntervalElapsedNotLost(t *testing.T) {
	b, clock := newTestBucket(Config{TokensPerInterval: 1, Interval: time.Second, MaxTokens: 1})

	if !b.Acquire() {
		t.Fatal("initial token should be available")
	}

	// Two half-interval waits should together mint one token, because the
	// refill clock does not advance until a whole token is minted.
	clock.advance(500 * time.Millisecond)
	if b.Acquire() {
		t.Fatal("no token should be minted after half an interval")
	}
	clock.advance(500 * time.Millisecond)
	if !b.Acquire() {
		t.Fatal("token should be minted after two half intervals")
	}
}

func TestRefillCap(t *testing.T) {
	b, clock := newTestBucket(Config{TokensPerInterval: 10, Interval: time.Second, MaxTokens: 3})

	for i := 0; i < 3; i++ {
		if !b.Acquire() {
			t.Fatalf("acquire %d should succeed", i)
		}
	}
	clock.advance(time.Minute)

	for i := 0; i < 3; i++ {
		if !b.Acquire() {
			t.Fatalf("acquire %d after refill should succeed", i)
		}
	}
	if b.Acquire() {
		t.Fatal("bucket must not exceed MaxTokens after a long idle period")
	}
}

func TestTimeUntilNextToken(t *testing.T) {
	b, clock := newTestBucket(Config{TokensPerInterval: 1, Interval: time.Second, MaxTokens: 1})

	if got := b.TimeUntilNextToken(); got != 0 {
		t.Fatalf("expected 0 wait with tokens available, got %s", got)
	}

	if !b.Acquire() {
		t.Fatal("acquire should succeed")
	}
	if got := b.TimeUntilNextToken(); got != time.Second {
		t.Fatalf("expected 1s wait on empty bucket, got %s", got)
	}

	clock.advance(300 * time.Millisecond)
	if got := b.TimeUntilNextToken(); got != 700*time.Millisecond {
		t.Fatalf("expected 700ms wait, got %s", got)
	}
}
