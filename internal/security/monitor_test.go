package security

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/store"
)

func TestRecordEventAppendsAndCounts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewMonitor("agent-1", st, zerolog.Nop())

	m.RecordEvent(ctx, models.EventRateLimit, models.SeverityMedium, "rate limit exceeded", map[string]any{"retry_after_ms": int64(250)})

	events, err := m.Events(ctx, models.EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != models.EventRateLimit || ev.Severity != models.SeverityMedium {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.ID == "" {
		t.Fatal("event must carry an id")
	}

	got, err := m.Metrics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.RateLimitViolations != 1 {
		t.Fatalf("expected rate limit counter 1, got %d", got.RateLimitViolations)
	}
	if got.EncryptionFailures != 0 || got.InvalidMessages != 0 {
		t.Fatalf("unrelated counters must stay zero, got %+v", got)
	}
}

func TestMetricsMissingRowYieldsZeroDefaults(t *testing.T) {
	m := NewMonitor("agent-1", store.NewMemoryStore(), zerolog.Nop())

	got, err := m.Metrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.AgentID != "agent-1" {
		t.Fatalf("expected agent id on defaults, got %q", got.AgentID)
	}
	if got.RateLimitViolations != 0 || got.DecryptionFailures != 0 {
		t.Fatalf("expected zeroed defaults, got %+v", got)
	}
}

func TestMetricsReadsDurableRow(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewMonitor("agent-1", st, zerolog.Nop())

	// Another engine instance sharing the agent id bumps the counter
	// behind this monitor's back; Metrics must see it.
	if err := st.IncrementSecurityCounter(ctx, "agent-1", models.EventDecryption, 42); err != nil {
		t.Fatal(err)
	}

	got, err := m.Metrics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.DecryptionFailures != 1 {
		t.Fatalf("metrics must re-read the store, got %+v", got)
	}
}

func TestRecordEventSwallowsStoreFailures(t *testing.T) {
	st := &failingStore{MemoryStore: store.NewMemoryStore()}
	m := NewMonitor("agent-1", st, zerolog.Nop())

	// Must not panic or surface the failure.
	m.RecordEvent(context.Background(), models.EventEncryption, models.SeverityHigh, "encrypt failed", nil)
}

func TestEventsFilter(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewMonitor("agent-1", st, zerolog.Nop())

	m.RecordEvent(ctx, models.EventEncryption, models.SeverityHigh, "e1", nil)
	m.RecordEvent(ctx, models.EventCompression, models.SeverityMedium, "e2", nil)
	m.RecordEvent(ctx, models.EventEncryption, models.SeverityHigh, "e3", nil)

	events, err := m.Events(ctx, models.EventFilter{Kind: models.EventEncryption})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 encryption events, got %d", len(events))
	}

	events, err = m.Events(ctx, models.EventFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("limit must cap results, got %d", len(events))
	}
}

// failingStore rejects every security write.
type failingStore struct {
	*store.MemoryStore
}

func (s *failingStore) InsertSecurityEvent(ctx context.Context, ev *models.SecurityEvent) error {
	return errors.New("store down")
}

func (s *failingStore) IncrementSecurityCounter(ctx context.Context, agentID string, kind models.EventKind, now int64) error {
	return errors.New("store down")
}
