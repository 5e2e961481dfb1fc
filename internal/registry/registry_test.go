package registry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/store"
)

func newTestRegistry(t *testing.T, cfg Config) (*Registry, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	r := New(cfg, st, zerolog.Nop())
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return r, st
}

func TestInitializeSynthesizesDefaultLoads(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	now := time.Now().UnixMilli()
	if err := st.UpsertPeer(ctx, "p1", now); err != nil {
		t.Fatal(err)
	}

	r := New(Config{AgentID: "self", Weights: map[string]float64{"p1": 2.5}}, st, zerolog.Nop())
	if err := r.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	loads := r.Loads()
	load, ok := loads["p1"]
	if !ok {
		t.Fatal("expected synthesized load for p1")
	}
	if load.MessageCount != 0 {
		t.Fatalf("synthesized load must start at zero, got %d", load.MessageCount)
	}
	if load.Weight != 2.5 {
		t.Fatalf("expected configured weight 2.5, got %f", load.Weight)
	}
}

func TestRefreshMarksStalePeers(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	now := time.Now().UnixMilli()
	if err := st.UpsertPeer(ctx, "fresh", now); err != nil {
		t.Fatal(err)
	}
	staleSeen := now - (10 * time.Minute).Milliseconds()
	if err := st.UpsertPeer(ctx, "old", staleSeen); err != nil {
		t.Fatal(err)
	}

	r := New(Config{AgentID: "self"}, st, zerolog.Nop())
	if err := r.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.refresh(ctx); err != nil {
		t.Fatal(err)
	}

	fresh, ok := r.PeerStatus("fresh")
	if !ok || !fresh.Active() {
		t.Fatalf("peer seen now must be active, got %+v", fresh)
	}

	old, ok := r.PeerStatus("old")
	if !ok {
		t.Fatal("stale peers must remain known, never deleted")
	}
	if old.Active() {
		t.Fatal("peer outside the freshness window must be stale")
	}
	if old.StaleSince != staleSeen {
		t.Fatalf("expected StaleSince %d, got %d", staleSeen, old.StaleSince)
	}
}

func TestRefreshUpsertsSelf(t *testing.T) {
	ctx := context.Background()
	r, st := newTestRegistry(t, Config{AgentID: "self"})

	if err := r.refresh(ctx); err != nil {
		t.Fatal(err)
	}

	self, ok := r.PeerStatus("self")
	if !ok || !self.Active() {
		t.Fatalf("self must be upserted as active, got %+v", self)
	}

	rows, err := st.ListPeers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].AgentID != "self" {
		t.Fatalf("self heartbeat must be durable, got %+v", rows)
	}
}

func TestUpdateLoadIncrements(t *testing.T) {
	ctx := context.Background()
	r, st := newTestRegistry(t, Config{AgentID: "self"})

	for i := 0; i < 3; i++ {
		if err := r.UpdateLoad(ctx, "p1"); err != nil {
			t.Fatal(err)
		}
	}

	load, ok := r.Loads()["p1"]
	if !ok {
		t.Fatal("expected in-memory load for p1")
	}
	if load.MessageCount != 3 {
		t.Fatalf("expected count 3, got %d", load.MessageCount)
	}

	durable, err := st.GetPeerLoad(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if durable == nil || durable.MessageCount != 3 {
		t.Fatalf("durable count must match, got %+v", durable)
	}

	// The upsert also created the owning peer row.
	rows, err := st.ListPeers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].AgentID != "p1" {
		t.Fatalf("expected peer row for p1, got %+v", rows)
	}
}

func TestStopLivenessClearsPeersKeepsLoads(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, Config{AgentID: "self", LivenessInterval: time.Hour})

	r.StartLiveness(ctx)
	// The loop runs once immediately; wait for self to appear.
	deadline := time.After(2 * time.Second)
	for {
		if _, ok := r.PeerStatus("self"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("liveness loop never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := r.UpdateLoad(ctx, "p1"); err != nil {
		t.Fatal(err)
	}

	r.StopLiveness()

	if len(r.Peers()) != 0 {
		t.Fatal("StopLiveness must clear the peer map")
	}
	if _, ok := r.Loads()["p1"]; !ok {
		t.Fatal("StopLiveness must retain the load map")
	}
}

func TestLivenessCycleErrorDoesNotStopLoop(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), failuresLeft: 1}

	r := New(Config{AgentID: "self", LivenessInterval: 20 * time.Millisecond}, st, zerolog.Nop())
	if err := r.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	r.StartLiveness(ctx)
	defer r.StopLiveness()

	// First cycle fails; a later one must still succeed.
	deadline := time.After(2 * time.Second)
	for {
		if p, ok := r.PeerStatus("self"); ok && p.Active() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("loop did not recover after a failed cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// flakyStore fails ListPeers a set number of times, then behaves normally.
type flakyStore struct {
	*store.MemoryStore
	failuresLeft int
}

func (s *flakyStore) ListPeers(ctx context.Context) ([]store.PeerRow, error) {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, context.DeadlineExceeded
	}
	return s.MemoryStore.ListPeers(ctx)
}
