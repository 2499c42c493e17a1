package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"dugout-trivia/internal/domain"
)

func TestStateStoreConditionalWrite(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore(time.Hour)

	st := &domain.MatchState{MatchID: "m1", Phase: domain.PhaseLobby}
	if err := store.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, st); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("second create = %v, want ErrStateConflict", err)
	}

	loaded, version, err := store.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Phase != domain.PhaseLobby || version != 1 {
		t.Fatalf("loaded = %+v version = %d", loaded, version)
	}

	loaded.Phase = domain.PhaseQuestion
	if err := store.Update(ctx, loaded, version); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// A writer holding the old version loses.
	if err := store.Update(ctx, loaded, version); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("stale update = %v, want ErrStateConflict", err)
	}

	fresh, version, err := store.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if fresh.Phase != domain.PhaseQuestion || version != 2 {
		t.Fatalf("fresh = %+v version = %d", fresh, version)
	}

	if err := store.Delete(ctx, "m1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Get(ctx, "m1"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("get after delete = %v, want ErrMatchNotFound", err)
	}
}

func TestStateStoreTTL(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore(time.Minute)
	now := time.Date(2026, 4, 1, 19, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	if err := store.Create(ctx, &domain.MatchState{MatchID: "m1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now = now.Add(30 * time.Second)
	loaded, version, err := store.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	// A write refreshes the TTL.
	if err := store.Update(ctx, loaded, version); err != nil {
		t.Fatalf("Update: %v", err)
	}
	now = now.Add(45 * time.Second)
	if _, _, err := store.Get(ctx, "m1"); err != nil {
		t.Fatalf("Get after refresh: %v", err)
	}

	now = now.Add(time.Minute)
	if _, _, err := store.Get(ctx, "m1"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("get after expiry = %v, want ErrMatchNotFound", err)
	}
}

func TestStateStoreSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore(time.Hour)
	runs := 3
	if err := store.Create(ctx, &domain.MatchState{MatchID: "m1", LineScore: []*int{&runs}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, _, _ := store.Get(ctx, "m1")
	*first.LineScore[0] = 99

	second, _, _ := store.Get(ctx, "m1")
	if *second.LineScore[0] != 3 {
		t.Fatalf("stored state mutated through a returned snapshot")
	}
}
