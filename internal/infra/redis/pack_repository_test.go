package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"dugout-trivia/internal/domain"
	"dugout-trivia/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
)

type countingLoader struct {
	memory.PackLoader
	calls int
}

func (l *countingLoader) LoadPack(ctx context.Context, packID string) (domain.Pack, error) {
	l.calls++
	return l.PackLoader.LoadPack(ctx, packID)
}

func samplePack() domain.Pack {
	return domain.Pack{
		ID: "pack-1",
		Innings: []domain.Inning{{Questions: []domain.Question{{
			ID:      "q1",
			Type:    domain.TypeMultipleChoice,
			Prompt:  "How many players take the field on defense?",
			Choices: []string{"8", "9", "10"},
			Answer:  "9",
		}}}},
	}
}

func TestPackRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		PackLoader: memory.NewStaticPackLoader(map[string]domain.Pack{
			"pack-1": samplePack(),
		}),
	}
	repo := NewPackRepository(newClient(mr), loader, time.Minute)

	pack, err := repo.GetPack(context.Background(), "pack-1")
	if err != nil {
		t.Fatalf("get pack: %v", err)
	}
	if pack.ID != "pack-1" || len(pack.Innings) != 1 {
		t.Fatalf("pack = %+v", pack)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}

	// Second call should hit cache, loader not incremented.
	_, _ = repo.GetPack(context.Background(), "pack-1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

func TestPackRepositoryReloadsAfterExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		PackLoader: memory.NewStaticPackLoader(map[string]domain.Pack{
			"pack-1": samplePack(),
		}),
	}
	repo := NewPackRepository(newClient(mr), loader, time.Minute)

	if _, err := repo.GetPack(context.Background(), "pack-1"); err != nil {
		t.Fatalf("get pack: %v", err)
	}
	// Past the TTL plus its jitter allowance.
	mr.FastForward(2 * time.Minute)

	if _, err := repo.GetPack(context.Background(), "pack-1"); err != nil {
		t.Fatalf("get pack after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls=%d", loader.calls)
	}
}

func TestPackRepositoryMiss(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		PackLoader: memory.NewStaticPackLoader(map[string]domain.Pack{}),
	}
	repo := NewPackRepository(newClient(mr), loader, time.Minute)

	if _, err := repo.GetPack(context.Background(), "missing"); !errors.Is(err, domain.ErrPackNotFound) {
		t.Fatalf("err = %v, want ErrPackNotFound", err)
	}
}
