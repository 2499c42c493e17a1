package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dugout-trivia/internal/domain"
)

type countingLoader struct {
	loads int32
	packs map[string]domain.Pack
}

func (l *countingLoader) LoadPack(_ context.Context, packID string) (domain.Pack, error) {
	atomic.AddInt32(&l.loads, 1)
	if p, ok := l.packs[packID]; ok {
		return p, nil
	}
	return domain.Pack{}, domain.ErrPackNotFound
}

func TestPackRepositoryCaches(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{packs: map[string]domain.Pack{
		"p1": {ID: "p1", Innings: []domain.Inning{{}}},
	}}
	repo := NewPackRepository(loader, time.Hour)

	for i := 0; i < 5; i++ {
		pack, err := repo.GetPack(ctx, "p1")
		if err != nil {
			t.Fatalf("GetPack: %v", err)
		}
		if pack.ID != "p1" {
			t.Fatalf("pack = %+v", pack)
		}
	}
	if n := atomic.LoadInt32(&loader.loads); n != 1 {
		t.Fatalf("loader hit %d times, want 1", n)
	}
}

func TestPackRepositorySingleflight(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{packs: map[string]domain.Pack{
		"p1": {ID: "p1"},
	}}
	repo := NewPackRepository(loader, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetPack(ctx, "p1"); err != nil {
				t.Errorf("GetPack: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt32(&loader.loads); n != 1 {
		t.Fatalf("loader hit %d times under concurrency, want 1", n)
	}
}

func TestPackRepositoryMiss(t *testing.T) {
	repo := NewPackRepository(&countingLoader{packs: map[string]domain.Pack{}}, time.Hour)
	if _, err := repo.GetPack(context.Background(), "missing"); !errors.Is(err, domain.ErrPackNotFound) {
		t.Fatalf("err = %v, want ErrPackNotFound", err)
	}
}

func TestAnswerCacheRoundtrip(t *testing.T) {
	ctx := context.Background()
	cache := NewAnswerCache()

	for _, a := range []domain.Answer{
		{MatchID: "m1", PlayerID: "p1", Inning: 0, QuestionIdx: 0, Choice: "yes"},
		{MatchID: "m1", PlayerID: "p2", Inning: 0, QuestionIdx: 0, Choice: "no"},
		{MatchID: "m1", PlayerID: "p1", Inning: 0, QuestionIdx: 1, Choice: "54"},
	} {
		if err := cache.Append(ctx, a); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := cache.List(ctx, "m1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].PlayerID != "p1" || got[1].PlayerID != "p2" {
		t.Fatalf("answers = %+v", got)
	}
	empty, _ := cache.List(ctx, "m1", 3, 0)
	if len(empty) != 0 {
		t.Fatalf("unexpected answers: %+v", empty)
	}
}
