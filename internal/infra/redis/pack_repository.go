package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"dugout-trivia/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// PackLoader fetches pack content from a backing store (e.g., Postgres).
type PackLoader interface {
	LoadPack(ctx context.Context, packID string) (domain.Pack, error)
}

// PackRepository caches whole packs in Redis and falls back to a loader on
// cache miss. Packs are stored as: SET pack:{packID} {pack JSON}
type PackRepository struct {
	client *redis.Client
	loader PackLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewPackRepository(client *redis.Client, loader PackLoader, ttl time.Duration) *PackRepository {
	return &PackRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *PackRepository) GetPack(ctx context.Context, packID string) (domain.Pack, error) {
	key := r.key(packID)

	if pack, ok, err := r.fromCache(ctx, key); err == nil && ok {
		return pack, nil
	}

	result, err, _ := r.sf.Do(packID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pack, ok, err := r.fromCache(ctx, key); err == nil && ok {
			return pack, nil
		}

		pack, err := r.loader.LoadPack(ctx, packID)
		if err != nil {
			return domain.Pack{}, err
		}

		blob, err := json.Marshal(pack)
		if err != nil {
			return domain.Pack{}, fmt.Errorf("marshal pack: %w", err)
		}
		_ = r.client.Set(ctx, key, blob, r.ttlWithJitter()).Err()
		return pack, nil
	})
	if err != nil {
		return domain.Pack{}, err
	}
	return result.(domain.Pack), nil
}

func (r *PackRepository) fromCache(ctx context.Context, key string) (domain.Pack, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Pack{}, false, nil
		}
		return domain.Pack{}, false, storeErr("get pack", err)
	}
	var pack domain.Pack
	if err := json.Unmarshal(raw, &pack); err != nil {
		return domain.Pack{}, false, fmt.Errorf("unmarshal pack: %w", err)
	}
	return pack, true, nil
}

func (r *PackRepository) key(packID string) string {
	return "pack:" + packID
}

func (r *PackRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
