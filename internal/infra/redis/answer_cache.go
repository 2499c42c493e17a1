package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dugout-trivia/internal/domain"
	"github.com/redis/go-redis/v9"
)

// AnswerCache keeps the answers for the question currently shown in a Redis
// list, so the reveal can resolve closest-number winners without a full
// ledger scan. Entries are transient: each list carries its own TTL and the
// ledger remains authoritative.
// Layout: RPUSH match:{matchID}:answers:{inning}:{questionIdx} {answer JSON}
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAnswerCache(client *redis.Client, ttl time.Duration) *AnswerCache {
	return &AnswerCache{client: client, ttl: ttl}
}

func (c *AnswerCache) Append(ctx context.Context, ans domain.Answer) error {
	blob, err := json.Marshal(ans)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	key := c.key(ans.MatchID, ans.Inning, ans.QuestionIdx)
	pipe := c.client.Pipeline()
	pipe.RPush(ctx, key, blob)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("append answer", err)
	}
	return nil
}

func (c *AnswerCache) List(ctx context.Context, matchID string, inning, questionIdx int) ([]domain.Answer, error) {
	raw, err := c.client.LRange(ctx, c.key(matchID, inning, questionIdx), 0, -1).Result()
	if err != nil {
		return nil, storeErr("list answers", err)
	}
	out := make([]domain.Answer, 0, len(raw))
	for _, item := range raw {
		var ans domain.Answer
		if err := json.Unmarshal([]byte(item), &ans); err != nil {
			return nil, fmt.Errorf("unmarshal cached answer: %w", err)
		}
		out = append(out, ans)
	}
	return out, nil
}

func (c *AnswerCache) key(matchID string, inning, questionIdx int) string {
	return fmt.Sprintf("match:%s:answers:%d:%d", matchID, inning, questionIdx)
}
