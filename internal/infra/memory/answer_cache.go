package memory

import (
	"context"
	"fmt"
	"sync"

	"dugout-trivia/internal/domain"
)

// AnswerCache is the in-memory counterpart of the Redis per-question answer
// list used at reveal time.
type AnswerCache struct {
	mu      sync.Mutex
	entries map[string][]domain.Answer
}

func NewAnswerCache() *AnswerCache {
	return &AnswerCache{entries: make(map[string][]domain.Answer)}
}

func (c *AnswerCache) Append(ctx context.Context, ans domain.Answer) error {
	key := cacheKey(ans.MatchID, ans.Inning, ans.QuestionIdx)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append(c.entries[key], ans)
	return nil
}

func (c *AnswerCache) List(ctx context.Context, matchID string, inning, questionIdx int) ([]domain.Answer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	src := c.entries[cacheKey(matchID, inning, questionIdx)]
	out := make([]domain.Answer, len(src))
	copy(out, src)
	return out, nil
}

func cacheKey(matchID string, inning, questionIdx int) string {
	return fmt.Sprintf("%s:%d:%d", matchID, inning, questionIdx)
}
