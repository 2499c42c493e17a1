package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dugout-trivia/internal/domain"
	"github.com/redis/go-redis/v9"
)

// StateStore keeps one match-state blob per match in Redis, the single
// source of truth while a match is active. A version counter lives next to
// the blob and every Update runs a compare-and-set script against it, so
// concurrent orchestrator instances serialize through Redis instead of any
// in-process lock. Blobs expire after the retention window so abandoned
// matches clean themselves up.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// casScript commits the new blob only while the stored version still matches
// the one the caller read. Returns 1 on success, 0 on a lost race, -1 when
// the state expired.
var casScript = redis.NewScript(`
local ver = redis.call('GET', KEYS[2])
if not ver then return -1 end
if ver ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
redis.call('SET', KEYS[2], tostring(tonumber(ver) + 1), 'PX', ARGV[3])
return 1
`)

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

func (s *StateStore) Create(ctx context.Context, state *domain.MatchState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.versionKey(state.MatchID), "1", s.ttl).Result()
	if err != nil {
		return storeErr("create state", err)
	}
	if !ok {
		return fmt.Errorf("%w: state already exists for match %s", domain.ErrStateConflict, state.MatchID)
	}
	if err := s.client.Set(ctx, s.stateKey(state.MatchID), blob, s.ttl).Err(); err != nil {
		return storeErr("create state", err)
	}
	return nil
}

func (s *StateStore) Get(ctx context.Context, matchID string) (*domain.MatchState, int64, error) {
	pipe := s.client.Pipeline()
	blobCmd := pipe.Get(ctx, s.stateKey(matchID))
	verCmd := pipe.Get(ctx, s.versionKey(matchID))
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, domain.ErrMatchNotFound
		}
		return nil, 0, storeErr("get state", err)
	}

	var state domain.MatchState
	if err := json.Unmarshal([]byte(blobCmd.Val()), &state); err != nil {
		return nil, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	version, err := verCmd.Int64()
	if err != nil {
		return nil, 0, storeErr("get state version", err)
	}
	return &state, version, nil
}

func (s *StateStore) Update(ctx context.Context, state *domain.MatchState, expectedVersion int64) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	res, err := casScript.Run(ctx, s.client,
		[]string{s.stateKey(state.MatchID), s.versionKey(state.MatchID)},
		expectedVersion, blob, s.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return storeErr("cas state", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("%w: state moved past version %d", domain.ErrStateConflict, expectedVersion)
	default:
		return domain.ErrMatchNotFound
	}
}

func (s *StateStore) Delete(ctx context.Context, matchID string) error {
	if err := s.client.Del(ctx, s.stateKey(matchID), s.versionKey(matchID)).Err(); err != nil {
		return storeErr("delete state", err)
	}
	return nil
}

func (s *StateStore) stateKey(matchID string) string {
	return "match:state:" + matchID
}

func (s *StateStore) versionKey(matchID string) string {
	return "match:state:" + matchID + ":ver"
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, op, err)
}
