package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dugout-trivia/internal/domain"
)

// StateStore is an in-memory implementation of app.StateStore with the same
// conditional-write semantics as the Redis store: every Update must present
// the version it read, and a mismatch loses the race.
type StateStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu     sync.Mutex
	states map[string]*storedState
}

type storedState struct {
	blob      []byte
	version   int64
	expiresAt time.Time
}

func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{
		ttl:    ttl,
		clock:  time.Now,
		states: make(map[string]*storedState),
	}
}

// SetClock is test-only for deterministic TTL expiry.
func (s *StateStore) SetClock(now func() time.Time) {
	s.clock = now
}

func (s *StateStore) Create(ctx context.Context, state *domain.MatchState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.states[state.MatchID]; ok && entry.expiresAt.After(s.clock()) {
		return fmt.Errorf("%w: state already exists for match %s", domain.ErrStateConflict, state.MatchID)
	}
	s.states[state.MatchID] = &storedState{blob: blob, version: 1, expiresAt: s.clock().Add(s.ttl)}
	return nil
}

func (s *StateStore) Get(ctx context.Context, matchID string) (*domain.MatchState, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.states[matchID]
	if !ok || !entry.expiresAt.After(s.clock()) {
		delete(s.states, matchID)
		return nil, 0, domain.ErrMatchNotFound
	}
	var state domain.MatchState
	if err := json.Unmarshal(entry.blob, &state); err != nil {
		return nil, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, entry.version, nil
}

func (s *StateStore) Update(ctx context.Context, state *domain.MatchState, expectedVersion int64) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.states[state.MatchID]
	if !ok || !entry.expiresAt.After(s.clock()) {
		delete(s.states, state.MatchID)
		return domain.ErrMatchNotFound
	}
	if entry.version != expectedVersion {
		return fmt.Errorf("%w: state version moved from %d to %d", domain.ErrStateConflict, expectedVersion, entry.version)
	}
	entry.blob = blob
	entry.version++
	entry.expiresAt = s.clock().Add(s.ttl)
	return nil
}

func (s *StateStore) Delete(ctx context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, matchID)
	return nil
}
