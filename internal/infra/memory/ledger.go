package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dugout-trivia/internal/domain"
)

// Ledger is an in-memory implementation of app.Ledger with the same
// invariants the Postgres ledger enforces through its unique indexes: one
// answer per (match, player, inning, question), one active player per
// nickname, and an atomic grand-slam first-correct claim.
type Ledger struct {
	mu      sync.Mutex
	matches map[string]*domain.Match
	players map[string]*domain.Player
	answers map[string][]*domain.Answer // matchID -> insertion order
}

func NewLedger() *Ledger {
	return &Ledger{
		matches: make(map[string]*domain.Match),
		players: make(map[string]*domain.Player),
		answers: make(map[string][]*domain.Answer),
	}
}

func (l *Ledger) CreateMatch(ctx context.Context, m *domain.Match) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.matches[m.ID]; ok {
		return fmt.Errorf("%w: match %s already exists", domain.ErrStateConflict, m.ID)
	}
	clone := *m
	l.matches[m.ID] = &clone
	return nil
}

func (l *Ledger) GetMatch(ctx context.Context, matchID string) (domain.Match, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.matches[matchID]
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	return *m, nil
}

func (l *Ledger) SetMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.matches[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	m.Status = status
	switch status {
	case domain.StatusInProgress:
		m.StartedAt = &at
	case domain.StatusCompleted, domain.StatusAbandoned:
		m.CompletedAt = &at
	}
	return nil
}

func (l *Ledger) FindPlayerByNickname(ctx context.Context, matchID, nickname string) (domain.Player, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.players {
		if p.MatchID == matchID && p.Nickname == nickname {
			return *p, nil
		}
	}
	return domain.Player{}, domain.ErrPlayerNotFound
}

func (l *Ledger) CreatePlayer(ctx context.Context, player *domain.Player) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.players {
		if p.MatchID == player.MatchID && p.Nickname == player.Nickname && !p.Left {
			return domain.ErrNicknameTaken
		}
	}
	clone := *player
	l.players[player.ID] = &clone
	return nil
}

func (l *Ledger) RejoinPlayer(ctx context.Context, playerID, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.SessionID = sessionID
	p.Left = false
	return nil
}

func (l *Ledger) DetachSession(ctx context.Context, playerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.SessionID = ""
	return nil
}

func (l *Ledger) MarkPlayerLeft(ctx context.Context, playerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.Left = true
	p.SessionID = ""
	return nil
}

func (l *Ledger) ListActivePlayers(ctx context.Context, matchID string) ([]domain.Player, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Player
	for _, p := range l.players {
		if p.MatchID == matchID && !p.Left {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// InsertAnswer appends an answer, rejecting duplicates for the same
// question. The first-correct claim is decided under the same lock as the
// append, mirroring the row lock the Postgres ledger takes.
func (l *Ledger) InsertAnswer(ctx context.Context, ans *domain.Answer, claimGrandSlam bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	hasCorrect := false
	for _, existing := range l.answers[ans.MatchID] {
		if existing.Inning == ans.Inning && existing.QuestionIdx == ans.QuestionIdx {
			if existing.PlayerID == ans.PlayerID {
				return domain.ErrDuplicateSubmission
			}
			if existing.Correct {
				hasCorrect = true
			}
		}
	}
	if claimGrandSlam && ans.Correct && !hasCorrect {
		ans.Bonus = true
	}
	clone := *ans
	l.answers[ans.MatchID] = append(l.answers[ans.MatchID], &clone)
	return nil
}

func (l *Ledger) ListAnswers(ctx context.Context, matchID string) ([]domain.Answer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Answer, 0, len(l.answers[matchID]))
	for _, a := range l.answers[matchID] {
		out = append(out, *a)
	}
	return out, nil
}

func (l *Ledger) ListQuestionAnswers(ctx context.Context, matchID string, inning, questionIdx int) ([]domain.Answer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Answer
	for _, a := range l.answers[matchID] {
		if a.Inning == inning && a.QuestionIdx == questionIdx {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (l *Ledger) AmendClosestWinners(ctx context.Context, matchID string, inning, questionIdx int, winners []string) error {
	winnerSet := make(map[string]struct{}, len(winners))
	for _, id := range winners {
		winnerSet[id] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.answers[matchID] {
		if a.Inning != inning || a.QuestionIdx != questionIdx {
			continue
		}
		if _, ok := winnerSet[a.PlayerID]; ok {
			a.Correct = true
		}
	}
	return nil
}
