package app

import (
	"context"
	"time"

	"dugout-trivia/internal/domain"
)

// StateStore is the shared volatile store holding one state blob per active
// match. It is the single source of truth while a match runs; Update is a
// conditional write that fails with domain.ErrStateConflict when the stored
// version no longer matches expectedVersion.
type StateStore interface {
	Create(ctx context.Context, state *domain.MatchState) error
	Get(ctx context.Context, matchID string) (*domain.MatchState, int64, error)
	Update(ctx context.Context, state *domain.MatchState, expectedVersion int64) error
	Delete(ctx context.Context, matchID string) error
}

// Ledger is the durable store for matches, players, and answers. It carries
// the exactly-once invariant: InsertAnswer must reject a second answer for
// the same (match, player, inning, question) with ErrDuplicateSubmission,
// and must atomically decide the grand-slam first-correct claim when asked.
type Ledger interface {
	CreateMatch(ctx context.Context, m *domain.Match) error
	GetMatch(ctx context.Context, matchID string) (domain.Match, error)
	SetMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus, at time.Time) error

	FindPlayerByNickname(ctx context.Context, matchID, nickname string) (domain.Player, error)
	CreatePlayer(ctx context.Context, p *domain.Player) error
	RejoinPlayer(ctx context.Context, playerID, sessionID string) error
	DetachSession(ctx context.Context, playerID string) error
	MarkPlayerLeft(ctx context.Context, playerID string) error
	ListActivePlayers(ctx context.Context, matchID string) ([]domain.Player, error)

	InsertAnswer(ctx context.Context, ans *domain.Answer, claimGrandSlam bool) error
	ListAnswers(ctx context.Context, matchID string) ([]domain.Answer, error)
	ListQuestionAnswers(ctx context.Context, matchID string, inning, questionIdx int) ([]domain.Answer, error)
	AmendClosestWinners(ctx context.Context, matchID string, inning, questionIdx int, winners []string) error
}

// AnswerCache keeps the answers submitted for the question currently shown,
// so reveal does not need a full ledger scan. Entries are transient and
// expire with the match state.
type AnswerCache interface {
	Append(ctx context.Context, ans domain.Answer) error
	List(ctx context.Context, matchID string, inning, questionIdx int) ([]domain.Answer, error)
}

// PackProvider loads pack content (from cache/backing store).
type PackProvider interface {
	GetPack(ctx context.Context, packID string) (domain.Pack, error)
}

// Broadcaster abstracts the real-time transport: room-wide broadcast plus a
// single-session send for individual acks.
type Broadcaster interface {
	Broadcast(matchID, event string, payload any)
	Send(sessionID, event string, payload any)
}

// Broadcast event names.
const (
	EventState          = "state"
	EventQuestionShown  = "question_shown"
	EventRevealResult   = "reveal_result"
	EventStretchStart   = "stretch_start"
	EventScoreUpdate    = "score_update"
	EventRosterChanged  = "roster_changed"
	EventJoinAck        = "join_ack"
	EventSubmitAck      = "submit_ack"
	EventMatchAbandoned = "match_abandoned"
	EventError          = "error"
)
