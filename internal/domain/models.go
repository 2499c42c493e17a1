package domain

import "time"

// MatchStatus is the durable lifecycle status of a match.
type MatchStatus string

const (
	StatusLobby      MatchStatus = "LOBBY"
	StatusInProgress MatchStatus = "IN_PROGRESS"
	StatusCompleted  MatchStatus = "COMPLETED"
	StatusAbandoned  MatchStatus = "ABANDONED"
)

// Phase is the live phase of an active match.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseQuestion Phase = "question"
	PhaseReveal   Phase = "reveal"
	PhaseStretch  Phase = "stretch"
	PhasePostgame Phase = "postgame"
)

// Settings are the host-chosen match rules.
type Settings struct {
	TimerSec   int  `json:"timerSec"`
	GrandSlam  bool `json:"grandSlam"`
	SpeedBonus bool `json:"speedBonus"`
}

// Match is the durable match record. Immutable once completed except for
// the terminal timestamps.
type Match struct {
	ID          string      `json:"id"`
	PackID      string      `json:"packId"`
	HostKey     string      `json:"-"`
	Settings    Settings    `json:"settings"`
	Status      MatchStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Player is the durable roster record. SessionID is present only while the
// player holds a live transport session; Left marks an explicit leave.
type Player struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"matchId"`
	Nickname  string    `json:"nickname"`
	Avatar    string    `json:"avatar,omitempty"`
	City      string    `json:"city,omitempty"`
	SessionID string    `json:"-"`
	Left      bool      `json:"-"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Answer is one player's submission for one question. At most one exists per
// (match, player, inning, question); immutable once scored except for the
// closest-question amendment at reveal.
type Answer struct {
	MatchID           string    `json:"matchId"`
	PlayerID          string    `json:"playerId"`
	Inning            int       `json:"inning"`
	QuestionIdx       int       `json:"questionIdx"`
	Choice            string    `json:"choice"`
	Correct           bool      `json:"correct"`
	Bonus             bool      `json:"bonus"`
	AnswerMs          int64     `json:"answerMs"`
	ReportedLatencyMs int64     `json:"reportedLatencyMs"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Runs returns the runs this answer is worth under the scoring rules.
func (a Answer) Runs() int {
	if !a.Correct {
		return 0
	}
	if a.Bonus {
		return 4
	}
	return 1
}

// RosterEntry is the client-facing view of one joined player.
type RosterEntry struct {
	PlayerID  string `json:"playerId"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar,omitempty"`
	City      string `json:"city,omitempty"`
	Connected bool   `json:"connected"`
}

// LeaderboardEntry is an aggregated, ranked view of one player's answers.
type LeaderboardEntry struct {
	PlayerID    string `json:"playerId"`
	Nickname    string `json:"nickname"`
	Runs        int    `json:"runs"`
	Correct     int    `json:"correct"`
	Total       int    `json:"total"`
	TotalTimeMs int64  `json:"totalTimeMs"`
}

// Leaderboard captures the ordered standings for a match.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// MatchState is the volatile live state of one match, held in the shared
// state store and fully replaced on every write. Every broadcast carries a
// complete snapshot so clients can reconcile after reordering or loss.
type MatchState struct {
	MatchID         string          `json:"matchId"`
	PackID          string          `json:"packId"`
	Settings        Settings        `json:"settings"`
	Phase           Phase           `json:"phase"`
	Inning          int             `json:"inning"`
	QuestionIdx     int             `json:"questionIdx"`
	CurrentQuestion *ClientQuestion `json:"currentQuestion,omitempty"`
	QuestionShownAt *time.Time      `json:"questionShownAt,omitempty"`
	AnswerDeadline  *time.Time      `json:"answerDeadline,omitempty"`
	StretchDeadline *time.Time      `json:"stretchDeadline,omitempty"`
	StretchDone     bool            `json:"stretchDone"`
	Paused          bool            `json:"paused"`
	LineScore       []*int          `json:"lineScore"`
	Leaderboard     Leaderboard     `json:"leaderboard"`
	Roster          []RosterEntry   `json:"roster"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// PlayerResult is one player's outcome for a revealed question.
type PlayerResult struct {
	PlayerID    string `json:"playerId"`
	Nickname    string `json:"nickname"`
	Choice      string `json:"choice"`
	Correct     bool   `json:"correct"`
	RunsAwarded int    `json:"runsAwarded"`
	AnswerMs    int64  `json:"answerMs"`
}

// RevealResult is the payload broadcast when a question is revealed.
type RevealResult struct {
	QuestionID    string         `json:"questionId"`
	Inning        int            `json:"inning"`
	QuestionIdx   int            `json:"questionIdx"`
	CorrectAnswer string         `json:"correctAnswer"`
	PlayerResults []PlayerResult `json:"playerResults"`
	InningRuns    int            `json:"inningRuns"`
}
