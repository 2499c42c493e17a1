package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dugout-trivia/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Ledger is the durable store for matches, players, and answers, backed by
// bun. The exactly-once scoring invariant and the active-nickname rule live
// in the schema (primary key on answers, partial unique index on players),
// so the losing side of any race is rejected by Postgres itself.
type Ledger struct {
	db *bun.DB
}

func NewLedger(db *bun.DB) *Ledger {
	return &Ledger{db: db}
}

type matchRow struct {
	bun.BaseModel `bun:"table:matches"`

	ID          string     `bun:"id,pk"`
	PackID      string     `bun:"pack_id,notnull"`
	HostKey     string     `bun:"host_key,notnull"`
	TimerSec    int        `bun:"timer_sec,notnull"`
	GrandSlam   bool       `bun:"grand_slam"`
	SpeedBonus  bool       `bun:"speed_bonus"`
	Status      string     `bun:"status,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	StartedAt   *time.Time `bun:"started_at"`
	CompletedAt *time.Time `bun:"completed_at"`
}

type playerRow struct {
	bun.BaseModel `bun:"table:players"`

	ID        string    `bun:"id,pk"`
	MatchID   string    `bun:"match_id,notnull"`
	Nickname  string    `bun:"nickname,notnull"`
	Avatar    string    `bun:"avatar"`
	City      string    `bun:"city"`
	SessionID string    `bun:"session_id"`
	LeftMatch bool      `bun:"left_match"`
	JoinedAt  time.Time `bun:"joined_at,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers"`

	MatchID           string    `bun:"match_id,pk"`
	PlayerID          string    `bun:"player_id,pk"`
	Inning            int       `bun:"inning,pk"`
	QuestionIdx       int       `bun:"question_idx,pk"`
	Choice            string    `bun:"choice,notnull"`
	Correct           bool      `bun:"correct"`
	Bonus             bool      `bun:"bonus"`
	AnswerMs          int64     `bun:"answer_ms,notnull"`
	ReportedLatencyMs int64     `bun:"reported_latency_ms"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
}

func (l *Ledger) CreateMatch(ctx context.Context, m *domain.Match) error {
	row := matchRow{
		ID:          m.ID,
		PackID:      m.PackID,
		HostKey:     m.HostKey,
		TimerSec:    m.Settings.TimerSec,
		GrandSlam:   m.Settings.GrandSlam,
		SpeedBonus:  m.Settings.SpeedBonus,
		Status:      string(m.Status),
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
	if _, err := l.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: match %s already exists", domain.ErrStateConflict, m.ID)
		}
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (l *Ledger) GetMatch(ctx context.Context, matchID string) (domain.Match, error) {
	var row matchRow
	err := l.db.NewSelect().Model(&row).Where("id = ?", matchID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Match{}, domain.ErrMatchNotFound
		}
		return domain.Match{}, fmt.Errorf("select match: %w", err)
	}
	return row.toDomain(), nil
}

func (l *Ledger) SetMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus, at time.Time) error {
	q := l.db.NewUpdate().
		Table("matches").
		Set("status = ?", string(status)).
		Where("id = ?", matchID)
	switch status {
	case domain.StatusInProgress:
		q = q.Set("started_at = ?", at)
	case domain.StatusCompleted, domain.StatusAbandoned:
		q = q.Set("completed_at = ?", at)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

func (l *Ledger) FindPlayerByNickname(ctx context.Context, matchID, nickname string) (domain.Player, error) {
	var row playerRow
	err := l.db.NewSelect().Model(&row).
		Where("match_id = ? AND nickname = ?", matchID, nickname).
		Order("joined_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Player{}, domain.ErrPlayerNotFound
		}
		return domain.Player{}, fmt.Errorf("select player: %w", err)
	}
	return row.toDomain(), nil
}

func (l *Ledger) CreatePlayer(ctx context.Context, p *domain.Player) error {
	row := playerRow{
		ID:        p.ID,
		MatchID:   p.MatchID,
		Nickname:  p.Nickname,
		Avatar:    p.Avatar,
		City:      p.City,
		SessionID: p.SessionID,
		LeftMatch: p.Left,
		JoinedAt:  p.JoinedAt,
	}
	if _, err := l.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrNicknameTaken
		}
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (l *Ledger) RejoinPlayer(ctx context.Context, playerID, sessionID string) error {
	return l.updatePlayer(ctx, playerID, "session_id = ?, left_match = FALSE", sessionID)
}

func (l *Ledger) DetachSession(ctx context.Context, playerID string) error {
	return l.updatePlayer(ctx, playerID, "session_id = ''")
}

func (l *Ledger) MarkPlayerLeft(ctx context.Context, playerID string) error {
	return l.updatePlayer(ctx, playerID, "session_id = '', left_match = TRUE")
}

func (l *Ledger) updatePlayer(ctx context.Context, playerID, set string, args ...interface{}) error {
	res, err := l.db.NewUpdate().
		Table("players").
		Set(set, args...).
		Where("id = ?", playerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (l *Ledger) ListActivePlayers(ctx context.Context, matchID string) ([]domain.Player, error) {
	var rows []playerRow
	err := l.db.NewSelect().Model(&rows).
		Where("match_id = ? AND NOT left_match", matchID).
		Order("joined_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select players: %w", err)
	}
	out := make([]domain.Player, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// InsertAnswer commits one answer. The primary key on
// (match_id, player_id, inning, question_idx) rejects the losing side of a
// duplicate race; the grand-slam first-correct claim runs in the same
// transaction under a lock on the match row so two concurrent correct
// answers cannot both claim it.
func (l *Ledger) InsertAnswer(ctx context.Context, ans *domain.Answer, claimGrandSlam bool) error {
	err := l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if claimGrandSlam && ans.Correct {
			var matchID string
			err := tx.NewSelect().
				Table("matches").
				Column("id").
				Where("id = ?", ans.MatchID).
				For("UPDATE").
				Scan(ctx, &matchID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return domain.ErrMatchNotFound
				}
				return fmt.Errorf("lock match: %w", err)
			}
			exists, err := tx.NewSelect().
				Table("answers").
				Where("match_id = ? AND inning = ? AND question_idx = ? AND correct", ans.MatchID, ans.Inning, ans.QuestionIdx).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("check first correct: %w", err)
			}
			if !exists {
				ans.Bonus = true
			}
		}

		row := answerRow{
			MatchID:           ans.MatchID,
			PlayerID:          ans.PlayerID,
			Inning:            ans.Inning,
			QuestionIdx:       ans.QuestionIdx,
			Choice:            ans.Choice,
			Correct:           ans.Correct,
			Bonus:             ans.Bonus,
			AnswerMs:          ans.AnswerMs,
			ReportedLatencyMs: ans.ReportedLatencyMs,
			CreatedAt:         ans.CreatedAt,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateSubmission
			}
			return fmt.Errorf("insert answer: %w", err)
		}
		return nil
	})
	return err
}

func (l *Ledger) ListAnswers(ctx context.Context, matchID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := l.db.NewSelect().Model(&rows).
		Where("match_id = ?", matchID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	return answersToDomain(rows), nil
}

func (l *Ledger) ListQuestionAnswers(ctx context.Context, matchID string, inning, questionIdx int) ([]domain.Answer, error) {
	var rows []answerRow
	err := l.db.NewSelect().Model(&rows).
		Where("match_id = ? AND inning = ? AND question_idx = ?", matchID, inning, questionIdx).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select question answers: %w", err)
	}
	return answersToDomain(rows), nil
}

// AmendClosestWinners flips the winning closest-number submissions to
// correct. This is the only write an answer row ever sees after insert, and
// the reveal adjacency rule guarantees it runs at most once per question.
func (l *Ledger) AmendClosestWinners(ctx context.Context, matchID string, inning, questionIdx int, winners []string) error {
	if len(winners) == 0 {
		return nil
	}
	_, err := l.db.NewUpdate().
		Table("answers").
		Set("correct = TRUE").
		Where("match_id = ? AND inning = ? AND question_idx = ?", matchID, inning, questionIdx).
		Where("player_id IN (?)", bun.In(winners)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("amend closest winners: %w", err)
	}
	return nil
}

func (r matchRow) toDomain() domain.Match {
	return domain.Match{
		ID:      r.ID,
		PackID:  r.PackID,
		HostKey: r.HostKey,
		Settings: domain.Settings{
			TimerSec:   r.TimerSec,
			GrandSlam:  r.GrandSlam,
			SpeedBonus: r.SpeedBonus,
		},
		Status:      domain.MatchStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

func (r playerRow) toDomain() domain.Player {
	return domain.Player{
		ID:        r.ID,
		MatchID:   r.MatchID,
		Nickname:  r.Nickname,
		Avatar:    r.Avatar,
		City:      r.City,
		SessionID: r.SessionID,
		Left:      r.LeftMatch,
		JoinedAt:  r.JoinedAt,
	}
}

func answersToDomain(rows []answerRow) []domain.Answer {
	out := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Answer{
			MatchID:           r.MatchID,
			PlayerID:          r.PlayerID,
			Inning:            r.Inning,
			QuestionIdx:       r.QuestionIdx,
			Choice:            r.Choice,
			Correct:           r.Correct,
			Bonus:             r.Bonus,
			AnswerMs:          r.AnswerMs,
			ReportedLatencyMs: r.ReportedLatencyMs,
			CreatedAt:         r.CreatedAt,
		})
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
