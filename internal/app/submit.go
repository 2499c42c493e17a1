package app

import (
	"context"
	"fmt"
	"log"

	"dugout-trivia/internal/domain"
	"dugout-trivia/internal/game"
)

// SubmitInput carries one answer submission. ReportedLatencyMs is a client
// diagnostic only; scoring uses the server-observed elapsed time.
type SubmitInput struct {
	MatchID           string
	PlayerID          string
	QuestionID        string
	Choice            string
	ReportedLatencyMs int64
	SessionID         string
}

// SubmitAck is returned to the submitting player. It deliberately carries no
// correctness; players learn results only at the host-triggered reveal.
type SubmitAck struct {
	QuestionID string `json:"questionId"`
	AnswerMs   int64  `json:"answerMs"`
}

// SubmitAnswer records exactly one answer per player per question. Late
// submissions for a question already revealed (or never shown) are rejected,
// regardless of client clocks; duplicates lose at the ledger's uniqueness
// constraint, not at an in-memory check, so reconnect races cannot
// double-score.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, in SubmitInput) (SubmitAck, error) {
	st, _, err := o.states.Get(ctx, in.MatchID)
	if err != nil {
		return SubmitAck{}, err
	}
	if st.Phase != domain.PhaseQuestion || st.CurrentQuestion == nil || st.QuestionShownAt == nil {
		return SubmitAck{}, fmt.Errorf("%w: no question open for answers", domain.ErrQuestionNotFound)
	}
	if st.CurrentQuestion.ID != in.QuestionID {
		return SubmitAck{}, fmt.Errorf("%w: question %s is not the one being shown", domain.ErrQuestionNotFound, in.QuestionID)
	}

	pack, err := o.packs.GetPack(ctx, st.PackID)
	if err != nil {
		return SubmitAck{}, err
	}
	q, ok := pack.QuestionAt(st.Inning, st.QuestionIdx)
	if !ok || q.ID != in.QuestionID {
		return SubmitAck{}, fmt.Errorf("%w: question %s is not the one being shown", domain.ErrQuestionNotFound, in.QuestionID)
	}

	now := o.now()
	elapsed := now.Sub(*st.QuestionShownAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	correct := game.IsCorrect(q, in.Choice)
	award := game.Score(game.AwardInput{
		Correct:      correct,
		AnswerMs:     elapsed,
		Settings:     st.Settings,
		ClosestStyle: q.Type == domain.TypeClosest,
	})

	ans := domain.Answer{
		MatchID:           in.MatchID,
		PlayerID:          in.PlayerID,
		Inning:            st.Inning,
		QuestionIdx:       st.QuestionIdx,
		Choice:            in.Choice,
		Correct:           correct,
		Bonus:             award.Bonus,
		AnswerMs:          elapsed,
		ReportedLatencyMs: in.ReportedLatencyMs,
		CreatedAt:         now,
	}
	claimGrandSlam := correct && st.Settings.GrandSlam && q.Type != domain.TypeClosest
	if err := o.ledger.InsertAnswer(ctx, &ans, claimGrandSlam); err != nil {
		return SubmitAck{}, err
	}
	if err := o.cache.Append(ctx, ans); err != nil {
		log.Printf("answer cache append for match %s: %v", in.MatchID, err)
	}

	players, err := o.ledger.ListActivePlayers(ctx, in.MatchID)
	if err != nil {
		return SubmitAck{}, err
	}
	answers, err := o.ledger.ListAnswers(ctx, in.MatchID)
	if err != nil {
		return SubmitAck{}, err
	}
	lb := game.Aggregate(players, answers, o.now())

	updated, err := o.mutate(ctx, in.MatchID, func(st *domain.MatchState) error {
		st.Leaderboard = lb
		return nil
	})
	if err != nil {
		// The answer is committed; a lost leaderboard write self-heals on the
		// next aggregation.
		log.Printf("leaderboard update for match %s: %v", in.MatchID, err)
	} else {
		o.bus.Broadcast(in.MatchID, EventScoreUpdate, updated.Leaderboard)
		o.bus.Broadcast(in.MatchID, EventState, updated)
	}

	ack := SubmitAck{QuestionID: in.QuestionID, AnswerMs: elapsed}
	if in.SessionID != "" {
		o.bus.Send(in.SessionID, EventSubmitAck, ack)
	}
	return ack, nil
}
