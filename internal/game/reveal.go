package game

import (
	"math"
	"strconv"
	"strings"

	"dugout-trivia/internal/domain"
)

// ResolveClosest returns the player IDs whose parsed choices minimize the
// distance to the target. Non-numeric choices are ignored, not scored. Ties
// at the minimum distance all win, so the result may hold several players.
func ResolveClosest(target float64, answers []domain.Answer) []string {
	best := math.Inf(1)
	var winners []string
	for _, ans := range answers {
		v, err := strconv.ParseFloat(strings.TrimSpace(ans.Choice), 64)
		if err != nil {
			continue
		}
		d := math.Abs(target - v)
		switch {
		case d < best:
			best = d
			winners = winners[:0]
			winners = append(winners, ans.PlayerID)
		case d == best:
			winners = append(winners, ans.PlayerID)
		}
	}
	return winners
}

// BuildRevealResult assembles the reveal payload from the question and its
// scored answers. For closest questions the answers must already carry the
// amended correctness flags.
func BuildRevealResult(q domain.Question, inning, questionIdx int, answers []domain.Answer, names map[string]string, inningRuns int) domain.RevealResult {
	results := make([]domain.PlayerResult, 0, len(answers))
	for _, ans := range answers {
		results = append(results, domain.PlayerResult{
			PlayerID:    ans.PlayerID,
			Nickname:    names[ans.PlayerID],
			Choice:      ans.Choice,
			Correct:     ans.Correct,
			RunsAwarded: ans.Runs(),
			AnswerMs:    ans.AnswerMs,
		})
	}
	return domain.RevealResult{
		QuestionID:    q.ID,
		Inning:        inning,
		QuestionIdx:   questionIdx,
		CorrectAnswer: CorrectAnswer(q),
		PlayerResults: results,
		InningRuns:    inningRuns,
	}
}
