package game

import "dugout-trivia/internal/domain"

const (
	baseRuns  = 1
	bonusRuns = 4
)

// AwardInput carries everything the submission-time scoring rules need.
// AnswerMs is the server-observed elapsed time from question-shown to
// submission-received; client-reported latency never enters the decision.
type AwardInput struct {
	Correct      bool
	AnswerMs     int64
	Settings     domain.Settings
	ClosestStyle bool // closest questions never earn a bonus
}

// Award is the scored outcome of one submission.
type Award struct {
	Runs  int
	Bonus bool
}

// Score applies the submission-time run rules: incorrect answers score
// nothing, a fast enough correct answer scores 4 when the speed bonus is
// on, anything else correct scores 1. The grand-slam first-correct bonus is
// not decided here; it is claimed atomically at the ledger insert, which
// raises the answer's bonus flag.
func Score(in AwardInput) Award {
	if !in.Correct {
		return Award{}
	}
	if in.ClosestStyle {
		return Award{Runs: baseRuns}
	}
	if in.Settings.SpeedBonus && SpeedBonusEligible(in.AnswerMs, in.Settings.TimerSec) {
		return Award{Runs: bonusRuns, Bonus: true}
	}
	return Award{Runs: baseRuns}
}

// SpeedBonusEligible reports whether an answer landed within the first
// quarter of the timer window.
func SpeedBonusEligible(answerMs int64, timerSec int) bool {
	if timerSec <= 0 {
		return false
	}
	return answerMs <= int64(timerSec)*1000/4
}
