package game

import (
	"fmt"
	"strconv"
	"strings"

	"dugout-trivia/internal/domain"
)

// ValidateQuestion checks that a question is well-formed for its type. The
// orchestrator runs this before every question transition so a match is
// never left displaying a malformed question.
func ValidateQuestion(q domain.Question) error {
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("%w: question %q has empty prompt", domain.ErrInvalidContent, q.ID)
	}
	switch q.Type {
	case domain.TypeMultipleChoice, domain.TypeMedia:
		if len(q.Choices) < 2 {
			return fmt.Errorf("%w: question %q needs at least 2 choices", domain.ErrInvalidContent, q.ID)
		}
		if !containsChoice(q.Choices, q.Answer) {
			return fmt.Errorf("%w: question %q answer key matches no choice", domain.ErrInvalidContent, q.ID)
		}
		if q.Type == domain.TypeMedia && strings.TrimSpace(q.MediaURL) == "" {
			return fmt.Errorf("%w: question %q is missing media", domain.ErrInvalidContent, q.ID)
		}
	case domain.TypeTrueFalse:
		key := strings.ToLower(strings.TrimSpace(q.Answer))
		if key != "true" && key != "false" {
			return fmt.Errorf("%w: question %q true/false key is %q", domain.ErrInvalidContent, q.ID, q.Answer)
		}
	case domain.TypeClosest:
		// Target of zero is legal; the pack encodes it explicitly via Answer
		// when the numeric value happens to be 0.
		if q.Target == 0 && strings.TrimSpace(q.Answer) == "" {
			return fmt.Errorf("%w: question %q has no numeric target", domain.ErrInvalidContent, q.ID)
		}
	default:
		return fmt.Errorf("%w: question %q has unknown type %q", domain.ErrInvalidContent, q.ID, q.Type)
	}
	return nil
}

// IsCorrect reports whether a submitted choice is correct at submission
// time. Closest questions are always provisionally incorrect; their winners
// are only known at reveal, across all submissions.
func IsCorrect(q domain.Question, choice string) bool {
	switch q.Type {
	case domain.TypeMultipleChoice, domain.TypeMedia:
		return strings.TrimSpace(choice) == q.Answer
	case domain.TypeTrueFalse:
		return strings.EqualFold(strings.TrimSpace(choice), strings.TrimSpace(q.Answer))
	case domain.TypeClosest:
		return false
	default:
		return false
	}
}

// CorrectAnswer returns the display value disclosed at reveal.
func CorrectAnswer(q domain.Question) string {
	if q.Type == domain.TypeClosest {
		return strconv.FormatFloat(ClosestTarget(q), 'f', -1, 64)
	}
	return q.Answer
}

// ClosestTarget returns the numeric ground truth for a closest question,
// preferring the Target field and falling back to a numeric Answer.
func ClosestTarget(q domain.Question) float64 {
	if q.Target != 0 {
		return q.Target
	}
	v, _ := strconv.ParseFloat(strings.TrimSpace(q.Answer), 64)
	return v
}

// Project strips the answer key from a question for broadcast to clients.
func Project(q domain.Question) domain.ClientQuestion {
	out := domain.ClientQuestion{
		ID:       q.ID,
		Type:     q.Type,
		Prompt:   q.Prompt,
		MediaURL: q.MediaURL,
	}
	if len(q.Choices) > 0 {
		out.Choices = append([]string(nil), q.Choices...)
	}
	return out
}

func containsChoice(choices []string, answer string) bool {
	for _, c := range choices {
		if c == answer {
			return true
		}
	}
	return false
}
