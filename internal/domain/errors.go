package domain

import "errors"

var (
	// ErrMatchNotFound is returned when a match record or its live state is absent or expired.
	ErrMatchNotFound = errors.New("match not found")
	// ErrPackNotFound indicates the pack content could not be loaded.
	ErrPackNotFound = errors.New("pack not found")
	// ErrPlayerNotFound is returned when a player tries to act before joining.
	ErrPlayerNotFound = errors.New("player not found in match")
	// ErrQuestionNotFound indicates the match is not currently showing the submitted question.
	ErrQuestionNotFound = errors.New("question not currently shown")
	// ErrStateConflict rejects a phase transition that violates the adjacency
	// table or lost a concurrent-write race.
	ErrStateConflict = errors.New("state conflict")
	// ErrInvalidContent blocks a transition into a malformed question.
	ErrInvalidContent = errors.New("invalid question content")
	// ErrDuplicateSubmission means an answer already exists for this player and question.
	ErrDuplicateSubmission = errors.New("answer already submitted")
	// ErrNicknameTaken means an active player already holds the nickname.
	ErrNicknameTaken = errors.New("nickname already taken")
	// ErrUnauthorized rejects host commands from non-host sessions.
	ErrUnauthorized = errors.New("not authorized")
	// ErrUnavailable wraps unexpected store failures. State-mutating callers
	// must not retry it blindly.
	ErrUnavailable = errors.New("backing store unavailable")
)

// Kind maps an error to its stable machine-readable kind for the wire.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrMatchNotFound),
		errors.Is(err, ErrPackNotFound),
		errors.Is(err, ErrPlayerNotFound),
		errors.Is(err, ErrQuestionNotFound):
		return "not_found"
	case errors.Is(err, ErrStateConflict), errors.Is(err, ErrNicknameTaken):
		return "state_conflict"
	case errors.Is(err, ErrInvalidContent):
		return "invalid_content"
	case errors.Is(err, ErrDuplicateSubmission):
		return "duplicate_submission"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
