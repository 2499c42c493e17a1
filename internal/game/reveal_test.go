package game

import (
	"reflect"
	"testing"

	"dugout-trivia/internal/domain"
)

func TestResolveClosest(t *testing.T) {
	answers := []domain.Answer{
		{PlayerID: "p1", Choice: "54"},
		{PlayerID: "p2", Choice: "50"},
		{PlayerID: "p3", Choice: "54"},
		{PlayerID: "p4", Choice: "about sixty"},
	}
	got := ResolveClosest(54, answers)
	want := []string{"p1", "p3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ResolveClosest = %v, want %v", got, want)
	}
}

func TestResolveClosestEquidistant(t *testing.T) {
	answers := []domain.Answer{
		{PlayerID: "p1", Choice: "50"},
		{PlayerID: "p2", Choice: "58"},
	}
	got := ResolveClosest(54, answers)
	want := []string{"p1", "p2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ResolveClosest = %v, want %v", got, want)
	}
}

func TestResolveClosestNoNumericAnswers(t *testing.T) {
	answers := []domain.Answer{{PlayerID: "p1", Choice: "dunno"}}
	if got := ResolveClosest(10, answers); len(got) != 0 {
		t.Fatalf("ResolveClosest = %v, want none", got)
	}
}

func TestBuildRevealResult(t *testing.T) {
	q := domain.Question{ID: "q9", Type: domain.TypeTrueFalse, Prompt: "p", Answer: "true"}
	answers := []domain.Answer{
		{PlayerID: "p1", Choice: "true", Correct: true, Bonus: true, AnswerMs: 1200},
		{PlayerID: "p2", Choice: "false", AnswerMs: 3000},
	}
	names := map[string]string{"p1": "Slugger", "p2": "Rookie"}

	got := BuildRevealResult(q, 2, 1, answers, names, 4)
	if got.QuestionID != "q9" || got.Inning != 2 || got.QuestionIdx != 1 {
		t.Fatalf("position fields wrong: %+v", got)
	}
	if got.CorrectAnswer != "true" {
		t.Fatalf("CorrectAnswer = %q", got.CorrectAnswer)
	}
	if got.InningRuns != 4 {
		t.Fatalf("InningRuns = %d", got.InningRuns)
	}
	if len(got.PlayerResults) != 2 {
		t.Fatalf("PlayerResults = %+v", got.PlayerResults)
	}
	first := got.PlayerResults[0]
	if first.Nickname != "Slugger" || first.RunsAwarded != 4 || !first.Correct {
		t.Fatalf("first result = %+v", first)
	}
	if got.PlayerResults[1].RunsAwarded != 0 {
		t.Fatalf("incorrect answer awarded runs: %+v", got.PlayerResults[1])
	}
}
