package game

import (
	"testing"
	"time"

	"dugout-trivia/internal/domain"
)

func TestAggregate(t *testing.T) {
	players := []domain.Player{
		{ID: "p1", Nickname: "Slugger"},
		{ID: "p2", Nickname: "Rookie"},
		{ID: "p3", Nickname: "Benched", Left: true},
		{ID: "p4", Nickname: "Silent"},
	}
	answers := []domain.Answer{
		{PlayerID: "p1", Inning: 0, Correct: true, Bonus: true, AnswerMs: 2000},
		{PlayerID: "p1", Inning: 1, Correct: false, AnswerMs: 9000},
		{PlayerID: "p2", Inning: 0, Correct: true, AnswerMs: 4000},
		{PlayerID: "p2", Inning: 1, Correct: true, AnswerMs: 1000},
		{PlayerID: "p3", Inning: 0, Correct: true, Bonus: true, AnswerMs: 500},
	}

	now := time.Date(2026, 4, 1, 19, 0, 0, 0, time.UTC)
	lb := Aggregate(players, answers, now)

	if !lb.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v", lb.UpdatedAt)
	}
	if len(lb.Entries) != 3 {
		t.Fatalf("entries = %+v, want 3 (left player excluded)", lb.Entries)
	}
	if lb.Entries[0].PlayerID != "p1" || lb.Entries[0].Runs != 4 {
		t.Fatalf("leader = %+v, want p1 with 4 runs", lb.Entries[0])
	}
	if lb.Entries[1].PlayerID != "p2" || lb.Entries[1].Runs != 2 {
		t.Fatalf("second = %+v, want p2 with 2 runs", lb.Entries[1])
	}
	if lb.Entries[1].Correct != 2 || lb.Entries[1].Total != 2 || lb.Entries[1].TotalTimeMs != 5000 {
		t.Fatalf("p2 totals = %+v", lb.Entries[1])
	}
	if lb.Entries[2].PlayerID != "p4" || lb.Entries[2].Runs != 0 {
		t.Fatalf("third = %+v, want p4 with zero totals", lb.Entries[2])
	}
}

func TestAggregateTieBreaks(t *testing.T) {
	players := []domain.Player{{ID: "b"}, {ID: "a"}, {ID: "c"}}
	answers := []domain.Answer{
		{PlayerID: "a", Correct: true, AnswerMs: 3000},
		{PlayerID: "b", Correct: true, AnswerMs: 1000},
		{PlayerID: "c", Correct: true, AnswerMs: 3000},
	}
	lb := Aggregate(players, answers, time.Now())
	got := []string{lb.Entries[0].PlayerID, lb.Entries[1].PlayerID, lb.Entries[2].PlayerID}
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestInningRuns(t *testing.T) {
	answers := []domain.Answer{
		{Inning: 0, Correct: true, Bonus: true},
		{Inning: 0, Correct: true},
		{Inning: 0, Correct: false},
		{Inning: 1, Correct: true},
	}
	if got := InningRuns(answers, 0); got != 5 {
		t.Fatalf("InningRuns(0) = %d, want 5", got)
	}
	if got := InningRuns(answers, 2); got != 0 {
		t.Fatalf("InningRuns(2) = %d, want 0", got)
	}
}
