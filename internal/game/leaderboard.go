package game

import (
	"sort"
	"time"

	"dugout-trivia/internal/domain"
)

// Aggregate recomputes the full leaderboard from the answer ledger. It never
// patches incrementally, so a replayed aggregation cannot drift. Players who
// left the match are excluded; players with no answers still appear with
// zero totals.
//
// Ordering is a total order: runs descending, then total elapsed time
// ascending (faster aggregate time ranks higher), then player ID so equal
// tuples still rank deterministically.
func Aggregate(players []domain.Player, answers []domain.Answer, now time.Time) domain.Leaderboard {
	byPlayer := make(map[string]*domain.LeaderboardEntry, len(players))
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		if p.Left {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{PlayerID: p.ID, Nickname: p.Nickname})
		byPlayer[p.ID] = &entries[len(entries)-1]
	}

	for _, ans := range answers {
		entry, ok := byPlayer[ans.PlayerID]
		if !ok {
			continue
		}
		entry.Total++
		entry.TotalTimeMs += ans.AnswerMs
		if ans.Correct {
			entry.Correct++
		}
		entry.Runs += ans.Runs()
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Runs != entries[j].Runs {
			return entries[i].Runs > entries[j].Runs
		}
		if entries[i].TotalTimeMs != entries[j].TotalTimeMs {
			return entries[i].TotalTimeMs < entries[j].TotalTimeMs
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})

	return domain.Leaderboard{Entries: entries, UpdatedAt: now}
}

// InningRuns totals the runs scored by all players in one inning, for the
// line score.
func InningRuns(answers []domain.Answer, inning int) int {
	total := 0
	for _, ans := range answers {
		if ans.Inning == inning {
			total += ans.Runs()
		}
	}
	return total
}
