package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dugout-trivia/internal/domain"
	"dugout-trivia/internal/game"
	"github.com/google/uuid"
)

const (
	// stretchInning is the 0-based inning whose start triggers the stretch
	// interstitial (the seventh-inning stretch).
	stretchInning = 6

	defaultTimerSec   = 20
	defaultStretchDur = 30 * time.Second

	// casAttempts bounds the retry loop around conditional state writes.
	casAttempts = 5
)

// Orchestrator owns every phase transition of a match. It keeps no
// authoritative in-process state: all reads and writes go through the shared
// state store and the durable ledger, so multiple orchestrator instances can
// serve the same match concurrently. The only in-process state is the
// registry of pending stretch timers, which is advisory (a fired timer
// re-validates the phase before touching anything).
type Orchestrator struct {
	states StateStore
	ledger Ledger
	packs  PackProvider
	cache  AnswerCache
	bus    Broadcaster

	now        func() time.Time
	stretchDur time.Duration

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

func New(states StateStore, ledger Ledger, packs PackProvider, cache AnswerCache, bus Broadcaster) *Orchestrator {
	return &Orchestrator{
		states:     states,
		ledger:     ledger,
		packs:      packs,
		cache:      cache,
		bus:        bus,
		now:        time.Now,
		stretchDur: defaultStretchDur,
		timers:     make(map[string]*time.Timer),
	}
}

// SetStretchDuration overrides the stretch interstitial length.
func (o *Orchestrator) SetStretchDuration(d time.Duration) {
	if d > 0 {
		o.stretchDur = d
	}
}

// SetClock is test-only for deterministic timestamps.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// CreateMatch registers a new match in lobby phase and seeds its state blob.
// The returned match carries the host key the creator needs for host
// commands.
func (o *Orchestrator) CreateMatch(ctx context.Context, packID string, settings domain.Settings) (domain.Match, error) {
	pack, err := o.packs.GetPack(ctx, packID)
	if err != nil {
		return domain.Match{}, err
	}
	if len(pack.Innings) == 0 {
		return domain.Match{}, fmt.Errorf("%w: pack %s has no innings", domain.ErrInvalidContent, packID)
	}
	if settings.TimerSec <= 0 {
		settings.TimerSec = defaultTimerSec
	}

	m := domain.Match{
		ID:        uuid.NewString(),
		PackID:    packID,
		HostKey:   uuid.NewString(),
		Settings:  settings,
		Status:    domain.StatusLobby,
		CreatedAt: o.now(),
	}
	if err := o.ledger.CreateMatch(ctx, &m); err != nil {
		return domain.Match{}, err
	}

	state := &domain.MatchState{
		MatchID:   m.ID,
		PackID:    packID,
		Settings:  settings,
		Phase:     domain.PhaseLobby,
		LineScore: make([]*int, len(pack.Innings)),
		UpdatedAt: o.now(),
	}
	if err := o.states.Create(ctx, state); err != nil {
		return domain.Match{}, err
	}
	return m, nil
}

// State returns the current snapshot, for reconnecting clients.
func (o *Orchestrator) State(ctx context.Context, matchID string) (*domain.MatchState, error) {
	st, _, err := o.states.Get(ctx, matchID)
	return st, err
}

// Authorize checks a host key against the match record.
func (o *Orchestrator) Authorize(ctx context.Context, matchID, hostKey string) error {
	m, err := o.ledger.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if hostKey == "" || hostKey != m.HostKey {
		return domain.ErrUnauthorized
	}
	return nil
}

// Start moves a match from lobby into its first question. Legal only from
// lobby; the first question is validated before any state changes.
func (o *Orchestrator) Start(ctx context.Context, matchID string) error {
	m, err := o.ledger.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	pack, err := o.packs.GetPack(ctx, m.PackID)
	if err != nil {
		return err
	}

	st, err := o.mutate(ctx, matchID, func(st *domain.MatchState) error {
		if st.Phase != domain.PhaseLobby {
			return fmt.Errorf("%w: cannot start from %s", domain.ErrStateConflict, st.Phase)
		}
		return o.showQuestion(st, pack, 0, 0)
	})
	if err != nil {
		return err
	}

	now := o.now()
	if err := o.ledger.SetMatchStatus(ctx, matchID, domain.StatusInProgress, now); err != nil {
		log.Printf("mark match %s in progress: %v", matchID, err)
	}
	o.bus.Broadcast(matchID, EventState, st)
	o.bus.Broadcast(matchID, EventQuestionShown, questionShownPayload(st))
	return nil
}

// Advance moves to the next question (host skip from question, or the
// normal step after reveal). Legal only from question or reveal; the
// stretch exits through its timer, never a host command, so a replayed
// advance at the stretch boundary cannot swallow the interstitial. When the
// next question would open the stretch inning it enters the stretch
// instead, once per match. When the pack is exhausted the match finalizes
// to postgame.
func (o *Orchestrator) Advance(ctx context.Context, matchID string) error {
	pack, err := o.packForMatch(ctx, matchID)
	if err != nil {
		return err
	}

	var entered domain.Phase
	st, err := o.mutate(ctx, matchID, func(st *domain.MatchState) error {
		switch st.Phase {
		case domain.PhaseQuestion, domain.PhaseReveal:
			inning, idx, ok := nextPosition(pack, st.Inning, st.QuestionIdx)
			if !ok {
				o.finalize(st)
				entered = domain.PhasePostgame
				return nil
			}
			if inning == stretchInning && idx == 0 && !st.StretchDone {
				o.enterStretch(st, inning, idx)
				entered = domain.PhaseStretch
				return nil
			}
			if err := o.showQuestion(st, pack, inning, idx); err != nil {
				return err
			}
			entered = domain.PhaseQuestion
			return nil
		default:
			return fmt.Errorf("%w: cannot advance from %s", domain.ErrStateConflict, st.Phase)
		}
	})
	if err != nil {
		return err
	}

	o.afterTransition(ctx, st, entered)
	return nil
}

// Reveal discloses the current question: resolves closest-number winners,
// fixes the line score for the inning, recomputes the leaderboard, and
// transitions question → reveal. Not re-enterable for the same question.
// The conditional write decides the whole transition: until it commits,
// nothing durable changes. Winners are scored on local copies inside the
// attempt so the committed snapshot already carries their runs; the ledger
// amendment follows the commit.
func (o *Orchestrator) Reveal(ctx context.Context, matchID string) error {
	pack, err := o.packForMatch(ctx, matchID)
	if err != nil {
		return err
	}

	var result domain.RevealResult
	var winners []string
	pinInning, pinIdx := -1, -1
	st, err := o.mutate(ctx, matchID, func(st *domain.MatchState) error {
		if st.Phase != domain.PhaseQuestion {
			return fmt.Errorf("%w: cannot reveal from %s", domain.ErrStateConflict, st.Phase)
		}
		// A retry that finds another question lost to a racing transition;
		// revealing whatever is showing now would disclose a question the
		// host never asked about.
		if pinInning >= 0 && (st.Inning != pinInning || st.QuestionIdx != pinIdx) {
			return fmt.Errorf("%w: another transition moved the match", domain.ErrStateConflict)
		}
		pinInning, pinIdx = st.Inning, st.QuestionIdx

		q, ok := pack.QuestionAt(st.Inning, st.QuestionIdx)
		if !ok {
			return fmt.Errorf("%w: no question at inning %d index %d", domain.ErrQuestionNotFound, st.Inning, st.QuestionIdx)
		}

		scored, err := o.ledger.ListQuestionAnswers(ctx, matchID, st.Inning, st.QuestionIdx)
		if err != nil {
			return err
		}
		allAnswers, err := o.ledger.ListAnswers(ctx, matchID)
		if err != nil {
			return err
		}
		players, err := o.ledger.ListActivePlayers(ctx, matchID)
		if err != nil {
			return err
		}

		winners = nil
		if q.Type == domain.TypeClosest {
			submissions, err := o.questionAnswers(ctx, matchID, st.Inning, st.QuestionIdx)
			if err != nil {
				return err
			}
			winners = game.ResolveClosest(game.ClosestTarget(q), submissions)
			markClosestWinners(scored, st.Inning, st.QuestionIdx, winners)
			markClosestWinners(allAnswers, st.Inning, st.QuestionIdx, winners)
		}

		inningRuns := game.InningRuns(allAnswers, st.Inning)
		if st.Inning < len(st.LineScore) {
			runs := inningRuns
			st.LineScore[st.Inning] = &runs
		}
		st.Leaderboard = game.Aggregate(players, allAnswers, o.now())
		st.AnswerDeadline = nil
		st.QuestionShownAt = nil
		st.Phase = domain.PhaseReveal

		result = game.BuildRevealResult(q, st.Inning, st.QuestionIdx, scored, nicknames(players), inningRuns)
		return nil
	})
	if err != nil {
		return err
	}

	if len(winners) > 0 {
		if err := o.ledger.AmendClosestWinners(ctx, matchID, pinInning, pinIdx, winners); err != nil {
			// The reveal is committed; a failed amendment leaves the ledger
			// behind the broadcast snapshot.
			log.Printf("amend closest winners for match %s: %v", matchID, err)
		}
	}
	o.bus.Broadcast(matchID, EventState, st)
	o.bus.Broadcast(matchID, EventRevealResult, result)
	return nil
}

// markClosestWinners flips the winning submissions to correct on local
// copies ahead of the durable amendment.
func markClosestWinners(answers []domain.Answer, inning, idx int, winners []string) {
	if len(winners) == 0 {
		return
	}
	set := make(map[string]struct{}, len(winners))
	for _, id := range winners {
		set[id] = struct{}{}
	}
	for i := range answers {
		if answers[i].Inning != inning || answers[i].QuestionIdx != idx {
			continue
		}
		if _, ok := set[answers[i].PlayerID]; ok {
			answers[i].Correct = true
		}
	}
}

// TriggerStretch forces the stretch interstitial before the next question.
// Normally the stretch is entered automatically by Advance when the stretch
// inning opens; this is the host override.
func (o *Orchestrator) TriggerStretch(ctx context.Context, matchID string) error {
	pack, err := o.packForMatch(ctx, matchID)
	if err != nil {
		return err
	}

	st, err := o.mutate(ctx, matchID, func(st *domain.MatchState) error {
		if st.Phase != domain.PhaseQuestion && st.Phase != domain.PhaseReveal {
			return fmt.Errorf("%w: cannot stretch from %s", domain.ErrStateConflict, st.Phase)
		}
		if st.StretchDone {
			return fmt.Errorf("%w: stretch already happened", domain.ErrStateConflict)
		}
		inning, idx, ok := nextPosition(pack, st.Inning, st.QuestionIdx)
		if !ok {
			return fmt.Errorf("%w: no question left to stretch before", domain.ErrStateConflict)
		}
		o.enterStretch(st, inning, idx)
		return nil
	})
	if err != nil {
		return err
	}

	o.afterTransition(ctx, st, domain.PhaseStretch)
	return nil
}

// Pause raises the out-of-band pause flag. The phase does not change.
func (o *Orchestrator) Pause(ctx context.Context, matchID string) error {
	st, err := o.mutate(ctx, matchID, func(st *domain.MatchState) error {
		if st.Phase == domain.PhasePostgame {
			return fmt.Errorf("%w: match already finished", domain.ErrStateConflict)
		}
		st.Paused = true
		return nil
	})
	if err != nil {
		return err
	}
	o.bus.Broadcast(matchID, EventState, st)
	return nil
}

// Resume clears the pause flag. During the question phase it resets the full
// answer timer rather than restoring the remaining time; the elapsed clock
// for the speed bonus restarts with it.
func (o *Orchestrator) Resume(ctx context.Context, matchID string) error {
	st, err := o.mutate(ctx, matchID, func(st *domain.MatchState) error {
		if !st.Paused {
			return fmt.Errorf("%w: match is not paused", domain.ErrStateConflict)
		}
		st.Paused = false
		if st.Phase == domain.PhaseQuestion {
			now := o.now()
			deadline := now.Add(time.Duration(st.Settings.TimerSec) * time.Second)
			st.QuestionShownAt = &now
			st.AnswerDeadline = &deadline
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.bus.Broadcast(matchID, EventState, st)
	return nil
}

// Abandon ends a match early: the pending stretch timer is cancelled, the
// durable record is marked abandoned, and the state blob is dropped after a
// final broadcast.
func (o *Orchestrator) Abandon(ctx context.Context, matchID string) error {
	st, _, err := o.states.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if st.Phase == domain.PhasePostgame {
		return fmt.Errorf("%w: match already finished", domain.ErrStateConflict)
	}

	o.cancelStretchTimer(matchID)
	now := o.now()
	if err := o.ledger.SetMatchStatus(ctx, matchID, domain.StatusAbandoned, now); err != nil {
		return err
	}
	o.bus.Broadcast(matchID, EventMatchAbandoned, st)
	if err := o.states.Delete(ctx, matchID); err != nil {
		log.Printf("drop state for abandoned match %s: %v", matchID, err)
	}
	return nil
}

// finishStretch is the timer-driven stretch → question transition. A fired
// timer that finds the match no longer in stretch must no-op, so the phase
// check lives inside the conditional write.
func (o *Orchestrator) finishStretch(ctx context.Context, matchID string) error {
	pack, err := o.packForMatch(ctx, matchID)
	if err != nil {
		return err
	}
	st, err := o.mutate(ctx, matchID, func(st *domain.MatchState) error {
		if st.Phase != domain.PhaseStretch {
			return fmt.Errorf("%w: stretch already finished", domain.ErrStateConflict)
		}
		return o.showQuestion(st, pack, st.Inning, st.QuestionIdx)
	})
	if err != nil {
		return err
	}
	o.afterTransition(ctx, st, domain.PhaseQuestion)
	return nil
}

// mutate runs a read-check-write cycle against the state store, retrying on
// lost races. fn sees a freshly loaded snapshot on every attempt, so phase
// guards inside fn decide races deterministically: the loser re-reads the
// committed state and fails its adjacency check instead of double-applying.
func (o *Orchestrator) mutate(ctx context.Context, matchID string, fn func(st *domain.MatchState) error) (*domain.MatchState, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		st, version, err := o.states.Get(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if err := fn(st); err != nil {
			return nil, err
		}
		st.UpdatedAt = o.now()
		err = o.states.Update(ctx, st, version)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, domain.ErrStateConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: too many concurrent writers for match %s", domain.ErrStateConflict, matchID)
}

// showQuestion points the state at (inning, idx) and opens the answer
// window. The question is re-validated on every transition.
func (o *Orchestrator) showQuestion(st *domain.MatchState, pack domain.Pack, inning, idx int) error {
	q, ok := pack.QuestionAt(inning, idx)
	if !ok {
		return fmt.Errorf("%w: no question at inning %d index %d", domain.ErrInvalidContent, inning, idx)
	}
	if err := game.ValidateQuestion(q); err != nil {
		return err
	}
	now := o.now()
	deadline := now.Add(time.Duration(st.Settings.TimerSec) * time.Second)
	projected := game.Project(q)

	st.Phase = domain.PhaseQuestion
	st.Inning = inning
	st.QuestionIdx = idx
	st.CurrentQuestion = &projected
	st.QuestionShownAt = &now
	st.AnswerDeadline = &deadline
	st.StretchDeadline = nil
	return nil
}

func (o *Orchestrator) enterStretch(st *domain.MatchState, inning, idx int) {
	deadline := o.now().Add(o.stretchDur)
	st.Phase = domain.PhaseStretch
	st.Inning = inning
	st.QuestionIdx = idx
	st.CurrentQuestion = nil
	st.QuestionShownAt = nil
	st.AnswerDeadline = nil
	st.StretchDeadline = &deadline
	st.StretchDone = true
}

func (o *Orchestrator) finalize(st *domain.MatchState) {
	st.Phase = domain.PhasePostgame
	st.CurrentQuestion = nil
	st.QuestionShownAt = nil
	st.AnswerDeadline = nil
	st.StretchDeadline = nil
}

// afterTransition performs the side effects of a committed transition:
// broadcasts, the stretch timer, and completion archival.
func (o *Orchestrator) afterTransition(ctx context.Context, st *domain.MatchState, entered domain.Phase) {
	matchID := st.MatchID
	switch entered {
	case domain.PhaseQuestion:
		o.cancelStretchTimer(matchID)
		o.bus.Broadcast(matchID, EventState, st)
		o.bus.Broadcast(matchID, EventQuestionShown, questionShownPayload(st))
	case domain.PhaseStretch:
		o.bus.Broadcast(matchID, EventState, st)
		o.bus.Broadcast(matchID, EventStretchStart, map[string]any{
			"deadline": st.StretchDeadline,
		})
		o.scheduleStretchAdvance(matchID)
	case domain.PhasePostgame:
		o.cancelStretchTimer(matchID)
		now := o.now()
		if err := o.ledger.SetMatchStatus(ctx, matchID, domain.StatusCompleted, now); err != nil {
			log.Printf("mark match %s completed: %v", matchID, err)
		}
		o.bus.Broadcast(matchID, EventState, st)
		// Archival: durable records take over, the live blob goes away.
		if err := o.states.Delete(ctx, matchID); err != nil {
			log.Printf("drop state for completed match %s: %v", matchID, err)
		}
	}
}

func (o *Orchestrator) scheduleStretchAdvance(matchID string) {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	if t, ok := o.timers[matchID]; ok {
		t.Stop()
	}
	o.timers[matchID] = time.AfterFunc(o.stretchDur, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := o.finishStretch(ctx, matchID)
		if err != nil && !errors.Is(err, domain.ErrStateConflict) && !errors.Is(err, domain.ErrMatchNotFound) {
			log.Printf("stretch auto-advance for match %s: %v", matchID, err)
		}
	})
}

func (o *Orchestrator) cancelStretchTimer(matchID string) {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	if t, ok := o.timers[matchID]; ok {
		t.Stop()
		delete(o.timers, matchID)
	}
}

// questionAnswers reads the transient cache for a question, falling back to
// the ledger when the cache is empty or gone.
func (o *Orchestrator) questionAnswers(ctx context.Context, matchID string, inning, idx int) ([]domain.Answer, error) {
	cached, err := o.cache.List(ctx, matchID, inning, idx)
	if err == nil && len(cached) > 0 {
		return cached, nil
	}
	if err != nil {
		log.Printf("answer cache read for match %s: %v", matchID, err)
	}
	return o.ledger.ListQuestionAnswers(ctx, matchID, inning, idx)
}

func (o *Orchestrator) packForMatch(ctx context.Context, matchID string) (domain.Pack, error) {
	st, _, err := o.states.Get(ctx, matchID)
	if err != nil {
		return domain.Pack{}, err
	}
	return o.packs.GetPack(ctx, st.PackID)
}

// nextPosition walks to the next question, skipping empty innings.
func nextPosition(pack domain.Pack, inning, idx int) (int, int, bool) {
	if inning >= 0 && inning < len(pack.Innings) && idx+1 < len(pack.Innings[inning].Questions) {
		return inning, idx + 1, true
	}
	for i := inning + 1; i < len(pack.Innings); i++ {
		if len(pack.Innings[i].Questions) > 0 {
			return i, 0, true
		}
	}
	return 0, 0, false
}

func nicknames(players []domain.Player) map[string]string {
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Nickname
	}
	return names
}

func questionShownPayload(st *domain.MatchState) map[string]any {
	return map[string]any{
		"inning":      st.Inning,
		"questionIdx": st.QuestionIdx,
		"question":    st.CurrentQuestion,
		"deadline":    st.AnswerDeadline,
	}
}
