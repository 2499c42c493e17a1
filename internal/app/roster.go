package app

import (
	"context"
	"errors"
	"fmt"

	"dugout-trivia/internal/domain"
	"dugout-trivia/internal/game"
	"github.com/google/uuid"
)

// JoinInput carries a join command from the transport.
type JoinInput struct {
	MatchID   string
	Nickname  string
	Avatar    string
	City      string
	SessionID string
}

// Join registers a player or reconnects one. A nickname is reusable while no
// live session holds it; the existing player record (and its answers) is
// reused on reconnect so scores survive a dropped connection.
func (o *Orchestrator) Join(ctx context.Context, in JoinInput) (domain.Player, *domain.MatchState, error) {
	m, err := o.ledger.GetMatch(ctx, in.MatchID)
	if err != nil {
		return domain.Player{}, nil, err
	}
	if m.Status == domain.StatusCompleted || m.Status == domain.StatusAbandoned {
		return domain.Player{}, nil, fmt.Errorf("%w: match is over", domain.ErrStateConflict)
	}

	var player domain.Player
	existing, err := o.ledger.FindPlayerByNickname(ctx, in.MatchID, in.Nickname)
	switch {
	case err == nil:
		if existing.SessionID != "" && !existing.Left {
			return domain.Player{}, nil, domain.ErrNicknameTaken
		}
		if err := o.ledger.RejoinPlayer(ctx, existing.ID, in.SessionID); err != nil {
			return domain.Player{}, nil, err
		}
		existing.SessionID = in.SessionID
		existing.Left = false
		player = existing
	case errors.Is(err, domain.ErrPlayerNotFound):
		player = domain.Player{
			ID:        uuid.NewString(),
			MatchID:   in.MatchID,
			Nickname:  in.Nickname,
			Avatar:    in.Avatar,
			City:      in.City,
			SessionID: in.SessionID,
			JoinedAt:  o.now(),
		}
		if err := o.ledger.CreatePlayer(ctx, &player); err != nil {
			return domain.Player{}, nil, err
		}
	default:
		return domain.Player{}, nil, err
	}

	st, err := o.refreshRoster(ctx, in.MatchID)
	if err != nil {
		return domain.Player{}, nil, err
	}
	o.bus.Broadcast(in.MatchID, EventRosterChanged, st.Roster)
	o.bus.Broadcast(in.MatchID, EventState, st)
	if in.SessionID != "" {
		o.bus.Send(in.SessionID, EventJoinAck, map[string]any{
			"playerId": player.ID,
			"nickname": player.Nickname,
		})
	}
	return player, st, nil
}

// Leave marks a player as having left for good. The record is kept (answers
// stay attributed) but the player drops out of the roster and leaderboard.
func (o *Orchestrator) Leave(ctx context.Context, matchID, playerID string) error {
	if err := o.ledger.MarkPlayerLeft(ctx, playerID); err != nil {
		return err
	}
	st, err := o.refreshRoster(ctx, matchID)
	if err != nil {
		return err
	}
	o.bus.Broadcast(matchID, EventRosterChanged, st.Roster)
	o.bus.Broadcast(matchID, EventState, st)
	return nil
}

// Disconnect releases a player's transport session without removing them
// from the match; the nickname becomes reclaimable for reconnect.
func (o *Orchestrator) Disconnect(ctx context.Context, matchID, playerID string) error {
	if err := o.ledger.DetachSession(ctx, playerID); err != nil {
		return err
	}
	st, err := o.refreshRoster(ctx, matchID)
	if err != nil {
		return err
	}
	o.bus.Broadcast(matchID, EventRosterChanged, st.Roster)
	return nil
}

// refreshRoster rebuilds the roster and leaderboard in the state blob from
// the ledger. Always a full recompute, never a patch.
func (o *Orchestrator) refreshRoster(ctx context.Context, matchID string) (*domain.MatchState, error) {
	players, err := o.ledger.ListActivePlayers(ctx, matchID)
	if err != nil {
		return nil, err
	}
	answers, err := o.ledger.ListAnswers(ctx, matchID)
	if err != nil {
		return nil, err
	}

	roster := make([]domain.RosterEntry, 0, len(players))
	for _, p := range players {
		roster = append(roster, domain.RosterEntry{
			PlayerID:  p.ID,
			Nickname:  p.Nickname,
			Avatar:    p.Avatar,
			City:      p.City,
			Connected: p.SessionID != "",
		})
	}
	lb := game.Aggregate(players, answers, o.now())

	return o.mutate(ctx, matchID, func(st *domain.MatchState) error {
		st.Roster = roster
		st.Leaderboard = lb
		return nil
	})
}
