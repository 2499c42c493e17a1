package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"dugout-trivia/internal/app"
	"dugout-trivia/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	orch     *app.Orchestrator
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(orch *app.Orchestrator, hub *Hub) *WSHandler {
	return &WSHandler{
		orch: orch,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Choice     string `json:"choice"`
	LatencyMs  int64  `json:"latencyMs"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the match
// commands. Players connect with a nickname; the host connects with the
// match's host key (and may also play when a nickname is given).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("matchId")
	nickname := r.URL.Query().Get("nickname")
	hostKey := r.URL.Query().Get("hostKey")
	if matchID == "" || (nickname == "" && hostKey == "") {
		http.Error(w, "missing matchId and nickname or hostKey", http.StatusBadRequest)
		return
	}

	isHost := false
	if hostKey != "" {
		if err := h.orch.Authorize(r.Context(), matchID, hostKey); err != nil {
			http.Error(w, "invalid host key", http.StatusForbidden)
			return
		}
		isHost = true
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{
		id:      uuid.NewString(),
		matchID: matchID,
		send:    make(chan outboundMessage, 16),
	}
	h.hub.register(c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	var playerID string
	left := false
	if nickname != "" {
		player, _, err := h.orch.Join(r.Context(), app.JoinInput{
			MatchID:   matchID,
			Nickname:  nickname,
			Avatar:    r.URL.Query().Get("avatar"),
			City:      r.URL.Query().Get("city"),
			SessionID: c.id,
		})
		if err != nil {
			h.sendError(c, err)
			h.hub.unregister(c)
			<-writerDone
			return
		}
		playerID = player.ID
	}

	// Reconnecting clients rebuild their view from this snapshot.
	if st, err := h.orch.State(r.Context(), matchID); err == nil {
		h.hub.Send(c.id, app.EventState, st)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if h.dispatch(r.Context(), c, inbound, matchID, playerID, isHost) {
			left = true
			break
		}
	}

	h.hub.unregister(c)
	<-writerDone
	if playerID != "" && !left {
		if err := h.orch.Disconnect(context.Background(), matchID, playerID); err != nil {
			log.Printf("detach session for player %s: %v", playerID, err)
		}
	}
}

// dispatch routes one inbound command. It returns true when the client asked
// to leave for good.
func (h *WSHandler) dispatch(ctx context.Context, c *client, inbound inboundMessage, matchID, playerID string, isHost bool) (leave bool) {
	switch inbound.Type {
	case "answer":
		if playerID == "" {
			h.sendError(c, domain.ErrPlayerNotFound)
			return false
		}
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.hub.Send(c.id, app.EventError, errorPayload{Kind: "invalid_content", Message: "invalid answer payload"})
			return false
		}
		_, err := h.orch.SubmitAnswer(ctx, app.SubmitInput{
			MatchID:           matchID,
			PlayerID:          playerID,
			QuestionID:        payload.QuestionID,
			Choice:            payload.Choice,
			ReportedLatencyMs: payload.LatencyMs,
			SessionID:         c.id,
		})
		if err != nil {
			h.sendError(c, err)
		}
	case "leave":
		if playerID == "" {
			return false
		}
		if err := h.orch.Leave(ctx, matchID, playerID); err != nil {
			h.sendError(c, err)
			return false
		}
		return true
	case "start", "advance", "reveal", "stretch", "pause", "resume", "abandon":
		if !isHost {
			h.sendError(c, domain.ErrUnauthorized)
			return false
		}
		var err error
		switch inbound.Type {
		case "start":
			err = h.orch.Start(ctx, matchID)
		case "advance":
			err = h.orch.Advance(ctx, matchID)
		case "reveal":
			err = h.orch.Reveal(ctx, matchID)
		case "stretch":
			err = h.orch.TriggerStretch(ctx, matchID)
		case "pause":
			err = h.orch.Pause(ctx, matchID)
		case "resume":
			err = h.orch.Resume(ctx, matchID)
		case "abandon":
			err = h.orch.Abandon(ctx, matchID)
		}
		if err != nil {
			h.sendError(c, err)
		}
	default:
		h.hub.Send(c.id, app.EventError, errorPayload{Kind: "invalid_content", Message: "unsupported message type"})
	}
	return false
}

// sendError reports a failure to the originating session only; errors are
// never broadcast to the room.
func (h *WSHandler) sendError(c *client, err error) {
	h.hub.Send(c.id, app.EventError, errorPayload{Kind: domain.Kind(err), Message: err.Error()})
}
