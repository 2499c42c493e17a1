package http

import (
	"sync"
)

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub tracks live websocket sessions grouped into per-match rooms and
// implements the orchestrator's Broadcaster port. Delivery is best-effort:
// a slow client has its oldest queued message dropped rather than blocking
// the room, which is safe because every state broadcast is a full snapshot.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	sessions map[string]*client
}

type client struct {
	id      string
	matchID string
	send    chan outboundMessage
}

func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[string]map[*client]struct{}),
		sessions: make(map[string]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.matchID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.matchID] = room
	}
	room[c] = struct{}{}
	h.sessions[c.id] = c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[c.matchID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.matchID)
		}
	}
	delete(h.sessions, c.id)
	close(c.send)
}

// Broadcast sends an event to every session in a match room.
func (h *Hub) Broadcast(matchID, event string, payload any) {
	msg := outboundMessage{Type: event, Payload: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[matchID] {
		c.enqueue(msg)
	}
}

// Send delivers an event to a single session, if still connected.
func (h *Hub) Send(sessionID, event string, payload any) {
	h.mu.RLock()
	c, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.enqueue(outboundMessage{Type: event, Payload: payload})
}

func (c *client) enqueue(msg outboundMessage) {
	select {
	case c.send <- msg:
	default:
		// drop the oldest queued message so a stalled reader cannot block
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}
