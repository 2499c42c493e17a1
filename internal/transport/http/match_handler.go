package http

import (
	"encoding/json"
	"net/http"

	"dugout-trivia/internal/app"
	"dugout-trivia/internal/domain"
)

// MatchHandler exposes match creation over plain HTTP. The returned host key
// authorizes host commands on the websocket.
type MatchHandler struct {
	orch *app.Orchestrator
}

func NewMatchHandler(orch *app.Orchestrator) *MatchHandler {
	return &MatchHandler{orch: orch}
}

type createMatchRequest struct {
	PackID     string `json:"packId"`
	TimerSec   int    `json:"timerSec"`
	GrandSlam  bool   `json:"grandSlam"`
	SpeedBonus bool   `json:"speedBonus"`
}

type createMatchResponse struct {
	MatchID string `json:"matchId"`
	HostKey string `json:"hostKey"`
}

func (h *MatchHandler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PackID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := h.orch.CreateMatch(r.Context(), req.PackID, domain.Settings{
		TimerSec:   req.TimerSec,
		GrandSlam:  req.GrandSlam,
		SpeedBonus: req.SpeedBonus,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch domain.Kind(err) {
		case "not_found":
			status = http.StatusNotFound
		case "invalid_content":
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createMatchResponse{MatchID: m.ID, HostKey: m.HostKey})
}
