package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/app/registry"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/contracts"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/platform/logger"
)

// BroadcastHandler is the backend-facing push surface: the ride backend
// calls it to push frames down to connected clients without waiting for
// client traffic.
type BroadcastHandler struct {
	hub     *registry.Registry
	journal contracts.Journal
}

func NewBroadcastHandler(hub *registry.Registry, journal contracts.Journal) *BroadcastHandler {
	return &BroadcastHandler{hub: hub, journal: journal}
}

func (h *BroadcastHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req struct {
		Event  string          `json:"event"`
		Data   json.RawMessage `json:"data"`
		Room   string          `json:"room"`
		UserID domain.ID       `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.ErrorContext(r.Context(), "broadcast handler - bad request", "err", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Event == "" || len(req.Data) == 0 {
		log.ErrorContext(r.Context(), "broadcast handler - missing event or data")
		http.Error(w, "event and data are required", http.StatusBadRequest)
		return
	}

	frame := domain.ServerFrame{
		Event:  req.Event,
		Status: domain.StatusSuccess,
		Data:   req.Data,
	}
	delivered := true
	switch {
	case req.UserID != "":
		delivered = h.hub.EmitToUser(r.Context(), req.UserID.String(), frame)
	case req.Room != "":
		h.hub.BroadcastRoom(r.Context(), req.Room, frame)
	default:
		h.hub.Broadcast(r.Context(), frame)
	}
	if h.journal != nil {
		entry := domain.JournalEntry{Event: req.Event, Direction: "broadcast", Detail: req.Room, At: time.Now().UTC()}
		if err := h.journal.Append(r.Context(), entry); err != nil {
			log.DebugContext(r.Context(), "broadcast handler - journal append failed", "err", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    domain.StatusSuccess,
		"delivered": delivered,
	})
	log.InfoContext(r.Context(), "broadcast handler - frame pushed",
		"event", req.Event, "room", req.Room, "user_id", req.UserID)
}

func (h *BroadcastHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Journal exposes the recent relay traffic for debugging. Guarded by
// the same backend auth as Broadcast.
func (h *BroadcastHandler) Journal(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	if h.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	entries, err := h.journal.Recent(r.Context(), 100)
	if err != nil {
		log.ErrorContext(r.Context(), "broadcast handler - journal read failed", "err", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entries": entries})
}
