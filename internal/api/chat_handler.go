package api

import (
	"net/http"

	"github.com/alecgard/teamhub/internal/chat"
)

type chatHandler struct {
	chat *chat.Service
}

func newChatHandler(svc *chat.Service) *chatHandler {
	return &chatHandler{chat: svc}
}

// CreateRoom handles POST /api/v1/chat/rooms.
func (h *chatHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var in chat.CreateRoomInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	for _, id := range in.ParticipantIDs {
		if !validUUID(id) {
			writeError(w, http.StatusUnprocessableEntity, "validation_error", "participant_ids must be UUIDs")
			return
		}
	}
	room, err := h.chat.CreateRoom(r.Context(), principal(r), in)
	if err != nil {
		writeServiceError(w, r, "create chat room", err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// Summaries handles GET /api/v1/chat/rooms/summary.
func (h *chatHandler) Summaries(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.chat.Summaries(r.Context(), principal(r))
	if err != nil {
		writeServiceError(w, r, "list chat rooms", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

// Unread handles GET /api/v1/chat/rooms/unread.
func (h *chatHandler) Unread(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.chat.Unread(r.Context(), principal(r))
	if err != nil {
		writeServiceError(w, r, "list unread chat rooms", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

// Messages handles GET /api/v1/chat/rooms/{id}/messages.
func (h *chatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}
	msgs, next, err := h.chat.Messages(r.Context(), principal(r), chat.MessageQuery{
		RoomID: id,
		Limit:  limit,
		Cursor: cursor,
	})
	if err != nil {
		writeServiceError(w, r, "list chat messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages":    msgs,
		"next_cursor": next,
	})
}

// Send handles POST /api/v1/chat/rooms/{id}/messages.
func (h *chatHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	msg, err := h.chat.Send(r.Context(), principal(r), id, req.Content)
	if err != nil {
		writeServiceError(w, r, "send chat message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead handles POST /api/v1/chat/rooms/{id}/read.
func (h *chatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := h.chat.MarkRead(r.Context(), principal(r), id)
	if err != nil {
		writeServiceError(w, r, "read chat room", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"read": n})
}
