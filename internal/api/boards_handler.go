package api

import (
	"net/http"

	"github.com/alecgard/teamhub/internal/board"
)

type boardsHandler struct {
	boards *board.Service
}

func newBoardsHandler(boards *board.Service) *boardsHandler {
	return &boardsHandler{boards: boards}
}

// List handles GET /api/v1/teams/{id}/boards?filter=active|archived|all.
func (h *boardsHandler) List(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	filter, ok := board.ParseFilter(r.URL.Query().Get("filter"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_filter", "filter must be active, archived or all")
		return
	}
	boards, err := h.boards.List(r.Context(), principal(r), teamID, filter)
	if err != nil {
		writeServiceError(w, r, "list boards", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"boards": boards})
}

// Create handles POST /api/v1/teams/{id}/boards.
func (h *boardsHandler) Create(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in board.CreateInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	b, err := h.boards.Create(r.Context(), principal(r), teamID, in)
	if err != nil {
		writeServiceError(w, r, "create board", err)
		return
	}
	auditLog(r, "board.create", "board", b.ID, "team_id", teamID)
	writeJSON(w, http.StatusCreated, b)
}

// Get handles GET /api/v1/boards/{id}.
func (h *boardsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.boards.Get(r.Context(), principal(r), id)
	if err != nil {
		writeServiceError(w, r, "get board", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Update handles PATCH /api/v1/boards/{id}.
func (h *boardsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in board.UpdateInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	b, err := h.boards.Update(r.Context(), principal(r), id, in)
	if err != nil {
		writeServiceError(w, r, "update board", err)
		return
	}
	auditLog(r, "board.update", "board", id)
	writeJSON(w, http.StatusOK, b)
}

// Archive handles POST /api/v1/boards/{id}/archive.
func (h *boardsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.boards.Archive(r.Context(), principal(r), id)
	if err != nil {
		writeServiceError(w, r, "archive board", err)
		return
	}
	auditLog(r, "board.archive", "board", id)
	writeJSON(w, http.StatusOK, b)
}

// Restore handles POST /api/v1/boards/{id}/restore.
func (h *boardsHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.boards.Restore(r.Context(), principal(r), id)
	if err != nil {
		writeServiceError(w, r, "restore board", err)
		return
	}
	auditLog(r, "board.restore", "board", id)
	writeJSON(w, http.StatusOK, b)
}

// Delete handles DELETE /api/v1/boards/{id}.
func (h *boardsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.boards.Delete(r.Context(), principal(r), id); err != nil {
		writeServiceError(w, r, "delete board", err)
		return
	}
	auditLog(r, "board.delete", "board", id)
	w.WriteHeader(http.StatusNoContent)
}
