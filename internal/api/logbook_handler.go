package api

import (
	"net/http"

	"github.com/alecgard/teamhub/internal/logbook"
)

type logbookHandler struct {
	logbook *logbook.Service
}

func newLogbookHandler(svc *logbook.Service) *logbookHandler {
	return &logbookHandler{logbook: svc}
}

// List handles GET /api/v1/teams/{id}/logbook.
func (h *logbookHandler) List(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}
	entries, next, err := h.logbook.List(r.Context(), principal(r), logbook.Query{
		TeamID: teamID,
		Limit:  limit,
		Cursor: cursor,
	})
	if err != nil {
		writeServiceError(w, r, "list logbook", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries":     entries,
		"next_cursor": next,
	})
}

// Stats handles GET /api/v1/teams/{id}/logbook/stats.
func (h *logbookHandler) Stats(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	st, err := h.logbook.Stats(r.Context(), principal(r), teamID)
	if err != nil {
		writeServiceError(w, r, "logbook stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
