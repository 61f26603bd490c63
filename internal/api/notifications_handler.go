package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alecgard/teamhub/internal/notification"
)

// streamKeepAlive is how often an idle stream gets a comment line so
// proxies keep the connection open.
const streamKeepAlive = 25 * time.Second

type notificationsHandler struct {
	notifications *notification.Service
	hub           *notification.Hub
}

func newNotificationsHandler(svc *notification.Service, hub *notification.Hub) *notificationsHandler {
	return &notificationsHandler{notifications: svc, hub: hub}
}

// List handles GET /api/v1/notifications?unvisited=true.
func (h *notificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}
	var unvisited bool
	if v := r.URL.Query().Get("unvisited"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "unvisited must be a boolean")
			return
		}
		unvisited = b
	}
	items, next, err := h.notifications.List(r.Context(), principal(r), notification.Query{
		UnvisitedOnly: unvisited,
		Limit:         limit,
		Cursor:        cursor,
	})
	if err != nil {
		writeServiceError(w, r, "list notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": items,
		"next_cursor":   next,
	})
}

// Count handles GET /api/v1/notifications/count.
func (h *notificationsHandler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.Unvisited(r.Context(), principal(r))
	if err != nil {
		writeServiceError(w, r, "count notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unvisited": n})
}

// Visit handles POST /api/v1/notifications/{id}/visit.
func (h *notificationsHandler) Visit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkVisited(r.Context(), principal(r), id); err != nil {
		writeServiceError(w, r, "visit notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VisitAll handles POST /api/v1/notifications/visit-all.
func (h *notificationsHandler) VisitAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAllVisited(r.Context(), principal(r))
	if err != nil {
		writeServiceError(w, r, "visit all notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"visited": n})
}

// Stream handles GET /api/v1/notifications/stream as server-sent events.
// Each notification is one "notification" event with a JSON payload.
func (h *notificationsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "live notifications are not configured")
		return
	}
	actor := principal(r)
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming is not supported")
		return
	}

	// The server write timeout would otherwise end every stream.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("clearing stream write deadline", "user_id", actor.ID, "error", err)
	}

	ctx := r.Context()
	sub, err := h.hub.Subscribe(ctx, actor.ID)
	if err != nil {
		slog.Error("opening notification stream", "user_id", actor.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "live notifications are unavailable")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
