package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/db"
)

// maxPageSize bounds the limit query parameter.
const maxPageSize = 200

// pathID reads the URL parameter name and checks that it is a UUID. It
// writes a 400 and returns false otherwise.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a UUID")
		return "", false
	}
	return id, true
}

// validUUID reports whether s parses as a UUID.
func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// pageParams reads limit and cursor from the query string.
func pageParams(w http.ResponseWriter, r *http.Request) (limit int, cursor string, ok bool) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and "+strconv.Itoa(maxPageSize))
			return 0, "", false
		}
		limit = n
	}
	cursor = q.Get("cursor")
	if cursor != "" {
		if _, _, err := db.DecodeCursor(cursor); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_cursor", "cursor is malformed")
			return 0, "", false
		}
	}
	return limit, cursor, true
}

// principal returns the session user. Routes using it sit behind the
// session middleware, so nil only reaches services that reject it.
func principal(r *http.Request) *auth.User {
	return auth.UserFromContext(r.Context())
}
