package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/board"
	"github.com/alecgard/teamhub/internal/chat"
	"github.com/alecgard/teamhub/internal/db"
	"github.com/alecgard/teamhub/internal/notification"
	"github.com/alecgard/teamhub/internal/role"
	"github.com/alecgard/teamhub/internal/task"
	"github.com/alecgard/teamhub/internal/team"
	"github.com/alecgard/teamhub/internal/user"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

type errorMapping struct {
	status int
	code   string
}

// sentinels maps domain errors to responses. The first match wins, so more
// specific errors come first.
var sentinels = []struct {
	err error
	errorMapping
}{
	{authz.ErrPermissionDenied, errorMapping{http.StatusForbidden, "forbidden"}},
	{team.ErrTeamLocked, errorMapping{http.StatusForbidden, "team_locked"}},
	{team.ErrNotInvitee, errorMapping{http.StatusForbidden, "forbidden"}},
	{user.ErrAccountDisabled, errorMapping{http.StatusForbidden, "account_disabled"}},
	{user.ErrInvalidCredentials, errorMapping{http.StatusUnauthorized, "unauthorized"}},
	{role.ErrInconsistentRoleState, errorMapping{http.StatusInternalServerError, "inconsistent_role_state"}},

	{user.ErrNotFound, errorMapping{http.StatusNotFound, "not_found"}},
	{team.ErrNotFound, errorMapping{http.StatusNotFound, "not_found"}},
	{team.ErrUserNotFound, errorMapping{http.StatusNotFound, "user_not_found"}},
	{team.ErrNotMember, errorMapping{http.StatusNotFound, "not_member"}},
	{board.ErrNotFound, errorMapping{http.StatusNotFound, "not_found"}},
	{board.ErrTeamNotFound, errorMapping{http.StatusNotFound, "not_found"}},
	{task.ErrNotFound, errorMapping{http.StatusNotFound, "not_found"}},
	{task.ErrListNotFound, errorMapping{http.StatusNotFound, "not_found"}},
	{task.ErrBoardNotFound, errorMapping{http.StatusNotFound, "not_found"}},
	{notification.ErrNotFound, errorMapping{http.StatusNotFound, "not_found"}},
	{chat.ErrNotFound, errorMapping{http.StatusNotFound, "not_found"}},

	{user.ErrEmailTaken, errorMapping{http.StatusConflict, "email_taken"}},
	{user.ErrSelfAction, errorMapping{http.StatusConflict, "self_action"}},
	{team.ErrNameTaken, errorMapping{http.StatusConflict, "name_taken"}},
	{team.ErrAlreadyMember, errorMapping{http.StatusConflict, "already_member"}},
	{team.ErrDuplicateRequest, errorMapping{http.StatusConflict, "duplicate_request"}},
	{team.ErrDuplicateInvitation, errorMapping{http.StatusConflict, "duplicate_invitation"}},
	{team.ErrAlreadyResolved, errorMapping{http.StatusConflict, "already_resolved"}},
	{board.ErrTitleTaken, errorMapping{http.StatusConflict, "title_taken"}},
	{task.ErrPositionTaken, errorMapping{http.StatusConflict, "position_taken"}},
	{task.ErrBoardArchived, errorMapping{http.StatusConflict, "board_archived"}},

	{team.ErrInvalidName, errorMapping{http.StatusUnprocessableEntity, "validation_error"}},
	{board.ErrInvalidTitle, errorMapping{http.StatusUnprocessableEntity, "validation_error"}},
	{board.ErrInvalidFilter, errorMapping{http.StatusBadRequest, "invalid_filter"}},
	{task.ErrInvalidTitle, errorMapping{http.StatusUnprocessableEntity, "validation_error"}},
	{task.ErrInvalidPosition, errorMapping{http.StatusUnprocessableEntity, "validation_error"}},
	{task.ErrInvalidPriority, errorMapping{http.StatusUnprocessableEntity, "validation_error"}},
	{task.ErrAssigneeNotInTeam, errorMapping{http.StatusUnprocessableEntity, "validation_error"}},
	{chat.ErrNoParticipants, errorMapping{http.StatusUnprocessableEntity, "validation_error"}},
	{chat.ErrUnknownParticipant, errorMapping{http.StatusUnprocessableEntity, "validation_error"}},
	{chat.ErrEmptyMessage, errorMapping{http.StatusUnprocessableEntity, "validation_error"}},
	{chat.ErrMessageTooLong, errorMapping{http.StatusUnprocessableEntity, "validation_error"}},
}

// mapError picks the response for err. Unknown errors are internal.
func mapError(err error) (int, string, string) {
	var ve *user.ValidationError
	if errors.As(err, &ve) {
		return http.StatusUnprocessableEntity, "validation_error", ve.Error()
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.status, s.code, s.err.Error()
		}
	}
	if db.IsNoRows(err) {
		return http.StatusNotFound, "not_found", "resource not found"
	}
	return http.StatusInternalServerError, "internal_error", "internal server error"
}

// writeServiceError answers with the mapping of err and logs anything the
// client cannot fix.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "op", op, "error", err, "request_id", RequestIDFromContext(r.Context()))
	}
	if errors.Is(err, authz.ErrPermissionDenied) {
		message = err.Error()
	}
	writeError(w, status, code, message)
}

// isValidationError reports whether err maps to a 4xx input error.
func isValidationError(err error) bool {
	status, _, _ := mapError(err)
	return status == http.StatusUnprocessableEntity || status == http.StatusBadRequest
}
