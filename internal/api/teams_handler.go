package api

import (
	"net/http"

	"github.com/alecgard/teamhub/internal/team"
)

// teamsHandler serves teams, memberships, join requests and invitations.
type teamsHandler struct {
	teams *team.Service
}

func newTeamsHandler(teams *team.Service) *teamsHandler {
	return &teamsHandler{teams: teams}
}

// statusParam reads an optional status filter.
func statusParam(w http.ResponseWriter, r *http.Request) (team.Status, bool) {
	s := team.Status(r.URL.Query().Get("status"))
	if s != "" && !s.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be pending, accepted or rejected")
		return "", false
	}
	return s, true
}

// ListMine handles GET /api/v1/teams.
func (h *teamsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	teams, err := h.teams.ListMine(r.Context(), principal(r))
	if err != nil {
		writeServiceError(w, r, "list teams", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"teams": teams})
}

// ListPublic handles GET /api/v1/teams/public.
func (h *teamsHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	teams, err := h.teams.ListPublic(r.Context())
	if err != nil {
		writeServiceError(w, r, "list public teams", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"teams": teams})
}

// Create handles POST /api/v1/teams.
func (h *teamsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in team.CreateInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	t, err := h.teams.Create(r.Context(), principal(r), in)
	if err != nil {
		writeServiceError(w, r, "create team", err)
		return
	}
	auditLog(r, "team.create", "team", t.ID, "name", t.Name)
	writeJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/v1/teams/{id}.
func (h *teamsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.teams.Get(r.Context(), principal(r), id)
	if err != nil {
		writeServiceError(w, r, "get team", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Update handles PATCH /api/v1/teams/{id}.
func (h *teamsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in team.UpdateInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	t, err := h.teams.Update(r.Context(), principal(r), id, in)
	if err != nil {
		writeServiceError(w, r, "update team", err)
		return
	}
	auditLog(r, "team.update", "team", id)
	writeJSON(w, http.StatusOK, t)
}

// SetLocked handles PUT /api/v1/teams/{id}/lock.
func (h *teamsHandler) SetLocked(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Locked *bool `json:"is_locked"`
	}
	if err := readJSON(r, &req); err != nil || req.Locked == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "is_locked is required")
		return
	}
	t, err := h.teams.SetLocked(r.Context(), principal(r), id, *req.Locked)
	if err != nil {
		writeServiceError(w, r, "lock team", err)
		return
	}
	auditLog(r, "team.lock", "team", id, "locked", *req.Locked)
	writeJSON(w, http.StatusOK, t)
}

// SetPublic handles PUT /api/v1/teams/{id}/visibility.
func (h *teamsHandler) SetPublic(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Public *bool `json:"is_public"`
	}
	if err := readJSON(r, &req); err != nil || req.Public == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "is_public is required")
		return
	}
	t, err := h.teams.SetPublic(r.Context(), principal(r), id, *req.Public)
	if err != nil {
		writeServiceError(w, r, "set team visibility", err)
		return
	}
	auditLog(r, "team.visibility", "team", id, "public", *req.Public)
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/v1/teams/{id}.
func (h *teamsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.teams.Delete(r.Context(), principal(r), id); err != nil {
		writeServiceError(w, r, "delete team", err)
		return
	}
	auditLog(r, "team.delete", "team", id)
	w.WriteHeader(http.StatusNoContent)
}

// Members handles GET /api/v1/teams/{id}/members.
func (h *teamsHandler) Members(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	members, err := h.teams.Members(r.Context(), principal(r), id)
	if err != nil {
		writeServiceError(w, r, "list members", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// AddMember handles POST /api/v1/teams/{id}/members.
func (h *teamsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID      string `json:"user_id"`
		Responsible string `json:"responsible"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if !validUUID(req.UserID) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "user_id must be a UUID")
		return
	}
	m, err := h.teams.AddMember(r.Context(), principal(r), id, req.UserID, req.Responsible)
	if err != nil {
		writeServiceError(w, r, "add member", err)
		return
	}
	auditLog(r, "team.member_add", "team", id, "member_id", req.UserID)
	writeJSON(w, http.StatusCreated, m)
}

// RemoveMember handles DELETE /api/v1/teams/{id}/members/{userID}.
func (h *teamsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.teams.RemoveMember(r.Context(), principal(r), id, userID); err != nil {
		writeServiceError(w, r, "remove member", err)
		return
	}
	auditLog(r, "team.member_remove", "team", id, "member_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// RequestJoin handles POST /api/v1/teams/{id}/join-requests.
func (h *teamsHandler) RequestJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	jr, err := h.teams.RequestJoin(r.Context(), principal(r), id)
	if err != nil {
		writeServiceError(w, r, "request join", err)
		return
	}
	writeJSON(w, http.StatusCreated, jr)
}

// JoinRequests handles GET /api/v1/teams/{id}/join-requests.
func (h *teamsHandler) JoinRequests(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	status, ok := statusParam(w, r)
	if !ok {
		return
	}
	reqs, err := h.teams.JoinRequests(r.Context(), principal(r), id, status)
	if err != nil {
		writeServiceError(w, r, "list join requests", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"join_requests": reqs})
}

// AcceptJoinRequest handles POST /api/v1/join-requests/{id}/accept.
func (h *teamsHandler) AcceptJoinRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveJoinRequest(w, r, true)
}

// RejectJoinRequest handles POST /api/v1/join-requests/{id}/reject.
func (h *teamsHandler) RejectJoinRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveJoinRequest(w, r, false)
}

func (h *teamsHandler) resolveJoinRequest(w http.ResponseWriter, r *http.Request, accept bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	jr, err := h.teams.ResolveJoinRequest(r.Context(), principal(r), id, accept)
	if err != nil {
		writeServiceError(w, r, "resolve join request", err)
		return
	}
	auditLog(r, "team.join_request_resolve", "join_request", id, "status", jr.Status)
	writeJSON(w, http.StatusOK, jr)
}

// Invite handles POST /api/v1/teams/{id}/invitations.
func (h *teamsHandler) Invite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if !validUUID(req.UserID) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "user_id must be a UUID")
		return
	}
	inv, err := h.teams.Invite(r.Context(), principal(r), id, req.UserID)
	if err != nil {
		writeServiceError(w, r, "invite", err)
		return
	}
	auditLog(r, "team.invite", "team", id, "invitee_id", req.UserID)
	writeJSON(w, http.StatusCreated, inv)
}

// Invitations handles GET /api/v1/invitations.
func (h *teamsHandler) Invitations(w http.ResponseWriter, r *http.Request) {
	status, ok := statusParam(w, r)
	if !ok {
		return
	}
	invs, err := h.teams.Invitations(r.Context(), principal(r), status)
	if err != nil {
		writeServiceError(w, r, "list invitations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invitations": invs})
}

// AcceptInvitation handles POST /api/v1/invitations/{id}/accept.
func (h *teamsHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	h.respondInvitation(w, r, true)
}

// RejectInvitation handles POST /api/v1/invitations/{id}/reject.
func (h *teamsHandler) RejectInvitation(w http.ResponseWriter, r *http.Request) {
	h.respondInvitation(w, r, false)
}

func (h *teamsHandler) respondInvitation(w http.ResponseWriter, r *http.Request, accept bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.teams.RespondInvitation(r.Context(), principal(r), id, accept)
	if err != nil {
		writeServiceError(w, r, "respond invitation", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
