package api

import (
	"net/http"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/role"
	"github.com/alecgard/teamhub/internal/user"
)

// usersHandler serves the admin account and role endpoints. Every route is
// mounted behind authz.Require(authz.IsAdmin).
type usersHandler struct {
	users *user.Service
	roles *role.Service
}

func newUsersHandler(users *user.Service, roles *role.Service) *usersHandler {
	return &usersHandler{users: users, roles: roles}
}

// ListUsers handles GET /api/v1/admin/users.
func (h *usersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeServiceError(w, r, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
	})
}

// GetUser handles GET /api/v1/admin/users/{id}.
func (h *usersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// BlockUser handles POST /api/v1/admin/users/{id}/block.
func (h *usersHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
			return
		}
	}

	if err := h.users.Block(r.Context(), auth.UserFromContext(r.Context()).ID, id, req.Note); err != nil {
		writeServiceError(w, r, "block user", err)
		return
	}
	auditLog(r, "user.block", "user", id, "note", req.Note)
	w.WriteHeader(http.StatusNoContent)
}

// UnblockUser handles DELETE /api/v1/admin/users/{id}/block.
func (h *usersHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.users.Unblock(r.Context(), id); err != nil {
		writeServiceError(w, r, "unblock user", err)
		return
	}
	auditLog(r, "user.unblock", "user", id)
	w.WriteHeader(http.StatusNoContent)
}

// DeactivateUser handles POST /api/v1/admin/users/{id}/deactivate.
func (h *usersHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.users.Deactivate(r.Context(), auth.UserFromContext(r.Context()).ID, id); err != nil {
		writeServiceError(w, r, "deactivate user", err)
		return
	}
	auditLog(r, "user.deactivate", "user", id)
	w.WriteHeader(http.StatusNoContent)
}

// ActivateUser handles POST /api/v1/admin/users/{id}/activate.
func (h *usersHandler) ActivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.users.Activate(r.Context(), id); err != nil {
		writeServiceError(w, r, "activate user", err)
		return
	}
	auditLog(r, "user.activate", "user", id)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser handles DELETE /api/v1/admin/users/{id}.
func (h *usersHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.users.Delete(r.Context(), auth.UserFromContext(r.Context()).ID, id); err != nil {
		writeServiceError(w, r, "delete user", err)
		return
	}
	auditLog(r, "user.delete", "user", id)
	w.WriteHeader(http.StatusNoContent)
}

// PublicViewers handles GET /api/v1/users/viewers. It needs no session.
func (h *usersHandler) PublicViewers(w http.ResponseWriter, r *http.Request) {
	viewers, err := h.users.PublicViewers(r.Context())
	if err != nil {
		writeServiceError(w, r, "list viewers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"viewers": viewers,
	})
}

type roleView struct {
	UserID  string    `json:"user_id"`
	Stored  role.Role `json:"role"`
	Label   string    `json:"label"`
	Derived role.Role `json:"derived"`
	InSync  bool      `json:"in_sync"`
}

// InspectRole handles GET /api/v1/admin/users/{id}/role. It reports the
// stored role next to the one derived from current facts.
func (h *usersHandler) InspectRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "inspect role", err)
		return
	}
	derived, err := h.roles.Inspect(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "inspect role", err)
		return
	}
	writeJSON(w, http.StatusOK, roleView{
		UserID:  id,
		Stored:  u.Role,
		Label:   u.Role.Label(),
		Derived: derived,
		InSync:  derived == u.Role,
	})
}

// ElevateRole handles POST /api/v1/admin/users/{id}/role/elevate.
func (h *usersHandler) ElevateRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, "role.elevate", func(id string) error {
		return h.roles.Elevate(r.Context(), id)
	})
}

// DemoteRole handles POST /api/v1/admin/users/{id}/role/demote.
func (h *usersHandler) DemoteRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, "role.demote", func(id string) error {
		if id == auth.UserFromContext(r.Context()).ID {
			return user.ErrSelfAction
		}
		_, err := h.roles.Demote(r.Context(), id)
		return err
	})
}

// ResyncRole handles POST /api/v1/admin/users/{id}/role/resync.
func (h *usersHandler) ResyncRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, "role.resync", func(id string) error {
		_, err := h.roles.Resync(r.Context(), id)
		return err
	})
}

func (h *usersHandler) changeRole(w http.ResponseWriter, r *http.Request, action string, fn func(id string) error) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.users.Get(r.Context(), id); err != nil {
		writeServiceError(w, r, action, err)
		return
	}
	if err := fn(id); err != nil {
		writeServiceError(w, r, action, err)
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, action, err)
		return
	}
	auditLog(r, action, "user", id, "role", u.Role)
	writeJSON(w, http.StatusOK, u)
}
