package api

import (
	"net/http"

	"github.com/alecgard/teamhub/internal/task"
)

// tasksHandler serves task lists and the tasks inside them.
type tasksHandler struct {
	tasks *task.Service
}

func newTasksHandler(tasks *task.Service) *tasksHandler {
	return &tasksHandler{tasks: tasks}
}

// Lists handles GET /api/v1/boards/{id}/lists.
func (h *tasksHandler) Lists(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	lists, err := h.tasks.Lists(r.Context(), principal(r), boardID)
	if err != nil {
		writeServiceError(w, r, "list task lists", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lists": lists})
}

// CreateList handles POST /api/v1/boards/{id}/lists.
func (h *tasksHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in task.CreateListInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	l, err := h.tasks.CreateList(r.Context(), principal(r), boardID, in)
	if err != nil {
		writeServiceError(w, r, "create task list", err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// GetList handles GET /api/v1/lists/{id}.
func (h *tasksHandler) GetList(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.tasks.ListDetail(r.Context(), principal(r), id)
	if err != nil {
		writeServiceError(w, r, "get task list", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteList handles DELETE /api/v1/lists/{id}.
func (h *tasksHandler) DeleteList(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.tasks.DeleteList(r.Context(), principal(r), id); err != nil {
		writeServiceError(w, r, "delete task list", err)
		return
	}
	auditLog(r, "task_list.delete", "task_list", id)
	w.WriteHeader(http.StatusNoContent)
}

// Create handles POST /api/v1/lists/{id}/tasks.
func (h *tasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in task.CreateInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if in.AssigneeID != nil && *in.AssigneeID != "" && !validUUID(*in.AssigneeID) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "assignee_id must be a UUID")
		return
	}
	t, err := h.tasks.Create(r.Context(), principal(r), listID, in)
	if err != nil {
		writeServiceError(w, r, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/v1/tasks/{id}.
func (h *tasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.tasks.Get(r.Context(), principal(r), id)
	if err != nil {
		writeServiceError(w, r, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Update handles PATCH /api/v1/tasks/{id}.
func (h *tasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in task.UpdateInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if in.AssigneeID != nil && *in.AssigneeID != "" && !validUUID(*in.AssigneeID) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "assignee_id must be a UUID")
		return
	}
	t, err := h.tasks.Update(r.Context(), principal(r), id, in)
	if err != nil {
		writeServiceError(w, r, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/v1/tasks/{id}.
func (h *tasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.tasks.Delete(r.Context(), principal(r), id); err != nil {
		writeServiceError(w, r, "delete task", err)
		return
	}
	auditLog(r, "task.delete", "task", id)
	w.WriteHeader(http.StatusNoContent)
}

// MarkDone handles POST /api/v1/tasks/{id}/done.
func (h *tasksHandler) MarkDone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.tasks.MarkDone(r.Context(), principal(r), id)
	if err != nil {
		writeServiceError(w, r, "complete task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
