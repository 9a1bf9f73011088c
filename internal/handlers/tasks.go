package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openvillage/plaza/internal/api/middleware"
	"github.com/openvillage/plaza/internal/metrics"
	"github.com/openvillage/plaza/internal/models"
)

// TasksResponse is the task listing response.
type TasksResponse struct {
	Tasks []models.Task `json:"tasks"`
	Total int           `json:"total"`
}

// ListTasks handles task listing with optional status filter.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", models.TaskPending, models.TaskClaimed, models.TaskCompleted, models.TaskFailed:
	default:
		h.Error(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	limit := parseLimit(r, 50, 200)
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	tasks, total, err := h.db.ListTasks(r.Context(), status, limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}

	h.JSON(w, http.StatusOK, TasksResponse{Tasks: tasks, Total: total})
}

// GetTask handles single task lookup.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid task ID format")
		return
	}

	task, err := h.db.GetTask(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if task == nil {
		h.Error(w, http.StatusNotFound, "task not found")
		return
	}

	h.JSON(w, http.StatusOK, task)
}

// ClaimTask handles a producer claiming a pending task (authenticated).
// Claiming emits a system event into the feed.
func (h *Handler) ClaimTask(w http.ResponseWriter, r *http.Request) {
	producer := middleware.GetProducerFromContext(r.Context())
	if producer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid task ID format")
		return
	}

	assignee := producer.Name
	if assignee == "" {
		assignee = producer.ID.String()
	}

	task, err := h.db.ClaimTask(r.Context(), id, assignee)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if task == nil {
		h.Error(w, http.StatusConflict, "task not found or already claimed")
		return
	}

	metrics.TaskTransitions.WithLabelValues(models.TaskClaimed).Inc()
	h.emitTaskEvent(r, task, fmt.Sprintf("%s claimed task: %s", assignee, task.Title))

	h.JSON(w, http.StatusOK, task)
}

// UpdateTaskStatusRequest is the task status transition body.
type UpdateTaskStatusRequest struct {
	Status string `json:"status"`
}

// UpdateTaskStatus handles task status transitions (authenticated). Only the
// assignee can move a claimed task, and only along valid transitions.
func (h *Handler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	producer := middleware.GetProducerFromContext(r.Context())
	if producer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid task ID format")
		return
	}

	var req UpdateTaskStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := h.db.GetTask(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if task == nil {
		h.Error(w, http.StatusNotFound, "task not found")
		return
	}

	assignee := producer.Name
	if assignee == "" {
		assignee = producer.ID.String()
	}
	if task.AssignedTo != assignee {
		h.Error(w, http.StatusForbidden, "task assigned to another producer")
		return
	}

	if !models.ValidTaskTransition(task.Status, req.Status) {
		h.Error(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("invalid transition %s -> %s", task.Status, req.Status))
		return
	}

	updated, err := h.db.UpdateTaskStatus(r.Context(), id, req.Status)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	metrics.TaskTransitions.WithLabelValues(req.Status).Inc()
	h.emitTaskEvent(r, updated, fmt.Sprintf("task %s: %s", req.Status, updated.Title))

	h.JSON(w, http.StatusOK, updated)
}

// emitTaskEvent records a task lifecycle change as a system feed event.
func (h *Handler) emitTaskEvent(r *http.Request, task *models.Task, message string) {
	seq := task.Seq
	ev := &models.FeedEvent{
		Sender:          "system",
		Message:         message,
		TimestampSource: models.TimestampSourceIngest,
		TaskID:          task.ID.String(),
		Seq:             &seq,
	}
	// Best-effort: the task change already landed.
	if err := h.redis.AddEvent(r.Context(), ev); err != nil {
		log.Warn().Err(err).Str("task_id", task.ID.String()).Msg("task lifecycle event not recorded")
	}
}
