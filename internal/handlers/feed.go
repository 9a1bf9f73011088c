package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/openvillage/plaza/internal/metrics"
	"github.com/openvillage/plaza/internal/models"
)

// TaskInfo is the task correlation attached to feed items.
type TaskInfo struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// FeedItem is one element of the feed response.
type FeedItem struct {
	ID              string    `json:"id"`
	Sender          string    `json:"sender"`
	Message         string    `json:"message"`
	Timestamp       int64     `json:"timestamp"`
	TimestampSource string    `json:"timestamp_source,omitempty"`
	Seq             *int64    `json:"seq,omitempty"`
	ProgressPercent *float64  `json:"progress_percent,omitempty"`
	Task            *TaskInfo `json:"task,omitempty"`
	Error           bool      `json:"error,omitempty"`
}

// FeedResponse is the feed listing response.
type FeedResponse struct {
	Messages []FeedItem `json:"messages"`
	Count    int        `json:"count"`
}

// GetEvents handles the polling endpoint. Without a cursor it returns the
// most recent events; with since=<unix-ms> it returns events at or after the
// cursor. The boundary is inclusive — clients are expected to deduplicate.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 200)

	var since int64
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		s, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid since cursor")
			return
		}
		since = s
	}

	var events []models.FeedEvent
	var err error
	if since > 0 {
		events, err = h.redis.GetEventsSince(r.Context(), since, limit)
	} else {
		events, err = h.redis.GetRecentEvents(r.Context(), limit)
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch events")
		return
	}

	items := make([]FeedItem, 0, len(events))
	taskCache := make(map[string]*TaskInfo)

	for _, ev := range events {
		item := FeedItem{
			ID:              ev.ID,
			Sender:          ev.Sender,
			Message:         ev.Message,
			Timestamp:       ev.Timestamp,
			TimestampSource: ev.TimestampSource,
			Seq:             ev.Seq,
			ProgressPercent: ev.ProgressPercent,
			Error:           ev.Error,
		}
		if ev.TaskID != "" {
			item.Task = h.taskInfo(r, ev.TaskID, taskCache)
		}
		items = append(items, item)
	}

	h.JSON(w, http.StatusOK, FeedResponse{Messages: items, Count: len(items)})
}

// taskInfo resolves a task correlation, cached per request.
func (h *Handler) taskInfo(r *http.Request, taskID string, cache map[string]*TaskInfo) *TaskInfo {
	if info, ok := cache[taskID]; ok {
		return info
	}

	var info *TaskInfo
	if id, err := uuid.Parse(taskID); err == nil {
		if task, err := h.db.GetTask(r.Context(), id); err == nil && task != nil {
			info = &TaskInfo{ID: taskID, Title: task.Title, Status: task.Status}
		}
	}
	cache[taskID] = info
	return info
}

// SubmitRequest represents the operator submission body.
type SubmitRequest struct {
	Sender   string            `json:"sender"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SubmitResponse acknowledges an operator submission.
type SubmitResponse struct {
	MessageID string `json:"message_id"`
	TaskID    string `json:"task_id,omitempty"`
}

// SubmitEvent handles operator submissions. A "user" sender dispatches a task
// whose id comes back in the receipt; agents react to the task through the
// dispatcher, not through this endpoint.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Sender == "" {
		req.Sender = "user"
	}
	if len(req.Message) > 4096 {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		h.Error(w, http.StatusUnprocessableEntity, "message too long (max 4096 bytes)")
		return
	}

	ev := &models.FeedEvent{
		Sender:          req.Sender,
		Message:         req.Message,
		TimestampSource: models.TimestampSourceIngest,
	}

	var taskID string
	if req.Sender == "user" {
		task, err := h.db.CreateTask(r.Context(), taskTitle(req.Message), req.Message, req.Sender)
		if err != nil {
			metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
			h.Error(w, http.StatusInternalServerError, "failed to dispatch task")
			return
		}
		taskID = task.ID.String()
		ev.TaskID = taskID
		seq := task.Seq
		ev.Seq = &seq
		metrics.TasksDispatched.Inc()
	}

	if err := h.redis.AddEvent(r.Context(), ev); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		h.Error(w, http.StatusInternalServerError, "failed to store event")
		return
	}

	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	h.JSON(w, http.StatusCreated, SubmitResponse{MessageID: ev.ID, TaskID: taskID})
}

// taskTitle derives a short task title from the submitted message.
func taskTitle(message string) string {
	title := strings.TrimSpace(message)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	if len(title) > 80 {
		title = title[:80]
	}
	if title == "" {
		title = "untitled request"
	}
	return title
}
