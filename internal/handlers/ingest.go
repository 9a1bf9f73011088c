package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openvillage/plaza/internal/api/middleware"
	"github.com/openvillage/plaza/internal/metrics"
	"github.com/openvillage/plaza/internal/models"
)

// artifactStampRegex matches the timestamp token embedded in working
// directory paths, e.g. runs/agent2/build/2026-08-23_14-30-05/log.txt.
var artifactStampRegex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}`)

const artifactStampLayout = "2006-01-02_15-04-05"

// timestampFromArtifact extracts the event's true production time from a
// timestamp token in its source artifact path. Returns ok=false when no
// token is parseable, in which case the caller falls back to receipt time.
func timestampFromArtifact(path string) (int64, bool) {
	token := artifactStampRegex.FindString(path)
	if token == "" {
		return 0, false
	}
	t, err := time.ParseInLocation(artifactStampLayout, token, time.UTC)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

// IngestRequest represents the producer-side event report.
type IngestRequest struct {
	Message         string   `json:"message"`
	TaskID          string   `json:"task_id,omitempty"`
	ArtifactPath    string   `json:"artifact_path,omitempty"`
	ProgressPercent *float64 `json:"progress_percent,omitempty"`
	Error           bool     `json:"error,omitempty"`
}

// IngestResponse acknowledges an ingested event.
type IngestResponse struct {
	MessageID       string `json:"message_id"`
	Timestamp       int64  `json:"timestamp"`
	TimestampSource string `json:"timestamp_source"`
}

// Ingest handles producer event reports (authenticated). The event's
// timestamp derives from the artifact path token when one is present,
// otherwise from server receipt time — the latter can lag the true event,
// which is why the source is reported back and on the feed.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	producer := middleware.GetProducerFromContext(r.Context())
	if producer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Message) > 4096 {
		h.Error(w, http.StatusUnprocessableEntity, "message too long (max 4096 bytes)")
		return
	}

	sender := producer.Name
	if sender == "" {
		sender = producer.ID.String()
	}

	ev := &models.FeedEvent{
		Sender:          sender,
		Message:         req.Message,
		TimestampSource: models.TimestampSourceIngest,
		ProgressPercent: req.ProgressPercent,
		Error:           req.Error,
	}

	if ts, ok := timestampFromArtifact(req.ArtifactPath); ok {
		ev.Timestamp = ts
		ev.TimestampSource = models.TimestampSourceArtifact
	}

	if req.TaskID != "" {
		taskUUID, err := uuid.Parse(req.TaskID)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid task ID format")
			return
		}
		task, err := h.db.GetTask(r.Context(), taskUUID)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "database error")
			return
		}
		if task == nil {
			h.Error(w, http.StatusUnprocessableEntity, "task not found")
			return
		}

		ev.TaskID = req.TaskID
		seq := task.Seq
		ev.Seq = &seq

		// Progress is advisory; the event still lands when the update fails.
		if req.ProgressPercent != nil {
			if err := h.db.UpdateTaskProgress(r.Context(), taskUUID, *req.ProgressPercent); err != nil {
				log.Warn().Err(err).Str("task_id", req.TaskID).Msg("task progress update failed")
			}
		}
	}

	if err := h.redis.AddEvent(r.Context(), ev); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store event")
		return
	}

	metrics.EventsIngested.WithLabelValues(ev.TimestampSource).Inc()

	h.JSON(w, http.StatusCreated, IngestResponse{
		MessageID:       ev.ID,
		Timestamp:       ev.Timestamp,
		TimestampSource: ev.TimestampSource,
	})
}
