package models

// Timestamp sources for feed events.
const (
	TimestampSourceArtifact = "artifact" // recovered from the source artifact path
	TimestampSourceIngest   = "ingest"   // server receipt time
)

// FeedEvent represents one feed entry stored in Redis.
type FeedEvent struct {
	ID              string   `json:"id"` // ULID
	Sender          string   `json:"sender"`
	Message         string   `json:"message"`
	Timestamp       int64    `json:"timestamp"` // Unix ms
	TimestampSource string   `json:"timestamp_source,omitempty"`
	TaskID          string   `json:"task_id,omitempty"`
	Seq             *int64   `json:"seq,omitempty"` // dispatch ordinal of the bound task
	ProgressPercent *float64 `json:"progress_percent,omitempty"`
	Error           bool     `json:"error,omitempty"`
}
