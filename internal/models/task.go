package models

import (
	"time"

	"github.com/google/uuid"
)

// Task statuses.
const (
	TaskPending   = "pending"
	TaskClaimed   = "claimed"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Task represents a dispatched work item. Seq is a monotonically increasing
// dispatch ordinal; events bound to the task inherit it as their causal
// sequence.
type Task struct {
	ID          uuid.UUID `json:"id"`
	Seq         int64     `json:"seq"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress"`
	CreatedBy   string    `json:"created_by"`
	AssignedTo  string    `json:"assigned_to,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidTaskTransition reports whether a status change is allowed.
func ValidTaskTransition(from, to string) bool {
	switch from {
	case TaskPending:
		return to == TaskClaimed
	case TaskClaimed:
		return to == TaskCompleted || to == TaskFailed
	default:
		return false
	}
}
