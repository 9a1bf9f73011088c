package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/openvillage/plaza/internal/models"
)

// DataStore defines the interface for persistent storage of producers, tasks,
// and scorecards. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Producer operations
	CreateProducer(ctx context.Context, publicKey, name, email string) (*models.Producer, error)
	GetProducerByID(ctx context.Context, id uuid.UUID) (*models.Producer, error)
	GetProducerByPublicKey(ctx context.Context, publicKey string) (*models.Producer, error)
	CountProducers(ctx context.Context) (int64, error)

	// Task operations. CreateTask assigns the dispatch ordinal (seq).
	CreateTask(ctx context.Context, title, description, createdBy string) (*models.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListTasks(ctx context.Context, status string, limit, offset int) ([]models.Task, int, error)
	ClaimTask(ctx context.Context, id uuid.UUID, assignee string) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string) (*models.Task, error)
	UpdateTaskProgress(ctx context.Context, id uuid.UUID, progress float64) error

	// Scorecard operations. Records are opaque JSON.
	UpsertScorecard(ctx context.Context, sender string, record json.RawMessage) error
	GetScorecard(ctx context.Context, sender string) (*models.Scorecard, error)
}
