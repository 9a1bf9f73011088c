package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openvillage/plaza/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS producers (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		public_key TEXT UNIQUE NOT NULL,
		name TEXT DEFAULT '',
		email TEXT DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		seq BIGINT GENERATED ALWAYS AS IDENTITY UNIQUE,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		assigned_to TEXT DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS scorecards (
		sender TEXT PRIMARY KEY,
		record JSONB NOT NULL,
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_producers_public_key ON producers(public_key);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_seq ON tasks(seq);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const producerColumns = "id, public_key, name, email, created_at, updated_at"

func scanProducer(row pgx.Row) (*models.Producer, error) {
	p := &models.Producer{}
	err := row.Scan(&p.ID, &p.PublicKey, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// CreateProducer creates a new producer record.
func (s *PostgresStore) CreateProducer(ctx context.Context, publicKey, name, email string) (*models.Producer, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO producers (public_key, name, email)
		VALUES ($1, $2, $3)
		RETURNING `+producerColumns, publicKey, name, email)

	p := &models.Producer{}
	err := row.Scan(&p.ID, &p.PublicKey, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProducerByID retrieves a producer by ID.
func (s *PostgresStore) GetProducerByID(ctx context.Context, id uuid.UUID) (*models.Producer, error) {
	return scanProducer(s.pool.QueryRow(ctx, `
		SELECT `+producerColumns+` FROM producers WHERE id = $1
	`, id))
}

// GetProducerByPublicKey retrieves a producer by public key.
func (s *PostgresStore) GetProducerByPublicKey(ctx context.Context, publicKey string) (*models.Producer, error) {
	return scanProducer(s.pool.QueryRow(ctx, `
		SELECT `+producerColumns+` FROM producers WHERE public_key = $1
	`, publicKey))
}

// CountProducers returns the number of registered producers.
func (s *PostgresStore) CountProducers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM producers`).Scan(&count)
	return count, err
}

const taskColumns = "id, seq, title, description, status, progress, created_by, assigned_to, created_at, updated_at"

func scanTask(row pgx.Row) (*models.Task, error) {
	t := &models.Task{}
	err := row.Scan(&t.ID, &t.Seq, &t.Title, &t.Description, &t.Status, &t.Progress,
		&t.CreatedBy, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// CreateTask creates a new pending task. The dispatch ordinal is assigned by
// the database.
func (s *PostgresStore) CreateTask(ctx context.Context, title, description, createdBy string) (*models.Task, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (title, description, created_by)
		VALUES ($1, $2, $3)
		RETURNING `+taskColumns, title, description, createdBy)

	t := &models.Task{}
	err := row.Scan(&t.ID, &t.Seq, &t.Title, &t.Description, &t.Status, &t.Progress,
		&t.CreatedBy, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask retrieves a task by ID.
func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = $1
	`, id))
}

// ListTasks retrieves tasks with optional status filter and pagination,
// newest dispatch first.
func (s *PostgresStore) ListTasks(ctx context.Context, status string, limit, offset int) ([]models.Task, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM tasks WHERE ($1 = '' OR status = $1)
	`, status).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE ($1 = '' OR status = $1)
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		err := rows.Scan(&t.ID, &t.Seq, &t.Title, &t.Description, &t.Status, &t.Progress,
			&t.CreatedBy, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}

	return tasks, total, nil
}

// ClaimTask atomically moves a pending task to claimed for the given
// assignee. Returns nil when the task is missing or already claimed.
func (s *PostgresStore) ClaimTask(ctx context.Context, id uuid.UUID, assignee string) (*models.Task, error) {
	return scanTask(s.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = 'claimed', assigned_to = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+taskColumns, id, assignee))
}

// UpdateTaskStatus moves a task to a new status.
func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string) (*models.Task, error) {
	progress := ""
	if status == models.TaskCompleted {
		progress = ", progress = 100"
	}
	return scanTask(s.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = $2, updated_at = NOW()`+progress+`
		WHERE id = $1
		RETURNING `+taskColumns, id, status))
}

// UpdateTaskProgress sets a task's progress percentage.
func (s *PostgresStore) UpdateTaskProgress(ctx context.Context, id uuid.UUID, progress float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET progress = $2, updated_at = NOW() WHERE id = $1
	`, id, progress)
	return err
}

// UpsertScorecard stores a producer's scoring record verbatim.
func (s *PostgresStore) UpsertScorecard(ctx context.Context, sender string, record json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scorecards (sender, record, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (sender) DO UPDATE SET record = $2, updated_at = NOW()
	`, sender, record)
	return err
}

// GetScorecard retrieves a producer's scoring record.
func (s *PostgresStore) GetScorecard(ctx context.Context, sender string) (*models.Scorecard, error) {
	sc := &models.Scorecard{Sender: sender}
	err := s.pool.QueryRow(ctx, `
		SELECT record, updated_at FROM scorecards WHERE sender = $1
	`, sender).Scan(&sc.Record, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sc, nil
}
