package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/openvillage/plaza/internal/crypto"
	"github.com/openvillage/plaza/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the default backing
// store when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/plaza.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/plaza.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS producers (
		id TEXT PRIMARY KEY,
		public_key TEXT UNIQUE NOT NULL,
		name TEXT DEFAULT '',
		email TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		seq INTEGER UNIQUE NOT NULL,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		progress REAL NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		assigned_to TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS scorecards (
		sender TEXT PRIMARY KEY,
		record TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_producers_public_key ON producers(public_key);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_seq ON tasks(seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateProducer creates a new producer record.
func (s *SQLiteStore) CreateProducer(ctx context.Context, publicKey, name, email string) (*models.Producer, error) {
	id := crypto.NewUUIDv7().String()
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO producers (id, public_key, name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, publicKey, name, email, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetProducerByID(ctx, uuid.MustParse(id))
}

func (s *SQLiteStore) scanProducer(row *sql.Row) (*models.Producer, error) {
	p := &models.Producer{}
	var idStr string
	err := row.Scan(&idStr, &p.PublicKey, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProducerByID retrieves a producer by ID.
func (s *SQLiteStore) GetProducerByID(ctx context.Context, id uuid.UUID) (*models.Producer, error) {
	return s.scanProducer(s.db.QueryRowContext(ctx, `
		SELECT id, public_key, name, email, created_at, updated_at
		FROM producers WHERE id = ?
	`, id.String()))
}

// GetProducerByPublicKey retrieves a producer by public key.
func (s *SQLiteStore) GetProducerByPublicKey(ctx context.Context, publicKey string) (*models.Producer, error) {
	return s.scanProducer(s.db.QueryRowContext(ctx, `
		SELECT id, public_key, name, email, created_at, updated_at
		FROM producers WHERE public_key = ?
	`, publicKey))
}

// CountProducers returns the number of registered producers.
func (s *SQLiteStore) CountProducers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM producers`).Scan(&count)
	return count, err
}

const sqliteTaskColumns = "id, seq, title, description, status, progress, created_by, assigned_to, created_at, updated_at"

func scanSQLiteTask(row *sql.Row) (*models.Task, error) {
	t := &models.Task{}
	var idStr string
	err := row.Scan(&idStr, &t.Seq, &t.Title, &t.Description, &t.Status, &t.Progress,
		&t.CreatedBy, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTask creates a new pending task. The dispatch ordinal is assigned
// inside a transaction to keep it monotonic.
func (s *SQLiteStore) CreateTask(ctx context.Context, title, description, createdBy string) (*models.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks`).Scan(&seq); err != nil {
		return nil, err
	}

	id := crypto.NewUUIDv7().String()
	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, seq, title, description, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, seq, title, description, createdBy, now, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetTask(ctx, uuid.MustParse(id))
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanSQLiteTask(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteTaskColumns+` FROM tasks WHERE id = ?
	`, id.String()))
}

// ListTasks retrieves tasks with optional status filter and pagination,
// newest dispatch first.
func (s *SQLiteStore) ListTasks(ctx context.Context, status string, limit, offset int) ([]models.Task, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks WHERE (? = '' OR status = ?)
	`, status, status).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteTaskColumns+` FROM tasks
		WHERE (? = '' OR status = ?)
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`, status, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		var idStr string
		err := rows.Scan(&idStr, &t.Seq, &t.Title, &t.Description, &t.Status, &t.Progress,
			&t.CreatedBy, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		t.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}

	return tasks, total, nil
}

// ClaimTask atomically moves a pending task to claimed for the given
// assignee. Returns nil when the task is missing or already claimed.
func (s *SQLiteStore) ClaimTask(ctx context.Context, id uuid.UUID, assignee string) (*models.Task, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'claimed', assigned_to = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, assignee, time.Now(), id.String())
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetTask(ctx, id)
}

// UpdateTaskStatus moves a task to a new status.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string) (*models.Task, error) {
	query := `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`
	if status == models.TaskCompleted {
		query = `UPDATE tasks SET status = ?, updated_at = ?, progress = 100 WHERE id = ?`
	}
	res, err := s.db.ExecContext(ctx, query, status, time.Now(), id.String())
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetTask(ctx, id)
}

// UpdateTaskProgress sets a task's progress percentage.
func (s *SQLiteStore) UpdateTaskProgress(ctx context.Context, id uuid.UUID, progress float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, time.Now(), id.String())
	return err
}

// UpsertScorecard stores a producer's scoring record verbatim.
func (s *SQLiteStore) UpsertScorecard(ctx context.Context, sender string, record json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scorecards (sender, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (sender) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at
	`, sender, string(record), time.Now())
	return err
}

// GetScorecard retrieves a producer's scoring record.
func (s *SQLiteStore) GetScorecard(ctx context.Context, sender string) (*models.Scorecard, error) {
	sc := &models.Scorecard{Sender: sender}
	var record string
	err := s.db.QueryRowContext(ctx, `
		SELECT record, updated_at FROM scorecards WHERE sender = ?
	`, sender).Scan(&record, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sc.Record = json.RawMessage(record)
	return sc, nil
}
