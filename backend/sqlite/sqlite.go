package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
	"taskflow/backend"
)

// Backend implements backend.Repository using SQLite.
// Embeddings live in a BLOB column and search is a brute-force cosine scan.
type Backend struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLite backend and initializes the database schema
func New(path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	b := &Backend{db: db, now: time.Now}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return b, nil
}

// initSchema creates the database tables if they don't exist
func (b *Backend) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'todo',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			embedding BLOB
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	`

	if _, err := b.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}
	_, err := b.db.Exec(schema)
	return err
}

// scanner is an interface satisfied by both *sql.Rows and *sql.Row
type scanner interface {
	Scan(dest ...any) error
}

const taskColumns = "id, title, description, status, created_at, updated_at"

// scanTask scans a task from any scanner (Rows or Row)
func scanTask(s scanner) (*backend.Task, error) {
	var t backend.Task
	var status, createdStr, updatedStr string

	if err := s.Scan(&t.ID, &t.Title, &t.Description, &status, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	t.Status = backend.TaskStatus(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &t, nil
}

// List returns all tasks ordered by id
func (b *Backend) List(ctx context.Context) ([]backend.Task, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := []backend.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Get returns a single task by id
func (b *Backend) Get(ctx context.Context, id int64) (*backend.Task, error) {
	return getTask(ctx, b.db, id)
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q querier, id int64) (*backend.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	return t, err
}

// Create inserts a new task
func (b *Backend) Create(ctx context.Context, task *backend.Task, embedding []float32) (*backend.Task, error) {
	now := b.now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	status := task.Status
	if status == "" {
		status = backend.StatusTodo
	}

	res, err := b.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, status, created_at, updated_at, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		task.Title, task.Description, string(status), nowStr, nowStr, embeddingBlob(embedding),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &backend.Task{
		ID:          id,
		Title:       task.Title,
		Description: task.Description,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Update applies a partial update inside a transaction
func (b *Backend) Update(ctx context.Context, id int64, patch backend.TaskPatch, embedding []float32) (*backend.Task, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(t)
	t.UpdatedAt = b.now().UTC()

	if embedding != nil {
		_, err = tx.ExecContext(ctx,
			"UPDATE tasks SET title = ?, description = ?, status = ?, updated_at = ?, embedding = ? WHERE id = ?",
			t.Title, t.Description, string(t.Status), t.UpdatedAt.Format(time.RFC3339Nano),
			embeddingBlob(embedding), id,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE tasks SET title = ?, description = ?, status = ?, updated_at = ? WHERE id = ?",
			t.Title, t.Description, string(t.Status), t.UpdatedAt.Format(time.RFC3339Nano), id,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task and returns its last state
func (b *Backend) Delete(ctx context.Context, id int64) (*backend.Task, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("delete task %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

// Search ranks embedded tasks by cosine similarity to vector
func (b *Backend) Search(ctx context.Context, vector []float32, limit int) ([]backend.ScoredTask, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT "+taskColumns+", embedding FROM tasks WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	query := backend.Normalize(vector)
	top := backend.NewTopK(limit)
	for rows.Next() {
		var t backend.Task
		var status, createdStr, updatedStr string
		var blob []byte
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &status, &createdStr, &updatedStr, &blob); err != nil {
			return nil, err
		}
		vec := backend.DecodeVector(blob)
		if len(vec) != len(query) {
			continue
		}
		t.Status = backend.TaskStatus(status)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		top.Offer(t, backend.Similarity(query, vec))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return top.Results(), nil
}

// Close closes the database connection
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// embeddingBlob encodes v for the embedding column. An empty vector is NULL,
// which search skips.
func embeddingBlob(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return backend.EncodeVector(backend.Normalize(v))
}
