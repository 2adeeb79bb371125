// Package postgres implements backend.Repository on PostgreSQL with the
// pgvector extension. Ranking is delegated to the database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"taskflow/backend"
)

// Backend is a PostgreSQL-backed task repository.
type Backend struct {
	pool       *pgxpool.Pool
	dimensions int
}

// New connects to url and ensures the schema exists. dimensions sizes the
// vector column and must match the embedder in use.
func New(ctx context.Context, url string, dimensions int) (*Backend, error) {
	// The vector type must exist before pooled connections register it.
	if err := ensureExtension(ctx, url); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	b := &Backend{pool: pool, dimensions: dimensions}
	if err := b.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func ensureExtension(ctx context.Context, url string) error {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()
	if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	return nil
}

// EnsureTable creates the tasks table if it doesn't exist.
func (b *Backend) EnsureTable(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS tasks (
			id          BIGSERIAL PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'todo',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			embedding   vector(%d)
		)`, b.dimensions))
	if err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	_, err = b.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`)
	return err
}

const taskColumns = "id, title, description, status, created_at, updated_at"

func scanTask(row pgx.Row) (*backend.Task, error) {
	var t backend.Task
	var status string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, backend.ErrNotFound
		}
		return nil, err
	}
	t.Status = backend.TaskStatus(status)
	return &t, nil
}

// List returns all tasks ordered by id.
func (b *Backend) List(ctx context.Context) ([]backend.Task, error) {
	rows, err := b.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

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

// Get retrieves a single task by ID.
func (b *Backend) Get(ctx context.Context, id int64) (*backend.Task, error) {
	return scanTask(b.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

// Create inserts a new task.
func (b *Backend) Create(ctx context.Context, task *backend.Task, embedding []float32) (*backend.Task, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	status := task.Status
	if status == "" {
		status = backend.StatusTodo
	}
	row := b.pool.QueryRow(ctx, `
		INSERT INTO tasks (title, description, status, created_at, updated_at, embedding)
		VALUES ($1, $2, $3, $4, $4, $5::vector)
		RETURNING `+taskColumns,
		task.Title, task.Description, string(status), now, vectorParam(embedding))
	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// Update modifies the fields set in patch. A nil embedding keeps the stored
// vector and an empty one sets it to NULL.
func (b *Backend) Update(ctx context.Context, id int64, patch backend.TaskPatch, embedding []float32) (*backend.Task, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	// Build SET clause dynamically
	setClauses := "updated_at = $1"
	args := []any{now}
	argIdx := 2

	if patch.Title != nil {
		setClauses += fmt.Sprintf(", title = $%d", argIdx)
		args = append(args, *patch.Title)
		argIdx++
	}
	if patch.Description != nil {
		setClauses += fmt.Sprintf(", description = $%d", argIdx)
		args = append(args, *patch.Description)
		argIdx++
	}
	if patch.Status != nil {
		setClauses += fmt.Sprintf(", status = $%d", argIdx)
		args = append(args, string(*patch.Status))
		argIdx++
	}
	if embedding != nil {
		setClauses += fmt.Sprintf(", embedding = $%d", argIdx)
		args = append(args, vectorParam(embedding))
		argIdx++
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d RETURNING %s", setClauses, argIdx, taskColumns)
	t, err := scanTask(b.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	return t, nil
}

// Delete removes a task and returns it.
func (b *Backend) Delete(ctx context.Context, id int64) (*backend.Task, error) {
	t, err := scanTask(b.pool.QueryRow(ctx, `DELETE FROM tasks WHERE id = $1 RETURNING `+taskColumns, id))
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delete task %d: %w", id, err)
	}
	return t, nil
}

// Search orders by cosine distance using the pgvector <=> operator.
func (b *Backend) Search(ctx context.Context, vector []float32, limit int) ([]backend.ScoredTask, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := b.pool.Query(ctx, `
		SELECT `+taskColumns+`, 1 - (embedding <=> $1) AS similarity
		FROM tasks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1, id
		LIMIT $2`, vectorParam(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	defer rows.Close()

	hits := []backend.ScoredTask{}
	for rows.Next() {
		var h backend.ScoredTask
		var status string
		if err := rows.Scan(&h.ID, &h.Title, &h.Description, &status, &h.CreatedAt, &h.UpdatedAt, &h.Similarity); err != nil {
			return nil, err
		}
		h.Status = backend.TaskStatus(status)
		h.Similarity = backend.ClampSimilarity(h.Similarity)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

// vectorParam wraps v for the vector codec, or nil for SQL NULL.
func vectorParam(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}
