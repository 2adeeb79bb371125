// Package memory implements an in-process task repository.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskflow/backend"
)

type record struct {
	task      backend.Task
	embedding []float32
}

// Backend stores tasks in a map guarded by a mutex. Ids are sequential from 1.
type Backend struct {
	mu     sync.RWMutex
	nextID int64
	tasks  map[int64]*record
	now    func() time.Time
}

// New creates an empty in-memory backend
func New() *Backend {
	return &Backend{
		nextID: 1,
		tasks:  make(map[int64]*record),
		now:    time.Now,
	}
}

// List returns all tasks ordered by id.
func (b *Backend) List(ctx context.Context) ([]backend.Task, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tasks := make([]backend.Task, 0, len(b.tasks))
	for _, r := range b.tasks {
		tasks = append(tasks, r.task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (b *Backend) Get(ctx context.Context, id int64) (*backend.Task, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.tasks[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	t := r.task
	return &t, nil
}

func (b *Backend) Create(ctx context.Context, task *backend.Task, embedding []float32) (*backend.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	t := *task
	t.ID = b.nextID
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = backend.StatusTodo
	}
	b.nextID++
	b.tasks[t.ID] = &record{task: t, embedding: backend.Normalize(embedding)}
	return &t, nil
}

func (b *Backend) Update(ctx context.Context, id int64, patch backend.TaskPatch, embedding []float32) (*backend.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.tasks[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	patch.Apply(&r.task)
	r.task.UpdatedAt = b.now().UTC()
	switch {
	case embedding == nil:
	case len(embedding) == 0:
		r.embedding = nil
	default:
		r.embedding = backend.Normalize(embedding)
	}
	t := r.task
	return &t, nil
}

func (b *Backend) Delete(ctx context.Context, id int64) (*backend.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.tasks[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	delete(b.tasks, id)
	t := r.task
	return &t, nil
}

// Search scans every embedded task. Tasks stored without an embedding are skipped.
func (b *Backend) Search(ctx context.Context, vector []float32, limit int) ([]backend.ScoredTask, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	query := backend.Normalize(vector)
	top := backend.NewTopK(limit)
	for _, r := range b.tasks {
		if len(r.embedding) == 0 || len(r.embedding) != len(query) {
			continue
		}
		top.Offer(r.task, backend.Similarity(query, r.embedding))
	}
	return top.Results(), nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}
