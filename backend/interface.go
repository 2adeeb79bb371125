package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by repositories when no task has the requested id.
var ErrNotFound = errors.New("task not found")

// Task represents a tracked work item
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskStatus represents the progress state of a task
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusDone       TaskStatus = "done"
)

// AllStatuses lists the statuses in workflow order.
var AllStatuses = []TaskStatus{StatusTodo, StatusInProgress, StatusDone}

// ParseStatus normalizes user or wire input into a TaskStatus.
// "in progress" and "in_progress" are accepted as spellings of in-progress.
func ParseStatus(s string) (TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo", "to-do":
		return StatusTodo, nil
	case "in-progress", "in progress", "in_progress", "inprogress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	}
	return "", fmt.Errorf("invalid status %q: must be one of todo, in-progress, done", s)
}

// Valid reports whether s is one of the canonical statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Next returns the status that follows s in the workflow, wrapping around.
func (s TaskStatus) Next() TaskStatus {
	for i, st := range AllStatuses {
		if st == s {
			return AllStatuses[(i+1)%len(AllStatuses)]
		}
	}
	return StatusTodo
}

// UnmarshalJSON accepts legacy spellings. Unknown values are kept verbatim
// so validation can report them.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, err := ParseStatus(raw); err == nil {
		*s = parsed
		return nil
	}
	*s = TaskStatus(raw)
	return nil
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil
}

// Apply copies the set fields of p onto t. It does not touch timestamps.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}

// ChangesText reports whether the patch touches a field that feeds the embedding.
func (p TaskPatch) ChangesText() bool {
	return p.Title != nil || p.Description != nil
}

// ScoredTask is a search hit.
type ScoredTask struct {
	Task
	Similarity float64 `json:"similarity"`
}

// Repository defines the interface for task storage backends.
// CRUD and search always operate on the same store.
type Repository interface {
	List(ctx context.Context) ([]Task, error)
	Get(ctx context.Context, id int64) (*Task, error)
	// Create assigns ID and timestamps. embedding may be nil.
	Create(ctx context.Context, task *Task, embedding []float32) (*Task, error)
	// Update applies patch. A nil embedding keeps the stored one; an empty
	// non-nil embedding (ClearEmbedding) removes it.
	Update(ctx context.Context, id int64, patch TaskPatch, embedding []float32) (*Task, error)
	// Delete removes the task and returns it as it was.
	Delete(ctx context.Context, id int64) (*Task, error)
	// Search ranks tasks that have an embedding by similarity to vector.
	Search(ctx context.Context, vector []float32, limit int) ([]ScoredTask, error)

	// Connection management
	Close() error
}

// ClearEmbedding passed to Repository.Update drops the stored vector, taking
// the task out of search.
var ClearEmbedding = []float32{}

// EmbeddingText is the text a task is embedded from.
func EmbeddingText(title, description string) string {
	if description == "" {
		return title
	}
	return title + "\n" + description
}
