package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"taskflow/backend"
	"taskflow/backend/backendtest"
)

// mustNewBackend creates an in-memory backend and registers cleanup
func mustNewBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// TestBackendImplementsInterface verifies the Backend type implements Repository.
func TestBackendImplementsInterface(t *testing.T) {
	var _ backend.Repository = (*Backend)(nil)
}

// TestRepositorySuite runs the shared repository conformance suite.
func TestRepositorySuite(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Repository {
		return mustNewBackend(t)
	})
}

// TestPersistenceAcrossReopen verifies tasks and embeddings survive closing the database.
func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")

	b, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	created, err := b.Create(ctx, &backend.Task{Title: "Persist me"}, []float32{0, 1})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get after reopen error: %v", err)
	}
	if got.Title != "Persist me" {
		t.Errorf("Title = %q, want %q", got.Title, "Persist me")
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}

	hits, err := reopened.Search(ctx, []float32{0, 1}, 5)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != created.ID {
		t.Errorf("Search after reopen = %+v", hits)
	}
}

// TestUpdateKeepsEmbeddingWhenNil verifies a status-only update leaves the vector searchable.
func TestUpdateKeepsEmbeddingWhenNil(t *testing.T) {
	ctx := context.Background()
	b := mustNewBackend(t)

	created, err := b.Create(ctx, &backend.Task{Title: "Vector"}, []float32{1, 0})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	done := backend.StatusDone
	if _, err := b.Update(ctx, created.ID, backend.TaskPatch{Status: &done}, nil); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	hits, err := b.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) != 1 || hits[0].Status != backend.StatusDone {
		t.Errorf("Search = %+v, want one done task", hits)
	}
}
