// Package backendtest holds a conformance suite every backend.Repository must pass.
package backendtest

import (
	"context"
	"errors"
	"testing"

	"taskflow/backend"
)

// Factory returns a fresh, empty repository. Cleanup is the factory's job.
type Factory func(t *testing.T) backend.Repository

// Run executes the full suite against repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("CreateAssignsIDAndTimestamps", func(t *testing.T) { testCreate(t, newRepo(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newRepo(t)) })
	t.Run("ListOrder", func(t *testing.T) { testList(t, newRepo(t)) })
	t.Run("UpdatePartial", func(t *testing.T) { testUpdate(t, newRepo(t)) })
	t.Run("DeleteReturnsTask", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("SearchRanking", func(t *testing.T) { testSearch(t, newRepo(t)) })
	t.Run("UpdateEmbedding", func(t *testing.T) { testUpdateEmbedding(t, newRepo(t)) })
}

func mustCreate(t *testing.T, repo backend.Repository, title string, emb []float32) *backend.Task {
	t.Helper()
	task, err := repo.Create(context.Background(), &backend.Task{Title: title, Status: backend.StatusTodo}, emb)
	if err != nil {
		t.Fatalf("Create(%q) error: %v", title, err)
	}
	return task
}

func testCreate(t *testing.T, repo backend.Repository) {
	ctx := context.Background()
	created, err := repo.Create(ctx, &backend.Task{Title: "Write report", Description: "Q3"}, nil)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created.ID <= 0 {
		t.Errorf("ID = %d, want positive", created.ID)
	}
	if created.Status != backend.StatusTodo {
		t.Errorf("Status = %q, want default %q", created.Status, backend.StatusTodo)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Title != "Write report" || got.Description != "Q3" {
		t.Errorf("Get = %+v", got)
	}

	second := mustCreate(t, repo, "Second", nil)
	if second.ID == created.ID {
		t.Error("ids must be unique")
	}
}

func testGetMissing(t *testing.T, repo backend.Repository) {
	_, err := repo.Get(context.Background(), 9999)
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func testList(t *testing.T, repo backend.Repository) {
	a := mustCreate(t, repo, "A", nil)
	b := mustCreate(t, repo, "B", nil)

	tasks, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(tasks))
	}
	if tasks[0].ID != a.ID || tasks[1].ID != b.ID {
		t.Errorf("List order = [%d %d], want [%d %d]", tasks[0].ID, tasks[1].ID, a.ID, b.ID)
	}
}

func testUpdate(t *testing.T, repo backend.Repository) {
	ctx := context.Background()
	task := mustCreate(t, repo, "Draft", nil)

	done := backend.StatusDone
	updated, err := repo.Update(ctx, task.ID, backend.TaskPatch{Status: &done}, nil)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Status != backend.StatusDone || updated.Title != "Draft" {
		t.Errorf("Update = %+v", updated)
	}
	if updated.UpdatedAt.Before(task.UpdatedAt) {
		t.Error("UpdatedAt moved backwards")
	}

	_, err = repo.Update(ctx, 9999, backend.TaskPatch{Status: &done}, nil)
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func testDelete(t *testing.T, repo backend.Repository) {
	ctx := context.Background()
	task := mustCreate(t, repo, "Temp", nil)

	deleted, err := repo.Delete(ctx, task.ID)
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if deleted.ID != task.ID || deleted.Title != "Temp" {
		t.Errorf("Delete returned %+v", deleted)
	}
	if _, err := repo.Get(ctx, task.ID); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if _, err := repo.Delete(ctx, task.ID); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func testSearch(t *testing.T, repo backend.Repository) {
	ctx := context.Background()
	near := mustCreate(t, repo, "near", []float32{1, 0, 0})
	mid := mustCreate(t, repo, "mid", []float32{1, 1, 0})
	mustCreate(t, repo, "far", []float32{0, 0, 1})
	mustCreate(t, repo, "unembedded", nil)

	hits, err := repo.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].ID != near.ID || hits[1].ID != mid.ID {
		t.Errorf("hit order = [%d %d], want [%d %d]", hits[0].ID, hits[1].ID, near.ID, mid.ID)
	}
	if hits[0].Similarity < hits[1].Similarity {
		t.Error("hits not sorted by similarity descending")
	}
	for _, h := range hits {
		if h.Similarity < 0 || h.Similarity > 1 {
			t.Errorf("similarity %v out of [0,1]", h.Similarity)
		}
	}

	all, err := repo.Search(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	for _, h := range all {
		if h.Title == "unembedded" {
			t.Error("task without embedding should not be searchable")
		}
	}
}

func testUpdateEmbedding(t *testing.T, repo backend.Repository) {
	ctx := context.Background()
	task := mustCreate(t, repo, "buy milk", []float32{1, 0, 0})
	query := []float32{1, 0, 0}

	countHits := func() int {
		t.Helper()
		hits, err := repo.Search(ctx, query, 10)
		if err != nil {
			t.Fatalf("Search error: %v", err)
		}
		return len(hits)
	}

	done := backend.StatusDone
	if _, err := repo.Update(ctx, task.ID, backend.TaskPatch{Status: &done}, nil); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if n := countHits(); n != 1 {
		t.Fatalf("nil embedding should keep the vector, got %d hits", n)
	}

	title := "file taxes"
	if _, err := repo.Update(ctx, task.ID, backend.TaskPatch{Title: &title}, backend.ClearEmbedding); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if n := countHits(); n != 0 {
		t.Errorf("ClearEmbedding should drop the vector, got %d hits", n)
	}

	if _, err := repo.Update(ctx, task.ID, backend.TaskPatch{Title: &title}, []float32{0, 1, 0}); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	hits, err := repo.Search(ctx, []float32{0, 1, 0}, 10)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "file taxes" {
		t.Errorf("re-embedded task not found: %+v", hits)
	}
}
