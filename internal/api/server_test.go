package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/backend"
	"taskflow/backend/memory"
	"taskflow/internal/embedding"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Helpers
// =============================================================================

// stubEmbedder returns fixed vectors and fails for unknown texts.
type stubEmbedder map[string][]float32

func (s stubEmbedder) Dimensions() int { return 2 }

func (s stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s[text]; ok {
		return v, nil
	}
	return nil, errors.New("model unavailable")
}

type panicRepo struct{ backend.Repository }

func (panicRepo) List(ctx context.Context) ([]backend.Task, error) { panic("boom") }

func newTestServer(t *testing.T, emb embedding.Embedder, cfg Config) (*Server, *memory.Backend) {
	t.Helper()
	repo := memory.New()
	t.Cleanup(func() { _ = repo.Close() })
	if emb == nil {
		emb = embedding.NewHash(64)
	}
	cfg.Logger = zerolog.Nop()
	return NewServer(repo, emb, cfg), repo
}

func do(t *testing.T, s *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func createTask(t *testing.T, s *Server, title, desc string) backend.Task {
	t.Helper()
	w := do(t, s, http.MethodPost, "/api/tasks", backend.CreateTaskRequest{Title: title, Description: desc})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[backend.TaskResponse](t, w).Task
}

// =============================================================================
// CRUD
// =============================================================================

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{Storage: "memory", Embedder: "hash"})

	w := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "memory", body["storage"])
}

func TestListEmpty(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})

	w := do(t, s, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tasks":[]`)
	resp := decode[backend.TaskListResponse](t, w)
	assert.Equal(t, 0, resp.Total)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestCreateTask(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})

	w := do(t, s, http.MethodPost, "/api/tasks", `{"title":"  Write docs ","description":"api","status":"in progress"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[backend.TaskResponse](t, w)
	assert.Equal(t, "Task created successfully", resp.Message)
	assert.Equal(t, "Write docs", resp.Task.Title)
	assert.Equal(t, backend.StatusInProgress, resp.Task.Status)
	assert.NotZero(t, resp.Task.ID)

	list := decode[backend.TaskListResponse](t, do(t, s, http.MethodGet, "/api/tasks", nil))
	assert.Equal(t, 1, list.Total)
}

func TestCreateDefaultsStatus(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})
	task := createTask(t, s, "plain", "")
	assert.Equal(t, backend.StatusTodo, task.Status)
}

func TestCreateValidation(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})

	w := do(t, s, http.MethodPost, "/api/tasks", `{"title":"","status":"blocked"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode[backend.ErrorResponse](t, w)
	assert.Equal(t, "Validation failed", resp.Message)
	assert.Contains(t, resp.Errors, "title is required")
	assert.Len(t, resp.Errors, 2)

	w = do(t, s, http.MethodPost, "/api/tasks", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTask(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})
	created := createTask(t, s, "one", "")

	w := do(t, s, http.MethodGet, "/api/tasks/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[backend.Task](t, w).ID)

	w = do(t, s, http.MethodGet, "/api/tasks/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Task not found", decode[backend.ErrorResponse](t, w).Message)

	w = do(t, s, http.MethodGet, "/api/tasks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTask(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})
	createTask(t, s, "one", "keep me")

	w := do(t, s, http.MethodPut, "/api/tasks/1", `{"status":"done"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[backend.TaskResponse](t, w)
	assert.Equal(t, backend.StatusDone, resp.Task.Status)
	assert.Equal(t, "keep me", resp.Task.Description)
	assert.Equal(t, "Task updated successfully", resp.Message)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/tasks/1", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/tasks/1", `{"title":"  "}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPut, "/api/tasks/42", `{"title":"x"}`).Code)
}

func TestDeleteTask(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})
	createTask(t, s, "doomed", "")

	w := do(t, s, http.MethodDelete, "/api/tasks/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "doomed", decode[backend.TaskResponse](t, w).Task.Title)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/tasks/1", nil).Code)
}

// =============================================================================
// Search
// =============================================================================

func TestSearchRanksBySimilarity(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})
	createTask(t, s, "write quarterly report", "")
	createTask(t, s, "buy milk", "from the corner shop")

	w := do(t, s, http.MethodGet, "/api/tasks/search?query=milk", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	hits := decode[[]backend.ScoredTask](t, w)
	require.Len(t, hits, 2)
	assert.Equal(t, "buy milk", hits[0].Title)
	assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Similarity, 0.0)
		assert.LessOrEqual(t, h.Similarity, 1.0)
	}

	limited := decode[[]backend.ScoredTask](t, do(t, s, http.MethodGet, "/api/tasks/search?query=milk&limit=1", nil))
	assert.Len(t, limited, 1)
}

func TestSearchBadRequests(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/tasks/search", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/tasks/search?query=x&limit=zero", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/tasks/search?query=x&limit=-1", nil).Code)
}

func TestEmbeddingFailureStillStoresTask(t *testing.T) {
	emb := stubEmbedder{
		"ok task": {1, 0},
		"q":       {1, 0},
	}
	s, repo := newTestServer(t, emb, Config{})

	createTask(t, s, "ok task", "")
	broken := createTask(t, s, "broken", "")

	stored, err := repo.Get(context.Background(), broken.ID)
	require.NoError(t, err)
	assert.Equal(t, "broken", stored.Title)

	hits := decode[[]backend.ScoredTask](t, do(t, s, http.MethodGet, "/api/tasks/search?query=q", nil))
	require.Len(t, hits, 1, "tasks without an embedding are not searchable")
	assert.Equal(t, "ok task", hits[0].Title)

	w := do(t, s, http.MethodGet, "/api/tasks/search?query=unknown", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to generate embedding", decode[backend.ErrorResponse](t, w).Message)
}

func TestTextChangeWithFailedEmbeddingLeavesSearch(t *testing.T) {
	emb := stubEmbedder{
		"buy milk": {1, 0},
	}
	s, repo := newTestServer(t, emb, Config{})
	task := createTask(t, s, "buy milk", "")

	w := do(t, s, http.MethodPut, "/api/tasks/1", `{"title":"file taxes"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "file taxes", decode[backend.TaskResponse](t, w).Task.Title)

	hits, err := repo.Search(context.Background(), []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "a stale vector must not keep ranking task %d", task.ID)

	// A status-only change never touches the embedding.
	emb["file taxes"] = []float32{0, 1}
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/api/tasks/1", `{"title":"file taxes"}`).Code)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/api/tasks/1", `{"status":"done"}`).Code)
	hits, err = repo.Search(context.Background(), []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "file taxes", hits[0].Title)
}

// =============================================================================
// Middleware
// =============================================================================

func TestBearerAuth(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{AuthToken: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/tasks", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/tasks", nil, "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/tasks", nil, "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", nil).Code)
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})

	w := do(t, s, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = do(t, s, http.MethodGet, "/health", nil, RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRecoveryReturnsJSON(t *testing.T) {
	s := NewServer(panicRepo{}, nil, Config{Logger: zerolog.Nop()})

	w := do(t, s, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode[backend.ErrorResponse](t, w).Message)
}

func TestUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t, nil, Config{})
	w := do(t, s, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
