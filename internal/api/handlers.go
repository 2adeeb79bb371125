package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"taskflow/backend"
	"taskflow/internal/utils"
)

func abortError(c *gin.Context, status int, message string, errs ...string) {
	c.AbortWithStatusJSON(status, backend.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Errors:  errs,
	})
}

// reqLogger tags log lines with the request id.
func (s *Server) reqLogger(c *gin.Context) *zerolog.Logger {
	l := s.logger.With().Str("request_id", c.GetString(requestIDKey)).Logger()
	return &l
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortError(c, http.StatusBadRequest, "Invalid task id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"storage":  s.cfg.Storage,
		"embedder": s.cfg.Embedder,
	})
}

func (s *Server) handleList(c *gin.Context) {
	tasks, err := s.repo.List(c.Request.Context())
	if err != nil {
		s.reqLogger(c).Error().Err(err).Msg("list tasks failed")
		abortError(c, http.StatusInternalServerError, "Failed to fetch tasks")
		return
	}
	if tasks == nil {
		tasks = []backend.Task{}
	}
	c.JSON(http.StatusOK, backend.TaskListResponse{
		Tasks:     tasks,
		Total:     len(tasks),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleGet(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	task, err := s.repo.Get(c.Request.Context(), id)
	if err != nil {
		s.repoError(c, err, "get task failed")
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleCreate(c *gin.Context) {
	var req backend.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	task := backend.Task{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      req.Status,
	}
	if err := utils.ValidateNewTask(task); err != nil {
		abortError(c, http.StatusBadRequest, "Validation failed", utils.FieldMessages(err)...)
		return
	}
	if task.Status == "" {
		task.Status = backend.StatusTodo
	}

	vec := s.embed(c, backend.EmbeddingText(task.Title, task.Description))
	created, err := s.repo.Create(c.Request.Context(), &task, vec)
	if err != nil {
		s.reqLogger(c).Error().Err(err).Msg("create task failed")
		abortError(c, http.StatusInternalServerError, "Failed to create task")
		return
	}
	c.JSON(http.StatusCreated, backend.TaskResponse{Message: "Task created successfully", Task: *created})
}

func (s *Server) handleUpdate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var patch backend.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if patch.Empty() {
		abortError(c, http.StatusBadRequest, "Validation failed", "at least one of title, description or status is required")
		return
	}
	if err := utils.ValidatePatch(patch); err != nil {
		abortError(c, http.StatusBadRequest, "Validation failed", utils.FieldMessages(err)...)
		return
	}

	ctx := c.Request.Context()
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		s.repoError(c, err, "load task for update failed")
		return
	}

	var vec []float32
	if patch.ChangesText() {
		next := *current
		patch.Apply(&next)
		vec = s.embed(c, backend.EmbeddingText(next.Title, next.Description))
		if vec == nil {
			// The old vector describes text the task no longer has.
			vec = backend.ClearEmbedding
		}
	}

	updated, err := s.repo.Update(ctx, id, patch, vec)
	if err != nil {
		s.repoError(c, err, "update task failed")
		return
	}
	c.JSON(http.StatusOK, backend.TaskResponse{Message: "Task updated successfully", Task: *updated})
}

func (s *Server) handleDelete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deleted, err := s.repo.Delete(c.Request.Context(), id)
	if err != nil {
		s.repoError(c, err, "delete task failed")
		return
	}
	c.JSON(http.StatusOK, backend.TaskResponse{Message: "Task deleted successfully", Task: *deleted})
}

func (s *Server) handleSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		abortError(c, http.StatusBadRequest, "Query parameter is required")
		return
	}
	if len(query) > maxQueryLength {
		abortError(c, http.StatusBadRequest, "Query is too long")
		return
	}

	limit := DefaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortError(c, http.StatusBadRequest, "Limit must be a positive integer")
			return
		}
		limit = min(n, MaxSearchLimit)
	}

	if s.embedder == nil {
		abortError(c, http.StatusInternalServerError, "Semantic search is not configured")
		return
	}
	ctx := c.Request.Context()
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.reqLogger(c).Error().Err(err).Msg("embed search query failed")
		abortError(c, http.StatusInternalServerError, "Failed to generate embedding")
		return
	}

	hits, err := s.repo.Search(ctx, vec, limit)
	if err != nil {
		s.reqLogger(c).Error().Err(err).Msg("search failed")
		abortError(c, http.StatusInternalServerError, "Failed to search tasks")
		return
	}
	if hits == nil {
		hits = []backend.ScoredTask{}
	}
	c.JSON(http.StatusOK, hits)
}

// embed returns the vector for text, or nil when the embedder is missing or
// fails. Task writes never fail because of the embedder.
func (s *Server) embed(c *gin.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(c.Request.Context(), text)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.reqLogger(c).Warn().Err(err).Msg("embedding failed, storing task without vector")
		}
		return nil
	}
	return vec
}

func (s *Server) repoError(c *gin.Context, err error, msg string) {
	if errors.Is(err, backend.ErrNotFound) {
		abortError(c, http.StatusNotFound, "Task not found")
		return
	}
	s.reqLogger(c).Error().Err(err).Msg(msg)
	abortError(c, http.StatusInternalServerError, "Storage error")
}
