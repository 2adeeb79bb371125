// Package api is the HTTP surface of the task repository.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"taskflow/backend"
	"taskflow/internal/embedding"
)

const (
	// DefaultSearchLimit is used when the search request has no limit.
	DefaultSearchLimit = 10
	// MaxSearchLimit caps the limit query parameter.
	MaxSearchLimit = 50
	maxQueryLength = 1000
)

// Config holds the optional server settings
type Config struct {
	// AuthToken enables bearer authentication on /api when non-empty.
	AuthToken string
	// Storage and Embedder name the configured drivers for /health.
	Storage  string
	Embedder string
	Logger   zerolog.Logger
}

// Server routes HTTP requests to a repository
type Server struct {
	repo     backend.Repository
	embedder embedding.Embedder
	cfg      Config
	logger   zerolog.Logger
	router   *gin.Engine
}

// NewServer creates a server. embedder may be nil, in which case tasks are
// stored without vectors and search fails.
func NewServer(repo backend.Repository, embedder embedding.Embedder, cfg Config) *Server {
	router := gin.New()

	s := &Server{
		repo:     repo,
		embedder: embedder,
		cfg:      cfg,
		logger:   cfg.Logger,
		router:   router,
	}

	router.Use(requestID(), accessLog(s.logger), recovery(s.logger))
	router.NoRoute(func(c *gin.Context) {
		abortError(c, http.StatusNotFound, "Route not found")
	})

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	if cfg.AuthToken != "" {
		api.Use(bearerAuth(cfg.AuthToken))
	}
	{
		api.GET("/tasks", s.handleList)
		api.POST("/tasks", s.handleCreate)
		api.GET("/tasks/search", s.handleSearch)
		api.GET("/tasks/:id", s.handleGet)
		api.PUT("/tasks/:id", s.handleUpdate)
		api.DELETE("/tasks/:id", s.handleDelete)
	}

	return s
}

// Handler returns the server as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}
