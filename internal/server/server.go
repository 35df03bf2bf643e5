// Package server exposes read-only project progress over HTTP
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lamim/folioforge/internal/checkpoint"
	"github.com/lamim/folioforge/internal/progress"
	"github.com/lamim/folioforge/pkg/models"
)

// Server serves the status endpoints
type Server struct {
	engine  *gin.Engine
	tracker *progress.Tracker
	index   checkpoint.Index // optional
	logger  *slog.Logger
}

// ProjectSummary is one row of GET /api/projects
type ProjectSummary struct {
	ProjectID string       `json:"project_id"`
	Phase     models.Phase `json:"phase"`
	Progress  int          `json:"progress"`
}

// ProgressResponse is the body of GET /api/projects/:id/progress
type ProgressResponse struct {
	models.ProgressState
	OverallProgress int `json:"overall_progress"`
}

// New builds the router. index may be nil.
func New(tracker *progress.Tracker, index checkpoint.Index, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:  gin.New(),
		tracker: tracker,
		index:   index,
		logger:  logger.With("component", "status_server"),
	}
	s.engine.Use(s.recovery(), s.requestLog())

	s.engine.GET("/healthz", s.health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		api.GET("/projects", s.listProjects)
		api.GET("/projects/:id/progress", s.projectProgress)
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listProjects(c *gin.Context) {
	ids := s.tracker.Projects()
	active := make([]ProjectSummary, 0, len(ids))
	for _, id := range ids {
		state, ok := s.tracker.Get(id)
		if !ok {
			continue
		}
		active = append(active, ProjectSummary{
			ProjectID: id,
			Phase:     state.Phase,
			Progress:  s.tracker.CalculateOverallProgress(id),
		})
	}

	resp := gin.H{"active": active}
	if s.index != nil {
		entries, err := s.index.List(c.Request.Context())
		if err != nil {
			s.logger.Warn("Failed to list checkpoint index", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "checkpoint index unavailable"})
			return
		}
		if entries == nil {
			entries = []models.IndexEntry{}
		}
		resp["checkpoints"] = entries
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) projectProgress(c *gin.Context) {
	id := c.Param("id")
	state, ok := s.tracker.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("project %s is not tracked", id)})
		return
	}
	c.JSON(http.StatusOK, ProgressResponse{
		ProgressState:   state,
		OverallProgress: s.tracker.CalculateOverallProgress(id),
	})
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Panic recovered",
					"error", fmt.Sprintf("%v", err),
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
