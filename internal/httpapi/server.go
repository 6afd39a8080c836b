// ABOUTME: HTTP API over the coaching pipeline for the mobile client
// ABOUTME: gin router with request logging and graceful shutdown
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/logging"
)

// Server is the sitjournal HTTP API
type Server struct {
	pipeline *core.Pipeline
	log      *logging.Logger
	router   *gin.Engine
}

// NewServer builds the router; all routes are registered up front
func NewServer(pipeline *core.Pipeline, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	s := &Server{
		pipeline: pipeline,
		log:      log.Named("httpapi"),
		router:   router,
	}

	router.GET("/healthcheck", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/skills", s.handleSkills)
		api.POST("/rollups/monthly/batch", s.handleMonthlyBatch)
	}

	user := api.Group("/users/:user")
	{
		user.POST("/entries", s.handleCreateEntry)
		user.GET("/entries", s.handleListEntries)
		user.GET("/entries/:id", s.handleGetEntry)
		user.PATCH("/entries/:id", s.handleEditEntry)
		user.DELETE("/entries/:id", s.handleDeleteEntry)
		user.POST("/entries/:id/analyze", s.handleAnalyzeEntry)

		user.GET("/progress", s.handleProgress)
		user.POST("/advance", s.handleAdvance)

		user.GET("/guidance", s.handleGuidance)
		user.POST("/guidance", s.handleRegenerateGuidance)
		user.GET("/nudges", s.handleNudges)

		user.GET("/rollups/:type", s.handleListRollups)
		user.POST("/rollups/weekly", s.handleWeekly)
		user.POST("/rollups/monthly", s.handleMonthly)
		user.POST("/backfill", s.handleBackfill)

		user.GET("/reminders", s.handleReminders)
		user.PUT("/reminders", s.handleSetReminders)

		user.POST("/ask", s.handleAsk)
		user.GET("/lookups/:name", s.handleLookup)
	}

	return s
}

// Handler exposes the router for tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("http api shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
