// Package web exposes the engine as a JSON API. It is a thin transport:
// every handler parses, calls the engine and renders, nothing more.
package web

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ananasregina/fnord/internal/core"
	"github.com/ananasregina/fnord/internal/fnord"
)

// Engine is the slice of core.Engine the handlers need.
type Engine interface {
	Create(ctx context.Context, s *fnord.Sighting) (*core.WriteResult, error)
	Get(ctx context.Context, id int64) (*fnord.Sighting, error)
	Update(ctx context.Context, id int64, u fnord.Update) (*core.WriteResult, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, offset, limit int) ([]*fnord.Sighting, error)
	Count(ctx context.Context) (int64, error)
	Search(ctx context.Context, query string, offset, limit int) (*core.SearchResult, error)
}

// Server is the fnord web server.
type Server struct {
	engine Engine
	router *gin.Engine
	log    *logrus.Logger
}

// NewServer creates a web server around the engine.
func NewServer(engine Engine, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{engine: engine, router: router, log: log}
	router.Use(s.requestLogger())

	api := router.Group("/api")
	{
		api.GET("/fnords", s.handleList)
		api.POST("/fnords", s.handleCreate)
		api.GET("/fnords/:id", s.handleGet)
		api.PUT("/fnords/:id", s.handleUpdate)
		api.DELETE("/fnords/:id", s.handleDelete)
		api.GET("/search", s.handleSearch)
		api.GET("/count", s.handleCount)
	}

	return s
}

// Run starts the web server on addr.
func (s *Server) Run(addr string) error {
	s.log.WithField("addr", addr).Info("web server listening")
	return s.router.Run(addr)
}

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := uuid.New().String()
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)

		c.Next()

		s.log.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
		}).Debug("request handled")
	}
}
