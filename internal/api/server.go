// Package api exposes a small read-only HTTP surface over the
// checkpoint store, for the out-of-scope CLI/scheduler collaborator
// named in spec §6's "History/Checkpoint inspectors" contract. It never
// triggers an analysis run or mutates state; internal/engine is the
// only writer.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/marketintel/engine/internal/checkpoint"
)

// Server is the read-only introspection HTTP surface.
type Server struct {
	router      *gin.Engine
	checkpoints checkpoint.Store
	addr        string
	server      *http.Server
}

// Config configures the server's address and collaborator.
type Config struct {
	Host        string
	Port        int
	Checkpoints checkpoint.Store
}

// NewServer builds a Server and registers its routes.
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		router:      router,
		checkpoints: cfg.Checkpoints,
		addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	analyses := s.router.Group("/analyses")
	analyses.GET("/:thread_id/checkpoint", s.checkpointHandler)
	analyses.GET("/:thread_id/history", s.historyHandler)
}

// Start runs the HTTP server until Stop is called or it errors.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("starting introspection API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("stopping introspection API server")
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}
	return nil
}

// LoggerMiddleware logs every request's method, path, status, and
// latency, grounded on the teacher's Gin request logger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logEvent := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}
		logEvent.Msg("api request")
	}
}
