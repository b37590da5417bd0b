// Package http implements the HTTP boundary of the enrollment and workgroup
// engine. Routing and request decoding use Gin; every business decision stays
// in the application layer.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/encorelab/SCORE/pkg/logger"
)

// Server wraps the HTTP server and its routes.
type Server struct {
	engine  *gin.Engine
	srv     *http.Server
	handler *Handler
	log     *logger.Logger
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string

	// ReadTimeout / WriteTimeout / IdleTimeout bound connection handling.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ReleaseMode disables Gin's debug output.
	ReleaseMode bool
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
		ReleaseMode:  true,
	}
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(cfg ServerConfig, handler *Handler, log *logger.Logger) *Server {
	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(requestLogger(log), gin.Recovery())

	s := &Server{
		engine:  engine,
		handler: handler,
		log:     log.With(logger.Component("http")),
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}

	s.registerRoutes()
	return s
}

// Engine returns the underlying Gin engine. Used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handler.Health)
	s.engine.GET("/ready", s.handler.Ready)

	api := s.engine.Group("/api")

	student := api.Group("/student")
	{
		student.POST("/run/register", s.handler.RegisterRun)
		student.POST("/run/launch", s.handler.LaunchRun)
		student.GET("/run/info", s.handler.RunInfo)
		student.GET("/run/info-by-id", s.handler.RunInfoByID)
		student.GET("/runs", s.handler.StudentRuns)
		student.GET("/can-be-added-to-workgroup", s.handler.CanBeAddedToWorkgroup)
	}

	teacher := api.Group("/teacher")
	{
		teacher.GET("/run/:runId/attendance", s.handler.RunAttendance)
		teacher.GET("/run/:runId/attendance/export", s.handler.ExportRunAttendance)
		teacher.GET("/run/:runId/stats", s.handler.RunStats)
	}
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("http server starting", logger.String("addr", s.srv.Addr))

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}

// requestLogger logs one line per request and stamps a request id used as the
// correlation id for downstream events.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	l := log.With(logger.Component("http"))

	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ctxKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		l.Info("request",
			logger.String(logger.RequestIDKey, requestID),
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Latency(time.Since(start)),
		)
	}
}

const ctxKeyRequestID = "request_id"

// requestID returns the request id stamped by the logging middleware.
func requestID(c *gin.Context) string {
	return c.GetString(ctxKeyRequestID)
}
