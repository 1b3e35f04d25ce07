// Package server exposes the agent over HTTP: a server-sent-events stream
// endpoint plus history browsing, metadata and draft download APIs.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"fable/internal/agent"
	"fable/internal/logging"
	"fable/internal/observability"
	"fable/internal/session"
)

// Config holds the HTTP surface settings.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	BasePath string `mapstructure:"base_path"`
	Debug    bool   `mapstructure:"debug"`
}

// Deps bundles everything the handlers need.
type Deps struct {
	Agent    *agent.Agent
	Sessions *session.Manager
	History  *session.HistoryManager
	Redis    redis.UniversalClient
	Tracer   *observability.TracerProvider
	Metrics  *observability.Metrics
}

// Server serializes turns per session id and streams agent output to
// clients.
type Server struct {
	config Config
	deps   Deps
	logger logging.Logger

	engine     *gin.Engine
	httpServer *http.Server

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(config Config, deps Deps) *Server {
	if config.BasePath == "" {
		config.BasePath = "/fable"
	}
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-User-Id", "X-Requested-With"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		config: config,
		deps:   deps,
		logger: logging.NewComponentLogger("server"),
		engine: engine,
		locks:  make(map[string]*sync.Mutex),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/actuator/ping", s.handlePing)
	s.engine.GET("/actuator/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	base := s.engine.Group(s.config.BasePath)
	base.POST("/stream/", s.handleStream)
	base.GET("/session-history/:session_id", s.handleGetSessionHistory)
	base.DELETE("/session-history/:session_id", s.handleClearSessionHistory)
	base.GET("/user-sessions", s.handleGetUserSessions)
	base.DELETE("/user-sessions", s.handleClearUserSessions)
	base.DELETE("/user-sessions/:session_id", s.handleRemoveUserSession)
	base.GET("/session-meta/:session_id", s.handleGetSessionMeta)
	base.PUT("/session-meta/:session_id", s.handleUpdateSessionMeta)
	base.GET("/download/:session_id", s.handleDownload)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.engine,
		ReadTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// sessionLock returns the mutex serializing turns for one session id.
func (s *Server) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// userID extracts the caller identity. Empty when the request carries none.
func userID(c *gin.Context) string {
	return c.GetHeader("X-User-Id")
}

// requireUser aborts with 401 for endpoints that need an identified caller.
func requireUser(c *gin.Context) (string, bool) {
	id := userID(c)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "UserId not found"})
		return "", false
	}
	return id, true
}
