// Package http exposes the progression engine over a JSON REST API built on
// gin. Handlers translate requests into commands and queries and map the
// DomainError kinds onto status codes.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ledojo/progression-engine/internal/application/command"
	"github.com/ledojo/progression-engine/internal/application/query"
	"github.com/ledojo/progression-engine/internal/interface/http/handlers"
	"github.com/ledojo/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the context handed to commands and queries.
	RequestTimeout time.Duration

	MaxHeaderBytes int

	// AllowedOrigins for CORS. "*" allows any origin.
	AllowedOrigins []string

	// Release switches gin to release mode.
	Release bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
		AllowedOrigins: []string{"*"},
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all handlers the routes dispatch to.
type Dependencies struct {
	// Commands (write side)
	InitializeUser  *command.InitializeUserHandler
	CompleteSession *command.CompleteSessionHandler
	SpinWheel       *command.SpinWheelHandler
	UnlockSkill     *command.UnlockSkillHandler
	AddTrick        *command.AddTrickHandler
	MarkTrickReady  *command.MarkTrickReadyHandler
	RateConfidence  *command.RateConfidenceHandler

	// Queries (read side)
	GetProgressionState *query.GetProgressionStateHandler
	GetXPHistory        *query.GetXPHistoryHandler

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	mu      sync.Mutex
	running bool
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.logger = s.logger.With(logger.Component("http"))
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewCompositeHealthChecker("")
	}

	s.router = s.newRouter()
	s.httpServer = &http.Server{
		Addr:              config.Address(),
		Handler:           s.router,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) newRouter() *gin.Engine {
	if s.config.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(handlers.Recovery(s.logger))
	r.Use(handlers.RequestID())
	r.Use(handlers.RequestLogger(s.logger, "/health", "/live"))
	r.Use(cors.New(s.corsConfig()))
	r.Use(handlers.Timeout(s.config.RequestTimeout))

	// ─────────────────────────────────────────────────────────────────────────
	// Health
	// ─────────────────────────────────────────────────────────────────────────
	r.GET("/health", handlers.Health(s.deps.HealthChecker))
	r.GET("/live", handlers.Live())

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	users := r.Group("/api/v1/users/:userId")
	users.POST("/init", s.handleInitializeUser)
	users.GET("/progression", s.handleGetProgressionState)
	users.GET("/xp-history", s.handleGetXPHistory)
	users.POST("/sessions", s.handleCompleteSession)
	users.POST("/wheel/spin", s.handleSpinWheel)
	users.POST("/skills/:skillId/unlock", s.handleUnlockSkill)
	users.POST("/tricks/:trickId", s.handleAddTrick)
	users.POST("/tricks/:trickId/ready", s.handleMarkTrickReady)
	users.POST("/tricks/:trickId/confidence", s.handleRateConfidence)

	r.NoRoute(func(c *gin.Context) {
		writeJSONError(c, http.StatusNotFound, "not_found", "route not found")
	})
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", handlers.RequestIDHeader}
	cfg.ExposeHeaders = []string{handlers.RequestIDHeader}
	cfg.MaxAge = 24 * time.Hour

	origins := s.config.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: handlers.GetRequestID(c),
	})
}

func writeJSONError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: handlers.GetRequestID(c),
	})
}
