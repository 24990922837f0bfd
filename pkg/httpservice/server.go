package httpservice

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/photo-gallery/pkg/errors"
	"github.com/yourorg/photo-gallery/pkg/logging"
	"github.com/yourorg/photo-gallery/pkg/middleware"
)

const healthPath = "/health"

// Server wraps a Gin server with configuration and middleware.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
	port       int
	draining   *atomic.Bool
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Logger       logging.Logger
	ServiceName  string
	Version      string

	// Security Configuration
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
	MaxBodySize    int64 // Maximum request body size in bytes; 0 disables the limit
	HSTSEnabled    bool
	HTTPSRedirect  bool

	// StaticDir, when set, is served for every GET that matches no API route.
	StaticDir string
	// SlowRequestThresholdMs enables slow request warnings when positive.
	SlowRequestThresholdMs int64
	// Telemetry receives slow request and server error signals; nil disables reporting.
	Telemetry middleware.TelemetryClient
}

// Handler defines an interface for registering HTTP handlers.
type Handler interface {
	Register(router gin.IRouter)
}

// NewServer creates a new HTTP server with the provided configuration and handlers.
func NewServer(cfg ServerConfig, handlers ...Handler) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "photo-gallery"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(RecoveryMiddleware(cfg.Logger))
	router.Use(middleware.RequestIDMiddleware(middleware.RequestIDHeader))
	router.Use(middleware.TracingMiddleware(cfg.Logger, cfg.ServiceName))
	router.Use(middleware.ContextLoggerMiddleware(cfg.Logger, cfg.ServiceName))
	router.Use(LoggingMiddleware(cfg.Logger))
	router.Use(middleware.SlowRequestMiddleware(cfg.SlowRequestThresholdMs, cfg.Telemetry, cfg.Logger))

	if cfg.HTTPSRedirect {
		router.Use(HTTPSRedirectMiddleware())
	}
	router.Use(SecurityHeadersMiddleware(SecurityHeadersConfig{HSTS: cfg.HSTSEnabled}))
	router.Use(CORSMiddleware(CORSConfig{AllowedOrigins: cfg.AllowedOrigins}))

	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimitMiddleware(RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		}))
	}
	if cfg.MaxBodySize > 0 {
		router.Use(RequestSizeLimitMiddleware(cfg.MaxBodySize, cfg.Logger))
	}
	router.Use(middleware.ErrorHandlerMiddleware(cfg.Logger, cfg.Telemetry))

	// Health turns 503 once shutdown starts so load balancers stop routing here.
	draining := &atomic.Bool{}
	router.GET(healthPath, func(c *gin.Context) {
		if draining.Load() {
			appErr := errors.NewServiceUnavailableError("shutting down")
			c.JSON(appErr.HTTPStatus, appErr.ToErrorResponse())
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName, "version": cfg.Version})
	})

	for _, handler := range handlers {
		handler.Register(router)
	}

	if cfg.StaticDir != "" {
		if err := serveStatic(router, cfg.StaticDir); err != nil {
			return nil, err
		}
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		logger:     cfg.Logger,
		port:       cfg.Port,
		draining:   draining,
	}, nil
}

// serveStatic mounts dir as the fallback for unmatched GET and HEAD requests.
func serveStatic(router *gin.Engine, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("static dir: %s is not a directory", dir)
	}

	files := http.FileServer(http.Dir(dir))
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "route not found"})
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	})
	return nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", logging.NewField("port", s.port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// StartTLS starts the HTTP server with TLS.
func (s *Server) StartTLS(certFile, keyFile string) error {
	s.logger.Info("Starting HTTP server with TLS", logging.NewField("port", s.port))

	if err := s.httpServer.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.draining.Store(true)
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying Gin router for advanced configuration.
func (s *Server) Router() *gin.Engine {
	return s.router
}
