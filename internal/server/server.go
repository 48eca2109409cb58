// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mbd888/blockphantom/internal/chain"
	"github.com/mbd888/blockphantom/internal/config"
	"github.com/mbd888/blockphantom/internal/health"
	"github.com/mbd888/blockphantom/internal/logging"
	"github.com/mbd888/blockphantom/internal/masumi"
	"github.com/mbd888/blockphantom/internal/metrics"
	"github.com/mbd888/blockphantom/internal/security"
	"github.com/mbd888/blockphantom/internal/validation"
	"github.com/mbd888/blockphantom/internal/walletrisk"
)

// Version is reported by / and /health. Overridden by cmd/server at build time.
var Version = "0.1.0"

const defaultDrainDelay = 5 * time.Second

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg        *config.Config
	clients    *chain.Clients
	masumi     *masumi.Client
	resolver   security.Resolver
	risk       *walletrisk.Service
	health     *health.Registry
	router     *gin.Engine
	httpSrv    *http.Server
	logger     *slog.Logger
	drainDelay time.Duration

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithChains sets the chain clients instead of building them from config (for testing)
func WithChains(c *chain.Clients) Option {
	return func(s *Server) {
		s.clients = c
	}
}

// WithMasumi sets a custom Masumi client
func WithMasumi(c *masumi.Client) Option {
	return func(s *Server) {
		s.masumi = c
	}
}

// WithResolver sets the resolver used to check payment callback URLs
func WithResolver(r security.Resolver) Option {
	return func(s *Server) {
		s.resolver = r
	}
}

// WithDrainDelay sets how long Shutdown waits before closing listeners
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: defaultDrainDelay,
	}

	// Apply options first (may set clients/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Chain clients: live when a provider key is configured, mock otherwise
	if s.clients == nil {
		clients, err := chain.NewClients(ctx, chain.Config{
			AlchemyAPIKey:     cfg.AlchemyAPIKey,
			AlchemyNetwork:    cfg.AlchemyNetwork,
			AlchemyURL:        cfg.AlchemyURL,
			BlockfrostAPIKey:  cfg.BlockfrostAPIKey,
			BlockfrostNetwork: cfg.BlockfrostNetwork,
			BlockfrostURL:     cfg.BlockfrostURL,
			Timeout:           cfg.UpstreamTimeout,
		}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create chain clients: %w", err)
		}
		s.clients = clients
	}

	if s.masumi == nil {
		s.masumi = masumi.NewClient(masumi.Config{
			RegistryURL: cfg.MasumiRegistryURL,
			PaymentURL:  cfg.MasumiPaymentURL,
			APIKey:      cfg.MasumiAPIKey,
		}, nil)
	}

	s.risk = walletrisk.NewService(s.clients, walletrisk.Config{
		MaxTransfers:         cfg.MaxTransfers,
		FallbackOnFetchError: cfg.FallbackOnFetchError,
		AgentID:              cfg.MasumiAgentID,
	}, walletrisk.WithDecisionLogger(s.masumi))
	if cfg.MasumiAgentID != "" {
		s.logger.Info("decision logging enabled", "agent_id", cfg.MasumiAgentID)
	}

	s.health = health.NewRegistry()
	for _, c := range s.clients.All() {
		name := string(c.Chain())
		s.health.Register(name, health.PingChecker(name, c.Mode(), c))
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Keep an ID set upstream (load balancer, frontend)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger.With("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/", s.infoHandler)

	// Wallet risk, transaction lookup, report download
	walletrisk.NewHandler(s.risk).RegisterRoutes(s.router.Group(""))

	// Payment flow and agent registry
	masumi.NewHandler(s.masumi, s.resolver).RegisterRoutes(s.router.Group("/masumi"))
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	chains := gin.H{}
	for _, cl := range s.clients.All() {
		chains[string(cl.Chain())] = cl.Mode()
	}
	c.JSON(http.StatusOK, gin.H{
		"name":        "BlockPhantom",
		"description": "Wallet risk reports for Ethereum and Cardano",
		"version":     Version,
		"chains":      chains,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Upstream calls may take up to UPSTREAM_TIMEOUT before rendering starts
		WriteTimeout: s.cfg.UpstreamTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Let in-flight decision posts finish
	s.risk.Wait()
	s.logger.Info("decision log drained")

	s.clients.Close()
	s.logger.Info("chain clients closed")

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
