package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiriru/mistral-relay/pkg/config"
	"github.com/kiriru/mistral-relay/pkg/logger"
	"github.com/kiriru/mistral-relay/pkg/metrics"
	"github.com/kiriru/mistral-relay/pkg/version"
	"golang.org/x/sync/errgroup"
)

// Server is the relay HTTP server.
type Server struct {
	Router     *gin.Engine
	httpServer *http.Server
	config     *Config
	gate       *Gate
	forwarder  *Forwarder
	metrics    *metrics.Service
}

// Config holds server configuration
type Config struct {
	Server     config.ServerConfig
	Upstream   config.UpstreamConfig
	Normalizer config.NormalizerConfig
	Monitoring metrics.Config
}

// ConfigFrom extracts the relay settings from the application configuration.
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		Server:     cfg.Server,
		Upstream:   cfg.Upstream,
		Normalizer: cfg.Normalizer,
		Monitoring: metrics.Config{
			Enabled: cfg.Monitoring.Enabled,
			Path:    cfg.Monitoring.Path,
		},
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("host is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream base URL is required")
	}
	if _, err := url.Parse(c.Upstream.BaseURL); err != nil {
		return fmt.Errorf("invalid upstream base URL: %w", err)
	}
	if c.Monitoring.Enabled {
		if err := c.Monitoring.Validate(); err != nil {
			return fmt.Errorf("invalid monitoring config: %w", err)
		}
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// NewServer creates a new relay server instance. When manager is not nil the
// normalizer gate follows its configuration reloads.
func NewServer(ctx context.Context, cfg *Config, manager *config.Manager) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}
	log := logger.FromContext(ctx)
	upstream, err := NewUpstream(&cfg.Upstream, log)
	if err != nil {
		return nil, err
	}
	monitoring := cfg.Monitoring
	metricsService := metrics.NewServiceWithFallback(ctx, &monitoring)
	gate := NewGate(&cfg.Normalizer)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.RedirectTrailingSlash = false
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			p := param.Path
			if param.Request != nil && param.Request.URL != nil {
				p = param.Request.URL.EscapedPath()
			}
			return fmt.Sprintf("[%s] %s %s %d %s\n",
				param.TimeStamp.Format("2006-01-02 15:04:05"),
				param.Method,
				p,
				param.StatusCode,
				param.Latency,
			)
		},
	}))
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware(ctx))
	router.Use(metricsService.GinMiddleware(ctx))

	server := &Server{
		Router:    router,
		config:    cfg,
		gate:      gate,
		forwarder: NewForwarder(gate, upstream, metricsService.Relay(), cfg.Server.MaxBodyBytes),
		metrics:   metricsService,
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
		},
	}
	server.setupRoutes()
	if manager != nil {
		manager.OnChange(server.applyConfig(ctx))
	}
	return server, nil
}

// setupRoutes configures all server routes
func (s *Server) setupRoutes() {
	s.Router.GET("/healthz", s.healthzHandler)

	v1 := s.Router.Group("/api/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong"})
		})
	}

	if s.config.Monitoring.Enabled {
		s.Router.GET(s.metrics.Path(), gin.WrapH(s.metrics.ExporterHandler()))
	}

	// Everything else goes upstream, whatever the method.
	s.Router.NoRoute(s.forwarder.Handle)
}

// healthzHandler handles health check requests
func (s *Server) healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.Get().Version,
	})
}

// applyConfig returns the reload callback that swaps the gate settings.
// Server and upstream settings need a restart to take effect.
func (s *Server) applyConfig(ctx context.Context) func(*config.Config) {
	log := logger.FromContext(ctx)
	return func(cfg *config.Config) {
		if cfg == nil {
			return
		}
		s.gate.Update(&cfg.Normalizer)
		log.Info("Normalizer settings updated",
			"enabled", cfg.Normalizer.Enabled,
			"model_marker", cfg.Normalizer.ModelMarker,
			"paths", cfg.Normalizer.Paths,
		)
	}
}

// Start starts the HTTP server and blocks until ctx is canceled, a shutdown
// signal arrives or the server fails.
func (s *Server) Start(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info("Starting relay server",
		"addr", s.httpServer.Addr,
		"upstream", s.config.Upstream.BaseURL,
		"normalizer", s.config.Normalizer.Enabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.waitForShutdown(gctx)
	})
	return g.Wait()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info("Shutting down relay server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		return err
	}
	if err := s.metrics.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics shutdown failed", "error", err)
	}

	log.Info("Relay server stopped gracefully")
	return nil
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func (s *Server) waitForShutdown(ctx context.Context) error {
	log := logger.FromContext(ctx)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-ctx.Done():
		log.Debug("Context canceled, shutting down server")
	case sig := <-quit:
		log.Info("Received shutdown signal", "signal", sig.String())
	}
	return s.Stop(ctx)
}
