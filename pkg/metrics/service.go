// Package metrics exposes relay instrumentation through OpenTelemetry with a
// Prometheus exporter.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kiriru/mistral-relay/pkg/logger"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "mistral-relay"

// Service owns the meter provider and the instruments built on it.
type Service struct {
	meter             metric.Meter
	provider          *sdkmetric.MeterProvider
	registry          *prom.Registry
	config            *Config
	relay             *Relay
	initialized       bool
	initializationErr error
}

func newDisabledService(ctx context.Context, cfg *Config, initErr error) *Service {
	meter := noop.NewMeterProvider().Meter(meterName)
	return &Service{
		config:            cfg,
		meter:             meter,
		relay:             NewRelay(ctx, meter),
		initializationErr: initErr,
	}
}

// NewService creates a metrics service. When disabled every instrument is a
// no-op and the exporter handler answers 503.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	log := logger.FromContext(ctx)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		log.Debug("Metrics disabled, using no-op meter")
		return newDisabledService(ctx, cfg, nil), nil
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return newService(ctx, cfg, provider, registry), nil
}

// NewServiceWithReader builds an enabled service on top of reader. It is
// meant for tests that collect metrics in memory.
func NewServiceWithReader(ctx context.Context, reader sdkmetric.Reader) *Service {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	cfg := DefaultConfig()
	cfg.Enabled = true
	return newService(ctx, cfg, provider, nil)
}

func newService(ctx context.Context, cfg *Config, provider *sdkmetric.MeterProvider, registry *prom.Registry) *Service {
	meter := provider.Meter(meterName)
	s := &Service{
		meter:       meter,
		provider:    provider,
		registry:    registry,
		config:      cfg,
		relay:       NewRelay(ctx, meter),
		initialized: true,
	}
	InitSystemMetrics(ctx, meter)
	logger.FromContext(ctx).Info("Metrics service initialized", "path", cfg.Path)
	return s
}

// NewServiceWithFallback never fails: initialization errors are logged and a
// no-op service is returned instead.
func NewServiceWithFallback(ctx context.Context, cfg *Config) *Service {
	service, err := NewService(ctx, cfg)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to initialize metrics, using no-op implementation", "error", err)
		if cfg == nil {
			cfg = DefaultConfig()
		}
		return newDisabledService(ctx, cfg, err)
	}
	return service
}

// Meter returns the OpenTelemetry meter for custom instrumentation
func (s *Service) Meter() metric.Meter {
	return s.meter
}

// Relay returns the relay-specific instruments.
func (s *Service) Relay() *Relay {
	return s.relay
}

// Path returns the path the exporter should be mounted on.
func (s *Service) Path() string {
	return s.config.Path
}

// GinMiddleware returns Gin middleware for HTTP metrics.
func (s *Service) GinMiddleware(ctx context.Context) gin.HandlerFunc {
	if !s.initialized {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return HTTPMetrics(ctx, s.meter)
}

// ExporterHandler returns an HTTP handler for the metrics endpoint
func (s *Service) ExporterHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.initialized || s.registry == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte("Metrics service not initialized")); err != nil {
				logger.FromContext(r.Context()).Error("Failed to write response", "error", err)
			}
			return
		}
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// Shutdown flushes and stops the meter provider.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider != nil {
		return s.provider.Shutdown(ctx)
	}
	return nil
}

// IsInitialized returns whether the metrics service was successfully initialized
func (s *Service) IsInitialized() bool {
	return s.initialized
}

// InitializationError returns any error that occurred during initialization
func (s *Service) InitializationError() error {
	return s.initializationErr
}
