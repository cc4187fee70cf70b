package config

import (
	"context"
	"time"
)

// Config is the complete relay configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	Upstream   UpstreamConfig   `koanf:"upstream"   validate:"required"`
	Normalizer NormalizerConfig `koanf:"normalizer" validate:"required"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	Runtime    RuntimeConfig    `koanf:"runtime"    validate:"required"`
}

// ServerConfig contains the inbound HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"             validate:"required"        env:"RELAY_SERVER_HOST"`
	Port            int           `koanf:"port"             validate:"min=1,max=65535" env:"RELAY_SERVER_PORT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"            env:"RELAY_SERVER_SHUTDOWN_TIMEOUT"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"min=0"           env:"RELAY_SERVER_READ_TIMEOUT"`
	// WriteTimeout bounds the whole response, streamed completions included.
	// Zero disables it.
	WriteTimeout   time.Duration `koanf:"write_timeout"   validate:"min=0" env:"RELAY_SERVER_WRITE_TIMEOUT"`
	IdleTimeout    time.Duration `koanf:"idle_timeout"    validate:"min=0" env:"RELAY_SERVER_IDLE_TIMEOUT"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes"  validate:"min=1" env:"RELAY_SERVER_MAX_BODY_BYTES"`
	TrustedProxies []string      `koanf:"trusted_proxies"                  env:"RELAY_SERVER_TRUSTED_PROXIES"`
}

// UpstreamConfig describes the chat-completion API requests are relayed to.
type UpstreamConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,http_url" env:"RELAY_UPSTREAM_BASE_URL"`
	// Timeout bounds the wait for response headers. The body is streamed
	// without a deadline.
	Timeout             time.Duration `koanf:"timeout"                 validate:"min=0" env:"RELAY_UPSTREAM_TIMEOUT"`
	MaxIdleConns        int           `koanf:"max_idle_conns"          validate:"min=0" env:"RELAY_UPSTREAM_MAX_IDLE_CONNS"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host" validate:"min=0" env:"RELAY_UPSTREAM_MAX_IDLE_CONNS_PER_HOST"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"       validate:"min=0" env:"RELAY_UPSTREAM_IDLE_CONN_TIMEOUT"`
	UserAgent           string        `koanf:"user_agent"                               env:"RELAY_UPSTREAM_USER_AGENT"`
}

// NormalizerConfig controls which requests get their conversation rewritten.
type NormalizerConfig struct {
	Enabled      bool     `koanf:"enabled"       env:"RELAY_NORMALIZER_ENABLED"`
	ModelMarker  string   `koanf:"model_marker"  env:"RELAY_NORMALIZER_MODEL_MARKER"  validate:"required"`
	Paths        []string `koanf:"paths"         env:"RELAY_NORMALIZER_PATHS"         validate:"min=1,dive,url_path"`
	VerifyOutput bool     `koanf:"verify_output" env:"RELAY_NORMALIZER_VERIFY_OUTPUT"`
}

// MonitoringConfig controls the Prometheus endpoint.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" env:"RELAY_MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"RELAY_MONITORING_PATH"    validate:"url_path"`
}

// RuntimeConfig contains process-wide behavior.
type RuntimeConfig struct {
	LogLevel  string `koanf:"log_level"  validate:"oneof=debug info warn error disabled" env:"RELAY_LOG_LEVEL"`
	LogJSON   bool   `koanf:"log_json"                                                   env:"RELAY_LOG_JSON"`
	LogSource bool   `koanf:"log_source"                                                 env:"RELAY_LOG_SOURCE"`
}

// Service defines the configuration management service interface.
type Service interface {
	// Load builds a configuration from defaults, the given sources and the
	// environment.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns which source provided a configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Watch monitors the source for changes.
	Watch(ctx context.Context, callback func()) error
	// Type returns the source type identifier.
	Type() SourceType
	// Close releases any resources held by the source.
	Close() error
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

const (
	DefaultUpstreamURL  = "https://integrate.api.nvidia.com"
	DefaultModelMarker  = "mistral"
	DefaultChatPath     = "/v1/chat/completions"
	DefaultMetricsPath  = "/metrics"
	DefaultMaxBodyBytes = 10 << 20
)

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0,
			IdleTimeout:     120 * time.Second,
			MaxBodyBytes:    DefaultMaxBodyBytes,
			TrustedProxies:  []string{},
		},
		Upstream: UpstreamConfig{
			BaseURL:             DefaultUpstreamURL,
			Timeout:             2 * time.Minute,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		Normalizer: NormalizerConfig{
			Enabled:     true,
			ModelMarker: DefaultModelMarker,
			Paths:       []string{DefaultChatPath},
		},
		Monitoring: MonitoringConfig{
			Enabled: false,
			Path:    DefaultMetricsPath,
		},
		Runtime: RuntimeConfig{
			LogLevel: "info",
		},
	}
}
