package metrics

import (
	"fmt"
	"strings"
)

// Config holds configuration for the metrics service
type Config struct {
	Enabled bool
	Path    string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled: false,
		Path:    "/metrics",
	}
}

// Validate validates the metrics configuration
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("metrics path cannot be empty")
	}
	if c.Path[0] != '/' {
		return fmt.Errorf("metrics path must start with '/': got %s", c.Path)
	}
	if strings.HasPrefix(c.Path, "/api/") {
		return fmt.Errorf("metrics path cannot be under /api/")
	}
	if strings.ContainsRune(c.Path, '?') {
		return fmt.Errorf("metrics path cannot contain query parameters")
	}
	return nil
}
